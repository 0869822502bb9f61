package sqlite

import (
	"time"

	"github.com/dvloznov/finance-categorizer/internal/domain"
)

type transactionModel struct {
	TransactionID     string `gorm:"primaryKey"`
	UserID            string `gorm:"not null;index:idx_user_status,priority:1"`
	TransactionDateID string `gorm:"not null;index"`
	Date              string
	Amount            string
	Merchant          string
	Description       string
	Category          *string
	Subcategory       *string
	Confidence        *float64
	Status            string `gorm:"not null;index:idx_user_status,priority:2"`
	SourceURI         string
	CreatedTS         time.Time `gorm:"column:created_ts;not null"`
	UpdatedTS         *time.Time `gorm:"column:updated_ts"`
}

func (transactionModel) TableName() string { return "transactions" }

type categoryModel struct {
	ID          uint   `gorm:"primaryKey"`
	UserID      string `gorm:"not null;uniqueIndex:idx_user_pair,priority:1"`
	Category    string `gorm:"not null;uniqueIndex:idx_user_pair,priority:2"`
	Subcategory string `gorm:"not null;uniqueIndex:idx_user_pair,priority:3"`
}

func (categoryModel) TableName() string { return "categories" }

func toModel(r *domain.TransactionRecord) transactionModel {
	m := transactionModel{
		TransactionID:     r.TransactionID,
		UserID:            r.UserID,
		TransactionDateID: r.SortKey(),
		Date:              r.Date,
		Amount:            r.Amount,
		Merchant:          r.Merchant,
		Description:       r.Description,
		Category:          r.Category,
		Subcategory:       r.Subcategory,
		Confidence:        r.Confidence,
		Status:            string(r.Status),
		SourceURI:         r.SourceURI,
		CreatedTS:         r.CreatedAt,
	}
	if !r.UpdatedAt.IsZero() {
		t := r.UpdatedAt
		m.UpdatedTS = &t
	}
	return m
}

func (m transactionModel) toRecord() *domain.TransactionRecord {
	r := &domain.TransactionRecord{
		TransactionID: m.TransactionID,
		UserID:        m.UserID,
		Date:          m.Date,
		Amount:        m.Amount,
		Merchant:      m.Merchant,
		Description:   m.Description,
		Category:      m.Category,
		Subcategory:   m.Subcategory,
		Confidence:    m.Confidence,
		Status:        domain.Status(m.Status),
		SourceURI:     m.SourceURI,
		CreatedAt:     m.CreatedTS.UTC(),
	}
	if m.UpdatedTS != nil {
		r.UpdatedAt = m.UpdatedTS.UTC()
	}
	return r
}
