package sqlite

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Database is a SQLite file holding both transactions and categories.
type Database struct {
	db       *gorm.DB
	Records  *RecordStore
	Taxonomy *TaxonomyStore
}

// Open opens or creates the database at path and migrates the schema.
// Use ":memory:" for a throwaway database.
func Open(path string) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases shared between calls.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&transactionModel{}, &categoryModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Database{
		db:       db,
		Records:  &RecordStore{db: db},
		Taxonomy: &TaxonomyStore{db: db},
	}, nil
}

// Close closes the underlying connection.
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
