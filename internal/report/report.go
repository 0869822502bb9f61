// Package report totals a user's transaction records for diagnostics.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dvloznov/finance-categorizer/internal/domain"
	"github.com/shopspring/decimal"
)

// Uncategorized labels COMPLETE records the model left without a category.
const Uncategorized = "(uncategorized)"

// Total is a count and an amount sum.
type Total struct {
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// StatusTotal is the total of one status.
type StatusTotal struct {
	Status domain.Status `json:"status"`
	Total
}

// CategoryTotal is the total of one (category, subcategory) over COMPLETE
// records.
type CategoryTotal struct {
	Category    string `json:"category"`
	Subcategory string `json:"subcategory,omitempty"`
	Total
}

// Summary is the result of Summarize.
type Summary struct {
	Records    int             `json:"records"`
	Statuses   []StatusTotal   `json:"statuses"`
	Categories []CategoryTotal `json:"categories"`
	// Unparsable lists records whose amount is not a decimal. They are
	// counted in Statuses but add nothing to any amount.
	Unparsable []string `json:"unparsable,omitempty"`
}

var statusOrder = []domain.Status{
	domain.StatusPending,
	domain.StatusComplete,
	domain.StatusCategorizationFailed,
}

// Summarize totals amounts per status and, for COMPLETE records, per
// category and subcategory.
func Summarize(records []*domain.TransactionRecord) *Summary {
	s := &Summary{}
	byStatus := make(map[domain.Status]*Total)
	byCategory := make(map[[2]string]*Total)

	for _, r := range records {
		if r == nil {
			continue
		}
		s.Records++

		amount, err := decimal.NewFromString(strings.TrimSpace(r.Amount))
		parsed := err == nil
		if !parsed {
			s.Unparsable = append(s.Unparsable, r.TransactionID)
		}

		st := byStatus[r.Status]
		if st == nil {
			st = &Total{}
			byStatus[r.Status] = st
		}
		st.Count++
		if parsed {
			st.Amount = st.Amount.Add(amount)
		}

		if r.Status != domain.StatusComplete {
			continue
		}
		key := [2]string{Uncategorized, ""}
		if r.Category != nil {
			key[0] = *r.Category
		}
		if r.Subcategory != nil {
			key[1] = *r.Subcategory
		}
		ct := byCategory[key]
		if ct == nil {
			ct = &Total{}
			byCategory[key] = ct
		}
		ct.Count++
		if parsed {
			ct.Amount = ct.Amount.Add(amount)
		}
	}

	for _, status := range statusOrder {
		if t, ok := byStatus[status]; ok {
			s.Statuses = append(s.Statuses, StatusTotal{Status: status, Total: *t})
			delete(byStatus, status)
		}
	}
	// Statuses outside the known set still show up, after the known ones.
	var rest []domain.Status
	for status := range byStatus {
		rest = append(rest, status)
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	for _, status := range rest {
		s.Statuses = append(s.Statuses, StatusTotal{Status: status, Total: *byStatus[status]})
	}

	for key, t := range byCategory {
		s.Categories = append(s.Categories, CategoryTotal{Category: key[0], Subcategory: key[1], Total: *t})
	}
	sort.Slice(s.Categories, func(i, j int) bool {
		a, b := s.Categories[i], s.Categories[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.Subcategory < b.Subcategory
	})

	return s
}

// Write prints the summary as plain text.
func (s *Summary) Write(w io.Writer) error {
	var b strings.Builder

	fmt.Fprintf(&b, "Records: %d\n", s.Records)
	fmt.Fprintln(&b, "\n=== By status ===")
	for _, st := range s.Statuses {
		fmt.Fprintf(&b, "%-24s %6d %14s\n", st.Status, st.Count, st.Amount.StringFixed(2))
	}

	if len(s.Categories) > 0 {
		fmt.Fprintln(&b, "\n=== By category (COMPLETE) ===")
		for _, ct := range s.Categories {
			label := ct.Category
			if ct.Subcategory != "" {
				label += " / " + ct.Subcategory
			}
			fmt.Fprintf(&b, "%-40s %6d %14s\n", label, ct.Count, ct.Amount.StringFixed(2))
		}
	}

	if len(s.Unparsable) > 0 {
		fmt.Fprintf(&b, "\nUnparsable amounts: %d (%s)\n", len(s.Unparsable), strings.Join(s.Unparsable, ", "))
	}

	_, err := io.WriteString(w, b.String())
	return err
}
