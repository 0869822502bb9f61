package domain

import (
	"strings"
)

// CategoryPair is one flat (category, subcategory) row as stored per user.
type CategoryPair struct {
	Category    string `json:"category" yaml:"category" bson:"category"`
	Subcategory string `json:"subcategory" yaml:"subcategory" bson:"subcategory"`
}

// CategoryGroup is a category together with its allowed subcategories.
type CategoryGroup struct {
	Category      string   `json:"category" yaml:"category"`
	Subcategories []string `json:"subcategories" yaml:"subcategories"`
}

// TaxonomyModel is a user's category taxonomy in grouped form.
type TaxonomyModel struct {
	UserID string          `json:"user_id"`
	Groups []CategoryGroup `json:"groups"`
}

// NewTaxonomyModel groups flat pairs by category. First-seen order of both
// categories and subcategories is preserved, duplicate subcategories are
// collapsed, and pairs with a blank category are skipped. A pair with a blank
// subcategory only declares the category.
func NewTaxonomyModel(userID string, pairs []CategoryPair) *TaxonomyModel {
	t := &TaxonomyModel{UserID: userID}
	index := make(map[string]int)
	seen := make(map[string]map[string]bool)

	for _, p := range pairs {
		cat := strings.TrimSpace(p.Category)
		if cat == "" {
			continue
		}
		i, ok := index[cat]
		if !ok {
			i = len(t.Groups)
			index[cat] = i
			seen[cat] = make(map[string]bool)
			t.Groups = append(t.Groups, CategoryGroup{Category: cat})
		}

		sub := strings.TrimSpace(p.Subcategory)
		if sub == "" || seen[cat][sub] {
			continue
		}
		seen[cat][sub] = true
		t.Groups[i].Subcategories = append(t.Groups[i].Subcategories, sub)
	}

	return t
}

// NewTaxonomyFromGroups flattens groups and regroups them, so configured
// taxonomies get the same normalization as stored ones.
func NewTaxonomyFromGroups(userID string, groups []CategoryGroup) *TaxonomyModel {
	var pairs []CategoryPair
	for _, g := range groups {
		if len(g.Subcategories) == 0 {
			pairs = append(pairs, CategoryPair{Category: g.Category})
			continue
		}
		for _, s := range g.Subcategories {
			pairs = append(pairs, CategoryPair{Category: g.Category, Subcategory: s})
		}
	}
	return NewTaxonomyModel(userID, pairs)
}

// IsEmpty reports whether the taxonomy has no groups. An empty taxonomy is
// treated the same as an absent one.
func (t *TaxonomyModel) IsEmpty() bool {
	return t == nil || len(t.Groups) == 0
}

// Pairs flattens the taxonomy back into (category, subcategory) rows.
func (t *TaxonomyModel) Pairs() []CategoryPair {
	if t == nil {
		return nil
	}
	var pairs []CategoryPair
	for _, g := range t.Groups {
		if len(g.Subcategories) == 0 {
			pairs = append(pairs, CategoryPair{Category: g.Category})
			continue
		}
		for _, s := range g.Subcategories {
			pairs = append(pairs, CategoryPair{Category: g.Category, Subcategory: s})
		}
	}
	return pairs
}

// Render formats the taxonomy for model consumption:
//
//	Food:
//	  - Groceries
//	  - Restaurants
func (t *TaxonomyModel) Render() string {
	if t.IsEmpty() {
		return ""
	}
	var b strings.Builder
	for i, g := range t.Groups {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(g.Category + ":\n")
		if len(g.Subcategories) == 0 {
			b.WriteString("  (no subcategories - use empty string \"\")\n")
			continue
		}
		for _, s := range g.Subcategories {
			b.WriteString("  - " + s + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
