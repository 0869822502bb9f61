package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dvloznov/finance-categorizer/internal/domain"
)

// CategoryValidator checks model-assigned pairs against a user's taxonomy.
type CategoryValidator struct {
	categories    map[string]bool            // Set of valid category names
	subcategories map[string]map[string]bool // Map of category -> set of valid subcategories
}

// NewCategoryValidator builds lookup sets from the taxonomy.
func NewCategoryValidator(taxonomy *domain.TaxonomyModel) *CategoryValidator {
	v := &CategoryValidator{
		categories:    make(map[string]bool),
		subcategories: make(map[string]map[string]bool),
	}
	if taxonomy == nil {
		return v
	}

	for _, g := range taxonomy.Groups {
		cat := normalizeCategory(g.Category)
		v.categories[cat] = true
		if v.subcategories[cat] == nil {
			v.subcategories[cat] = make(map[string]bool)
		}
		for _, s := range g.Subcategories {
			v.subcategories[cat][normalizeCategory(s)] = true
		}
	}

	return v
}

// ValidateCategory returns nil when the pair belongs to the taxonomy. A blank
// pair is the model's "unsure" answer and is always valid.
func (v *CategoryValidator) ValidateCategory(category, subcategory string) error {
	normCat := normalizeCategory(category)
	normSubcat := normalizeCategory(subcategory)

	if normCat == "" && normSubcat == "" {
		return nil
	}
	if !v.categories[normCat] {
		return fmt.Errorf("invalid category: %q", category)
	}

	subcats := v.subcategories[normCat]
	if len(subcats) == 0 {
		if normSubcat != "" {
			return fmt.Errorf("category %q has no subcategories, got %q", category, subcategory)
		}
		return nil
	}
	if !subcats[normSubcat] {
		validSubs := make([]string, 0, len(subcats))
		for s := range subcats {
			validSubs = append(validSubs, s)
		}
		sort.Strings(validSubs)
		return fmt.Errorf("invalid subcategory %q for category %q. Valid subcategories: %v",
			subcategory, category, validSubs)
	}

	return nil
}

// normalizeCategory converts to uppercase and trims whitespace for
// case-insensitive comparison.
func normalizeCategory(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
