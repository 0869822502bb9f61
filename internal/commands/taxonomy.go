package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dvloznov/finance-categorizer/internal/app"
	"github.com/dvloznov/finance-categorizer/internal/domain"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// errReadOnlyTaxonomy is returned by taxonomy set on backends whose
// categories table is managed elsewhere.
var errReadOnlyTaxonomy = errors.New("the configured backend does not accept taxonomy writes")

func newTaxonomyCommand(rt *runtime) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "taxonomy",
		Short: "Show the category taxonomy the model is given for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withApp(cmd, func(ctx context.Context, a *app.App) error {
				tax, err := a.Taxonomy.Get(ctx, userID)
				if err != nil {
					return err
				}
				if tax.IsEmpty() {
					return fmt.Errorf("%w: %s", domain.ErrTaxonomyAbsent, userID)
				}
				printf(cmd, "%s\n", tax.Render())
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "owner of the taxonomy (required)")
	_ = cmd.MarkFlagRequired("user")

	cmd.AddCommand(newTaxonomySetCommand(rt))

	return cmd
}

// newTaxonomySetCommand adds category pairs from a YAML file of the same
// shape as default_taxonomy.categories:
//
//	- category: Food
//	  subcategories: [Groceries, Restaurants]
func newTaxonomySetCommand(rt *runtime) *cobra.Command {
	var userID string
	var file string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Add categories for a user from a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			groups, err := readCategoryGroups(file)
			if err != nil {
				return err
			}
			pairs := domain.NewTaxonomyFromGroups(userID, groups).Pairs()
			if len(pairs) == 0 {
				return fmt.Errorf("%s contains no categories", file)
			}

			return rt.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if a.TaxonomyWriter == nil {
					return errReadOnlyTaxonomy
				}
				if err := a.TaxonomyWriter.Put(ctx, userID, pairs); err != nil {
					return fmt.Errorf("storing taxonomy: %w", err)
				}
				printf(cmd, "Stored %d category pairs for %s\n", len(pairs), userID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "owner of the taxonomy (required)")
	_ = cmd.MarkFlagRequired("user")
	cmd.Flags().StringVar(&file, "file", "", "YAML list of categories (required)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func readCategoryGroups(path string) ([]domain.CategoryGroup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var groups []domain.CategoryGroup
	if err := yaml.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return groups, nil
}
