package commands

import (
	"context"
	"fmt"

	"github.com/dvloznov/finance-categorizer/internal/app"
	"github.com/dvloznov/finance-categorizer/internal/domain"
	"github.com/spf13/cobra"
)

func newPendingCommand(rt *runtime) *cobra.Command {
	var userID string
	var statusName string

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List a user's records in one status (PENDING by default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := domain.ParseStatus(statusName)
			if err != nil {
				return err
			}

			return rt.withApp(cmd, func(ctx context.Context, a *app.App) error {
				records, err := a.Records.FindByUserAndStatus(ctx, userID, status)
				if err != nil {
					return fmt.Errorf("listing %s records: %w", status, err)
				}
				printRecords(cmd, status, records)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "owner of the transactions (required)")
	_ = cmd.MarkFlagRequired("user")
	cmd.Flags().StringVar(&statusName, "status", string(domain.StatusPending), "PENDING, COMPLETE or CATEGORIZATION_FAILED")

	return cmd
}

func printRecords(cmd *cobra.Command, status domain.Status, records []*domain.TransactionRecord) {
	printf(cmd, "=== %s (%d) ===\n", status, len(records))
	for i, r := range records {
		printf(cmd, "\n%d. %s\n", i+1, r.TransactionID)
		printf(cmd, "   Date:        %s\n", r.Date)
		printf(cmd, "   Amount:      %s\n", r.Amount)
		if r.Merchant != "" {
			printf(cmd, "   Merchant:    %s\n", r.Merchant)
		}
		if r.Description != "" {
			printf(cmd, "   Description: %s\n", r.Description)
		}
		if r.Category != nil {
			label := *r.Category
			if r.Subcategory != nil && *r.Subcategory != "" {
				label += " / " + *r.Subcategory
			}
			printf(cmd, "   Category:    %s\n", label)
		}
		if r.Confidence != nil {
			printf(cmd, "   Confidence:  %.2f\n", *r.Confidence)
		}
	}
}
