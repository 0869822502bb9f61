package commands

import (
	"context"
	"encoding/json"

	"github.com/dvloznov/finance-categorizer/internal/app"
	"github.com/dvloznov/finance-categorizer/internal/report"
	"github.com/spf13/cobra"
)

func newSummaryCommand(rt *runtime) *cobra.Command {
	var userID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Total a user's records by status and category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withApp(cmd, func(ctx context.Context, a *app.App) error {
				records, err := report.Load(ctx, a.Records, userID)
				if err != nil {
					return err
				}
				summary := report.Summarize(records)

				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(summary)
				}
				return summary.Write(cmd.OutOrStdout())
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "owner of the transactions (required)")
	_ = cmd.MarkFlagRequired("user")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")

	return cmd
}
