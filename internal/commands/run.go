package commands

import (
	"context"
	"encoding/json"

	"github.com/dvloznov/finance-categorizer/internal/app"
	"github.com/dvloznov/finance-categorizer/internal/pipeline"
	"github.com/spf13/cobra"
)

func newRunCommand(rt *runtime) *cobra.Command {
	var uri string
	var userID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Categorize one uploaded file for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withApp(cmd, func(ctx context.Context, a *app.App) error {
				outcome, err := a.Run(ctx, userID, uri)
				if outcome != nil {
					if perr := printOutcome(cmd, outcome, asJSON); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}

	cmd.Flags().StringVar(&uri, "uri", "", "file location, gs://bucket/key (required)")
	_ = cmd.MarkFlagRequired("uri")
	cmd.Flags().StringVar(&userID, "user", "", "owner of the transactions (required)")
	_ = cmd.MarkFlagRequired("user")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the outcome as JSON")

	return cmd
}

func printOutcome(cmd *cobra.Command, o *pipeline.Outcome, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(o)
	}

	printf(cmd, "Source:        %s\n", o.SourceURI)
	printf(cmd, "User:          %s\n", o.UserID)
	printf(cmd, "Transactions:  %d\n", len(o.TransactionIDs))
	printf(cmd, "Complete:      %d\n", len(o.Completed))
	printf(cmd, "Failed:        %d\n", len(o.Failed))
	if len(o.Stale) > 0 {
		printf(cmd, "Stale:         %d\n", len(o.Stale))
	}
	if len(o.Hallucinated) > 0 {
		printf(cmd, "Hallucinated:  %d\n", len(o.Hallucinated))
	}
	if o.DroppedEntries > 0 {
		printf(cmd, "Dropped:       %d\n", o.DroppedEntries)
	}
	return nil
}
