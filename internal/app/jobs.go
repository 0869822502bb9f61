package app

import (
	"context"
	"fmt"

	"github.com/dvloznov/finance-categorizer/internal/jobs"
	"github.com/dvloznov/finance-categorizer/internal/logger"
	"github.com/dvloznov/finance-categorizer/internal/pipeline"
)

// JobHandler runs the pipeline for each CategorizeFileJob and records the
// outcome counts on the job, also when the run fails.
func (a *App) JobHandler() jobs.JobHandler {
	return func(ctx context.Context, job jobs.Job) error {
		fileJob, ok := job.(*jobs.CategorizeFileJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		log := logger.FromContext(ctx)
		log.Info().Msg("Processing categorization job")

		outcome, err := a.Run(ctx, fileJob.UserID, fileJob.SourceURI)
		if outcome != nil {
			fileJob.Result = resultOf(outcome)
		}
		if err != nil {
			log.Error().Err(err).Msg("Pipeline execution failed")
			return err
		}

		logger.WithFields(log, map[string]interface{}{
			"completed": len(outcome.Completed),
			"failed":    len(outcome.Failed),
			"stale":     len(outcome.Stale),
		}).Info().Msg("Pipeline execution completed successfully")
		return nil
	}
}

func resultOf(o *pipeline.Outcome) *jobs.JobResult {
	return &jobs.JobResult{
		Transactions:   len(o.TransactionIDs),
		Completed:      len(o.Completed),
		Failed:         len(o.Failed),
		Stale:          len(o.Stale),
		Hallucinated:   len(o.Hallucinated),
		DroppedEntries: o.DroppedEntries,
	}
}
