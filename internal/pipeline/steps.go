package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/finance-categorizer/internal/domain"
	"github.com/dvloznov/finance-categorizer/internal/logger"
)

// PipelineStep represents a single step in the categorization pipeline.
type PipelineStep interface {
	Name() string
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state of one batch across all steps.
type PipelineState struct {
	Batch          Batch
	Records        []*domain.TransactionRecord
	Taxonomy       *domain.TaxonomyModel
	Prompt         string
	RawResponse    string
	Parsed         *ParseResult
	Reconciliation Reconciliation
	Outcome        *Outcome

	// Done stops the pipeline without error, e.g. for a file with no rows.
	Done bool
}

// Step 1: IngestStep reads the source file and assigns every row its
// transaction_id, producing PENDING records.
type IngestStep struct{ p *Pipeline }

func (s *IngestStep) Name() string { return "ingest" }

func (s *IngestStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)

	readCtx, cancel := context.WithTimeout(ctx, s.p.opts.Timeouts.Source)
	rows, err := s.p.deps.Ingestor.Read(readCtx, state.Batch.Source)
	cancel()
	if err != nil {
		if !errors.Is(err, domain.ErrSourceUnavailable) && !errors.Is(err, domain.ErrMalformedInput) {
			err = fmt.Errorf("%w: %w", domain.ErrSourceUnavailable, err)
		}
		return err
	}

	if len(rows) == 0 {
		log.Info().Msg("Source file has no data rows, nothing to categorize")
		state.Done = true
		return nil
	}

	now := s.p.opts.Now()
	seen := make(map[string]bool, len(rows))
	state.Records = make([]*domain.TransactionRecord, 0, len(rows))
	for i, row := range rows {
		id := s.p.opts.NewID(state.Batch, i)
		if seen[id] {
			return fmt.Errorf("row %d: duplicate transaction_id %q generated", i+1, id)
		}
		seen[id] = true

		rec, err := domain.NewPendingRecord(id, state.Batch.UserID, state.Batch.Source.String(), row, now)
		if err != nil {
			return fmt.Errorf("%w: row %d: %w", domain.ErrMalformedInput, i+1, err)
		}
		state.Records = append(state.Records, rec)
		state.Outcome.TransactionIDs = append(state.Outcome.TransactionIDs, id)
	}

	log.Info().
		Str("step", s.Name()).
		Int("transaction_count", len(state.Records)).
		Msg("Ingested transactions")

	return nil
}

// Step 2: PersistPendingStep stores the PENDING records. It must fully
// succeed before any model call is made.
type PersistPendingStep struct{ p *Pipeline }

func (s *PersistPendingStep) Name() string { return "persist_pending" }

func (s *PersistPendingStep) Execute(ctx context.Context, state *PipelineState) error {
	storeCtx, cancel := context.WithTimeout(ctx, s.p.opts.Timeouts.Store)
	defer cancel()

	if err := s.p.deps.Records.PutBatch(storeCtx, state.Records); err != nil {
		if !errors.Is(err, domain.ErrPersistence) {
			err = domain.NewPersistenceError(state.Outcome.TransactionIDs, err)
		}
		return err
	}

	log := logger.FromContext(ctx)
	log.Debug().
		Str("step", s.Name()).
		Int("transaction_count", len(state.Records)).
		Msg("Persisted pending records")
	return nil
}

// Step 3: FetchTaxonomyStep loads the user's taxonomy. An absent or empty
// taxonomy aborts the batch before the model is called.
type FetchTaxonomyStep struct{ p *Pipeline }

func (s *FetchTaxonomyStep) Name() string { return "fetch_taxonomy" }

func (s *FetchTaxonomyStep) Execute(ctx context.Context, state *PipelineState) error {
	taxCtx, cancel := context.WithTimeout(ctx, s.p.opts.Timeouts.Taxonomy)
	defer cancel()

	taxonomy, err := s.p.deps.Taxonomy.Get(taxCtx, state.Batch.UserID)
	if err != nil {
		if !errors.Is(err, domain.ErrTaxonomyUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrTaxonomyUnavailable, err)
		}
		return err
	}
	if taxonomy.IsEmpty() {
		return fmt.Errorf("%w: user %s has no categories configured", domain.ErrTaxonomyAbsent, state.Batch.UserID)
	}

	state.Taxonomy = taxonomy
	return nil
}

// Step 4: BuildPromptStep renders the model request.
type BuildPromptStep struct{ p *Pipeline }

func (s *BuildPromptStep) Name() string { return "build_prompt" }

func (s *BuildPromptStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Prompt = s.p.prompts.Build(state.Records, state.Taxonomy)
	return nil
}

// Step 5: InvokeModelStep calls the model. When the call fails every record
// of the batch is moved to CATEGORIZATION_FAILED before the error is returned.
type InvokeModelStep struct{ p *Pipeline }

func (s *InvokeModelStep) Name() string { return "invoke_model" }

func (s *InvokeModelStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)

	modelCtx, cancel := context.WithTimeout(ctx, s.p.opts.Timeouts.Model)
	raw, err := s.p.deps.Model.Invoke(modelCtx, state.Prompt)
	timedOut := errors.Is(modelCtx.Err(), context.DeadlineExceeded)
	cancel()

	if err != nil {
		switch {
		case errors.Is(err, domain.ErrModelTimeout), errors.Is(err, domain.ErrModelInvocation):
		case timedOut || errors.Is(err, context.DeadlineExceeded):
			err = fmt.Errorf("%w: %w", domain.ErrModelTimeout, err)
		default:
			err = fmt.Errorf("%w: %w", domain.ErrModelInvocation, err)
		}

		log.Error().
			Err(err).
			Int("transaction_count", len(state.Records)).
			Msg("Model call failed, marking batch as failed")
		s.p.failBatch(ctx, state)
		return err
	}

	state.RawResponse = raw
	return nil
}

// Step 6: ParseResponseStep extracts the entries. An unparsable response
// leaves every record PENDING for external retry.
type ParseResponseStep struct{ p *Pipeline }

func (s *ParseResponseStep) Name() string { return "parse_response" }

func (s *ParseResponseStep) Execute(ctx context.Context, state *PipelineState) error {
	parsed, err := s.p.parser.Parse(ctx, state.RawResponse)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().
			Err(err).
			Str("raw_response", truncate(state.RawResponse, maxLoggedResponse)).
			Msg("Model response is unparsable, records stay PENDING")
		return err
	}

	state.Parsed = parsed
	state.Outcome.DroppedEntries = parsed.Dropped
	return nil
}

// Step 7: ReconcileStep matches entries to the batch by transaction_id.
type ReconcileStep struct{ p *Pipeline }

func (s *ReconcileStep) Name() string { return "reconcile" }

func (s *ReconcileStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)

	state.Reconciliation = Reconcile(state.Parsed.Results, state.Outcome.TransactionIDs)

	for _, r := range state.Reconciliation.UnmatchedResults {
		state.Outcome.Hallucinated = append(state.Outcome.Hallucinated, r.TransactionID)
		log.Warn().
			Str("transaction_id", r.TransactionID).
			Msg("Model returned an id outside the batch, discarding entry")
	}

	log.Info().
		Str("step", s.Name()).
		Int("matched", len(state.Reconciliation.Matched)).
		Int("unmatched_known", len(state.Reconciliation.UnmatchedKnown)).
		Int("hallucinated", len(state.Reconciliation.UnmatchedResults)).
		Int("dropped_entries", state.Outcome.DroppedEntries).
		Msg("Reconciled model output")
	return nil
}

// Step 8: ApplyUpdatesStep moves matched records to COMPLETE and records the
// model skipped to CATEGORIZATION_FAILED. Every update is attempted; failures
// other than stale transitions are reported together afterwards.
type ApplyUpdatesStep struct{ p *Pipeline }

func (s *ApplyUpdatesStep) Name() string { return "apply_updates" }

func (s *ApplyUpdatesStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	validator := NewCategoryValidator(state.Taxonomy)

	var failedIDs []string
	var errs []error
	apply := func(u domain.StatusUpdate) {
		if err := s.p.updateStatus(ctx, state, u); err != nil {
			failedIDs = append(failedIDs, u.TransactionID)
			errs = append(errs, err)
		}
	}

	for _, m := range state.Reconciliation.Matched {
		if err := validator.ValidateCategory(m.Category, m.Subcategory); err != nil {
			log.Warn().
				Str("transaction_id", m.TransactionID).
				Err(err).
				Msg("Model assigned a pair outside the taxonomy")
		}
		apply(domain.CompleteUpdate(m))
	}
	for _, id := range state.Reconciliation.UnmatchedKnown {
		apply(domain.FailedUpdate(id))
	}

	if len(failedIDs) > 0 {
		return domain.NewPersistenceError(failedIDs, errors.Join(errs...))
	}
	return nil
}

// updateStatus applies one transition and records it in the outcome. A stale
// transition means another delivery already finished the record; it is
// logged and not treated as a failure.
func (p *Pipeline) updateStatus(ctx context.Context, state *PipelineState, u domain.StatusUpdate) error {
	log := logger.FromContext(ctx)

	storeCtx, cancel := context.WithTimeout(ctx, p.opts.Timeouts.Store)
	defer cancel()

	err := p.deps.Records.UpdateStatus(storeCtx, u)
	switch {
	case err == nil:
		if u.Status == domain.StatusComplete {
			state.Outcome.Completed = append(state.Outcome.Completed, u.TransactionID)
		} else {
			state.Outcome.Failed = append(state.Outcome.Failed, u.TransactionID)
		}
		return nil
	case errors.Is(err, domain.ErrStaleTransition):
		state.Outcome.Stale = append(state.Outcome.Stale, u.TransactionID)
		log.Warn().
			Str("transaction_id", u.TransactionID).
			Str("target_status", string(u.Status)).
			Msg("Record already terminal, skipping update")
		return nil
	default:
		log.Error().
			Str("transaction_id", u.TransactionID).
			Err(err).
			Msg("Failed to update record status")
		return err
	}
}

// failBatch moves every record of the batch to CATEGORIZATION_FAILED,
// best effort: errors are logged, not returned.
func (p *Pipeline) failBatch(ctx context.Context, state *PipelineState) {
	for _, rec := range state.Records {
		_ = p.updateStatus(ctx, state, domain.FailedUpdate(rec.TransactionID))
	}
}
