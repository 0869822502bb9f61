package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dvloznov/finance-categorizer/internal/domain"
	"github.com/dvloznov/finance-categorizer/internal/logger"
	"github.com/dvloznov/finance-categorizer/internal/source"
	"github.com/google/uuid"
)

// Batch is one uploaded file for one user.
type Batch struct {
	UserID string
	Source source.Location
}

// Outcome summarizes what a run did to each record of the batch.
type Outcome struct {
	UserID         string   `json:"user_id"`
	SourceURI      string   `json:"source_uri"`
	TransactionIDs []string `json:"transaction_ids"`
	Completed      []string `json:"completed"`
	Failed         []string `json:"failed"`
	Stale          []string `json:"stale,omitempty"`
	Hallucinated   []string `json:"hallucinated,omitempty"`
	DroppedEntries int      `json:"dropped_entries"`
}

// Deps are the external collaborators of a pipeline.
type Deps struct {
	Ingestor RawFileIngestor
	Records  RecordStore
	Taxonomy TaxonomyStore
	Model    ModelClient
}

// Timeouts bound each call to a collaborator. Zero values take the defaults.
type Timeouts struct {
	Source   time.Duration
	Store    time.Duration
	Taxonomy time.Duration
	Model    time.Duration
}

// Options tune a pipeline. The zero value is usable.
type Options struct {
	Timeouts         Timeouts
	ConfidencePolicy ConfidencePolicy

	// Now and NewID are injectable for tests. NewID must return the same id
	// for the same row of the same batch, so a re-delivered batch finds the
	// records it stored before.
	Now   func() time.Time
	NewID func(batch Batch, row int) string
}

var transactionNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/dvloznov/finance-categorizer/transactions"))

// RowID derives a transaction id from the user, the source file and the
// position of the data row in it.
func RowID(batch Batch, row int) string {
	name := batch.UserID + "\x00" + batch.Source.String() + "\x00" + strconv.Itoa(row)
	return uuid.NewSHA1(transactionNamespace, []byte(name)).String()
}

// Pipeline categorizes one batch at a time. A single Pipeline may run
// batches for different users concurrently; it holds no per-batch state.
type Pipeline struct {
	deps    Deps
	opts    Options
	prompts PromptBuilder
	parser  ResponseParser
	steps   []PipelineStep
}

// New validates the collaborators and assembles the categorization steps.
func New(deps Deps, opts Options) (*Pipeline, error) {
	switch {
	case deps.Ingestor == nil:
		return nil, errors.New("pipeline.New: ingestor is required")
	case deps.Records == nil:
		return nil, errors.New("pipeline.New: record store is required")
	case deps.Taxonomy == nil:
		return nil, errors.New("pipeline.New: taxonomy store is required")
	case deps.Model == nil:
		return nil, errors.New("pipeline.New: model client is required")
	}

	if opts.Timeouts.Source <= 0 {
		opts.Timeouts.Source = DefaultSourceTimeout
	}
	if opts.Timeouts.Store <= 0 {
		opts.Timeouts.Store = DefaultStoreTimeout
	}
	if opts.Timeouts.Taxonomy <= 0 {
		opts.Timeouts.Taxonomy = DefaultTaxonomyTimeout
	}
	if opts.Timeouts.Model <= 0 {
		opts.Timeouts.Model = DefaultModelTimeout
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewID == nil {
		opts.NewID = RowID
	}

	p := &Pipeline{
		deps:   deps,
		opts:   opts,
		parser: ResponseParser{Policy: opts.ConfidencePolicy},
	}
	p.steps = []PipelineStep{
		&IngestStep{p: p},
		&PersistPendingStep{p: p},
		&FetchTaxonomyStep{p: p},
		&BuildPromptStep{p: p},
		&InvokeModelStep{p: p},
		&ParseResponseStep{p: p},
		&ReconcileStep{p: p},
		&ApplyUpdatesStep{p: p},
	}
	return p, nil
}

// Run executes the batch strictly in sequence: ingest, persist pending,
// fetch taxonomy, prompt, invoke, parse, reconcile, apply updates. The
// returned Outcome reflects whatever happened before a failure.
func (p *Pipeline) Run(ctx context.Context, batch Batch) (*Outcome, error) {
	if batch.UserID == "" {
		return nil, fmt.Errorf("%w: user_id is required", domain.ErrMalformedInput)
	}
	if err := batch.Source.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMalformedInput, err)
	}

	ctx = logger.WithBatch(ctx, batch.UserID, batch.Source.String())
	log := logger.FromContext(ctx)

	state := &PipelineState{
		Batch: batch,
		Outcome: &Outcome{
			UserID:    batch.UserID,
			SourceURI: batch.Source.String(),
		},
	}

	start := p.opts.Now()
	if err := p.Execute(ctx, state); err != nil {
		log.Error().
			Err(err).
			Dur("elapsed", p.opts.Now().Sub(start)).
			Msg("Categorization batch failed")
		return state.Outcome, err
	}

	log.Info().
		Int("transaction_count", len(state.Outcome.TransactionIDs)).
		Int("completed", len(state.Outcome.Completed)).
		Int("failed", len(state.Outcome.Failed)).
		Int("stale", len(state.Outcome.Stale)).
		Dur("elapsed", p.opts.Now().Sub(start)).
		Msg("Categorization batch finished")

	return state.Outcome, nil
}

// Execute runs the steps in order, stopping at the first error or when a
// step marks the state done.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if state.Done {
			return nil
		}
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d (%s) failed: %w", i+1, step.Name(), err)
		}
	}
	return nil
}
