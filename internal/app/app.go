// Package app builds the categorizer's collaborators from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/finance-categorizer/internal/config"
	"github.com/dvloznov/finance-categorizer/internal/domain"
	infraBQ "github.com/dvloznov/finance-categorizer/internal/infra/bigquery"
	"github.com/dvloznov/finance-categorizer/internal/infra/memory"
	infraMongo "github.com/dvloznov/finance-categorizer/internal/infra/mongo"
	"github.com/dvloznov/finance-categorizer/internal/infra/sqlite"
	"github.com/dvloznov/finance-categorizer/internal/logger"
	"github.com/dvloznov/finance-categorizer/internal/pipeline"
	"github.com/dvloznov/finance-categorizer/internal/source"
)

// TaxonomyWriter stores category pairs for a user. The BigQuery backend has
// none; its categories table is managed outside the categorizer.
type TaxonomyWriter interface {
	Put(ctx context.Context, userID string, pairs []domain.CategoryPair) error
}

// App owns the stores and, once requested, the pipeline.
type App struct {
	cfg *config.Config

	Records pipeline.RecordStore
	// Taxonomy is the store the pipeline reads, wrapped with the default
	// taxonomy when that is enabled.
	Taxonomy       pipeline.TaxonomyStore
	TaxonomyWriter TaxonomyWriter

	model   pipeline.ModelClient
	fetcher source.Fetcher

	mu       sync.Mutex
	pipeline *pipeline.Pipeline
	closers  []func(context.Context) error
}

// Option customizes New.
type Option func(*App)

// WithModel replaces the Gemini client.
func WithModel(m pipeline.ModelClient) Option {
	return func(a *App) { a.model = m }
}

// WithFetcher replaces the configured object fetcher.
func WithFetcher(f source.Fetcher) Option {
	return func(a *App) { a.fetcher = f }
}

// New opens the configured backend. The fetcher and model client are only
// created by Pipeline, so read-only commands never need them.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.openStores(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	if cfg.DefaultTaxonomy.Enabled {
		a.Taxonomy = &pipeline.FallbackTaxonomyStore{
			Store:    a.Taxonomy,
			Defaults: cfg.DefaultTaxonomy.Categories,
		}
	}
	return a, nil
}

func (a *App) openStores(ctx context.Context) error {
	log := logger.FromContext(ctx)
	cfg := a.cfg

	switch cfg.Backend {
	case config.BackendBigQuery:
		stores, err := infraBQ.Open(ctx, cfg.ProjectID, cfg.BigQuery.Dataset, cfg.BigQuery.TransactionsTable, cfg.BigQuery.CategoriesTable)
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return stores.Close() })
		a.Records = stores.Records
		a.Taxonomy = stores.Taxonomy

	case config.BackendMongo:
		stores, err := infraMongo.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		a.closers = append(a.closers, stores.Close)
		a.Records = stores.Records
		a.Taxonomy = stores.Taxonomy
		a.TaxonomyWriter = stores.Taxonomy

	case config.BackendSQLite:
		db, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return db.Close() })
		a.Records = db.Records
		a.Taxonomy = db.Taxonomy
		a.TaxonomyWriter = db.Taxonomy

	case config.BackendMemory:
		taxonomy := memory.NewTaxonomyStore()
		a.Records = memory.NewRecordStore()
		a.Taxonomy = taxonomy
		a.TaxonomyWriter = taxonomy

	default:
		return fmt.Errorf("app: unknown backend %q", cfg.Backend)
	}

	log.Info().Str("backend", cfg.Backend).Msg("Stores ready")
	return nil
}

// Pipeline builds the pipeline on first use.
func (a *App) Pipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pipeline != nil {
		return a.pipeline, nil
	}

	cfg := a.cfg
	if a.fetcher == nil {
		if cfg.Source.LocalRoot != "" {
			a.fetcher = source.LocalFetcher{Root: cfg.Source.LocalRoot}
		} else {
			client, err := storage.NewClient(ctx)
			if err != nil {
				return nil, fmt.Errorf("app: creating storage client: %w", err)
			}
			a.closers = append(a.closers, func(context.Context) error { return client.Close() })
			a.fetcher = source.NewGCSFetcher(client)
		}
	}

	if a.model == nil {
		model, err := pipeline.NewGeminiClient(ctx, pipeline.GeminiConfig{
			Project:         cfg.ProjectID,
			Location:        cfg.Model.Location,
			Vertex:          cfg.Model.Vertex,
			APIVersion:      cfg.Model.APIVersion,
			Model:           cfg.Model.Name,
			Temperature:     cfg.Model.Temperature,
			MaxOutputTokens: cfg.Model.MaxOutputTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		a.model = model
	}

	policy, err := pipeline.ParseConfidencePolicy(cfg.Parser.ConfidencePolicy)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	p, err := pipeline.New(pipeline.Deps{
		Ingestor: source.NewCSVReader(a.fetcher),
		Records:  a.Records,
		Taxonomy: a.Taxonomy,
		Model:    a.model,
	}, pipeline.Options{
		Timeouts: pipeline.Timeouts{
			Source:   cfg.Timeouts.Source,
			Store:    cfg.Timeouts.Store,
			Taxonomy: cfg.Timeouts.Taxonomy,
			Model:    cfg.Timeouts.Model,
		},
		ConfidencePolicy: policy,
	})
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	a.pipeline = p
	return p, nil
}

// Run categorizes the file at uri for userID.
func (a *App) Run(ctx context.Context, userID, uri string) (*pipeline.Outcome, error) {
	loc, err := source.ParseURI(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMalformedInput, err)
	}
	p, err := a.Pipeline(ctx)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, pipeline.Batch{UserID: userID, Source: loc})
}

// Close releases every client in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
