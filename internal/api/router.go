// Package api exposes the categorization trigger and diagnostics over HTTP.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/finance-categorizer/internal/api/handlers"
	"github.com/dvloznov/finance-categorizer/internal/api/middleware"
	"github.com/dvloznov/finance-categorizer/internal/jobs"
	"github.com/dvloznov/finance-categorizer/internal/report"
	"github.com/rs/zerolog"
)

// Deps are the collaborators behind the HTTP endpoints.
type Deps struct {
	Publisher jobs.Publisher
	Jobs      jobs.JobStore
	Records   report.RecordFinder
	Taxonomy  handlers.TaxonomyReader
}

// NewRouter registers every endpoint and wraps the mux in the middleware
// chain.
func NewRouter(deps Deps, log zerolog.Logger) http.Handler {
	batchesHandler := handlers.NewBatchesHandler(deps.Publisher, log)
	transactionsHandler := handlers.NewTransactionsHandler(deps.Records, log)
	taxonomyHandler := handlers.NewTaxonomyHandler(deps.Taxonomy, log)
	jobsHandler := handlers.NewJobsHandler(deps.Jobs, log)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/batches", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			batchesHandler.EnqueueBatch(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/transactions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			transactionsHandler.ListTransactions(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/summary", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			transactionsHandler.Summary(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/taxonomy", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			taxonomyHandler.GetTaxonomy(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			jobsHandler.GetJob(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})

	return middleware.RequestID(
		middleware.Logger(log)(
			middleware.Recovery(log)(
				middleware.CORS(mux),
			),
		),
	)
}
