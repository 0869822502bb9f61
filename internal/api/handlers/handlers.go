package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dvloznov/finance-categorizer/internal/api/middleware"
	"github.com/dvloznov/finance-categorizer/internal/domain"
	"github.com/dvloznov/finance-categorizer/internal/jobs"
	"github.com/dvloznov/finance-categorizer/internal/report"
	"github.com/dvloznov/finance-categorizer/internal/source"
	"github.com/rs/zerolog"
)

// TaxonomyReader is the read side of a taxonomy store.
type TaxonomyReader interface {
	Get(ctx context.Context, userID string) (*domain.TaxonomyModel, error)
}

// BatchesHandler turns uploaded-file notifications into categorization jobs.
type BatchesHandler struct {
	publisher jobs.Publisher
	log       zerolog.Logger
}

// NewBatchesHandler creates a new batches handler.
func NewBatchesHandler(publisher jobs.Publisher, log zerolog.Logger) *BatchesHandler {
	return &BatchesHandler{
		publisher: publisher,
		log:       log,
	}
}

// EnqueueBatch handles POST /api/batches
func (h *BatchesHandler) EnqueueBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Bucket string `json:"bucket"`
		Key    string `json:"key"`
		UserID string `json:"user_id"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.UserID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	loc := source.Location{Bucket: req.Bucket, Key: req.Key}
	if err := loc.Validate(); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "bucket and key are required")
		return
	}

	ctx := r.Context()

	job := &jobs.CategorizeFileJob{
		UserID:    req.UserID,
		SourceURI: loc.String(),
	}

	if err := h.publisher.PublishCategorizeFile(ctx, job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue categorization job")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue categorization job")
		return
	}

	h.log.Info().
		Str("job_id", job.JobID).
		Str("user_id", job.UserID).
		Str("source_uri", job.SourceURI).
		Msg("Categorization job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":     job.JobID,
		"source_uri": job.SourceURI,
		"status":     string(job.Status),
	})
}

// TransactionsHandler serves record diagnostics.
type TransactionsHandler struct {
	records report.RecordFinder
	log     zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(records report.RecordFinder, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		records: records,
		log:     log,
	}
}

// ListTransactions handles GET /api/transactions?user_id=&status=
// status defaults to PENDING.
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	userID := query.Get("user_id")
	if userID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	status := domain.StatusPending
	if s := query.Get("status"); s != "" {
		parsed, err := domain.ParseStatus(s)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid status")
			return
		}
		status = parsed
	}

	records, err := h.records.FindByUserAndStatus(ctx, userID, status)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to query transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to query transactions")
		return
	}

	if records == nil {
		records = []*domain.TransactionRecord{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": records,
		"count":        len(records),
	})
}

// Summary handles GET /api/summary?user_id=
func (h *TransactionsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	records, err := report.Load(ctx, h.records, userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to load transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load transactions")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, report.Summarize(records))
}

// TaxonomyHandler serves a user's categories.
type TaxonomyHandler struct {
	taxonomy TaxonomyReader
	log      zerolog.Logger
}

// NewTaxonomyHandler creates a new taxonomy handler.
func NewTaxonomyHandler(taxonomy TaxonomyReader, log zerolog.Logger) *TaxonomyHandler {
	return &TaxonomyHandler{
		taxonomy: taxonomy,
		log:      log,
	}
}

// GetTaxonomy handles GET /api/taxonomy?user_id=
func (h *TaxonomyHandler) GetTaxonomy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	taxonomy, err := h.taxonomy.Get(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to get taxonomy")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Taxonomy unavailable")
		return
	}
	if taxonomy.IsEmpty() {
		middleware.WriteError(w, http.StatusNotFound, "No taxonomy configured for user")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, taxonomy)
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Parse query parameters
	query := r.URL.Query()
	filter := jobs.JobFilter{
		UserID: query.Get("user_id"),
		Status: jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
