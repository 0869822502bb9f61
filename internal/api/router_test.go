package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/finance-categorizer/internal/domain"
	"github.com/dvloznov/finance-categorizer/internal/infra/memory"
	"github.com/dvloznov/finance-categorizer/internal/jobs"
	"github.com/dvloznov/finance-categorizer/internal/jobs/inmemory"
	"github.com/dvloznov/finance-categorizer/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPublisher struct {
	PublishFunc func(ctx context.Context, job *jobs.CategorizeFileJob) error
}

func (m *mockPublisher) PublishCategorizeFile(ctx context.Context, job *jobs.CategorizeFileJob) error {
	return m.PublishFunc(ctx, job)
}

func (m *mockPublisher) Close() error { return nil }

type failingTaxonomy struct{}

func (failingTaxonomy) Get(context.Context, string) (*domain.TaxonomyModel, error) {
	return nil, domain.ErrTaxonomyUnavailable
}

type fixture struct {
	handler  http.Handler
	jobs     *inmemory.Store
	records  *memory.RecordStore
	taxonomy *memory.TaxonomyStore
	queue    *inmemory.Queue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		jobs:     inmemory.NewStore(),
		records:  memory.NewRecordStore(),
		taxonomy: memory.NewTaxonomyStore(),
	}
	f.queue = inmemory.NewQueue(10, f.jobs)
	t.Cleanup(func() { _ = f.queue.Close() })

	var buf bytes.Buffer
	f.handler = NewRouter(Deps{
		Publisher: f.queue,
		Jobs:      f.jobs,
		Records:   f.records,
		Taxonomy:  f.taxonomy,
	}, logger.NewWithWriter(&buf))
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestEnqueueBatch(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/batches", `{"bucket":"uploads","key":"u1/jan.csv","user_id":"u1"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "gs://uploads/u1/jan.csv", body["source_uri"])
	assert.Equal(t, "pending", body["status"])

	jobID, _ := body["job_id"].(string)
	require.NotEmpty(t, jobID)

	job, err := f.jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, "u1", job.UserID)
}

func TestEnqueueBatch_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"missing user", `{"bucket":"b","key":"k"}`},
		{"missing key", `{"bucket":"b","user_id":"u1"}`},
		{"missing bucket", `{"key":"k","user_id":"u1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/batches", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	rec := f.do(t, http.MethodGet, "/api/batches", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestEnqueueBatch_QueueFailure(t *testing.T) {
	var buf bytes.Buffer
	handler := NewRouter(Deps{
		Publisher: &mockPublisher{PublishFunc: func(context.Context, *jobs.CategorizeFileJob) error {
			return errors.New("queue is closed")
		}},
		Jobs:     inmemory.NewStore(),
		Records:  memory.NewRecordStore(),
		Taxonomy: memory.NewTaxonomyStore(),
	}, logger.NewWithWriter(&buf))

	req := httptest.NewRequest(http.MethodPost, "/api/batches", strings.NewReader(`{"bucket":"b","key":"k","user_id":"u1"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListTransactions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	dates := map[string]string{"a": "2024-01-02", "b": "2024-01-01", "c": "2024-01-03"}
	for id, date := range dates {
		r, err := domain.NewPendingRecord(id, "u1", "gs://b/k", domain.Row{"date": date, "amount": "1"}, now)
		require.NoError(t, err)
		require.NoError(t, f.records.PutBatch(ctx, []*domain.TransactionRecord{r}))
	}
	require.NoError(t, f.records.UpdateStatus(ctx, domain.FailedUpdate("a")))

	rec := f.do(t, http.MethodGet, "/api/transactions?user_id=u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 2, body["count"])
	list := body["transactions"].([]interface{})
	assert.Equal(t, "b", list[0].(map[string]interface{})["transaction_id"])
	assert.Equal(t, "c", list[1].(map[string]interface{})["transaction_id"])

	rec = f.do(t, http.MethodGet, "/api/transactions?user_id=u1&status=CATEGORIZATION_FAILED", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["count"])

	rec = f.do(t, http.MethodGet, "/api/transactions?user_id=u1&status=DONE", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/transactions", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/transactions?user_id=nobody", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decode(t, rec)["count"])
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := domain.NewPendingRecord("a", "u1", "gs://b/k", domain.Row{"date": "2024-01-01", "amount": "-2.50"}, time.Now())
	require.NoError(t, err)
	require.NoError(t, f.records.PutBatch(ctx, []*domain.TransactionRecord{r}))

	rec := f.do(t, http.MethodGet, "/api/summary?user_id=u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 1, body["records"])
}

func TestGetTaxonomy(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.taxonomy.Put(context.Background(), "u1", []domain.CategoryPair{{Category: "Food", Subcategory: "Groceries"}}))

	rec := f.do(t, http.MethodGet, "/api/taxonomy?user_id=u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Groceries")

	rec = f.do(t, http.MethodGet, "/api/taxonomy?user_id=u2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var buf bytes.Buffer
	handler := NewRouter(Deps{Taxonomy: failingTaxonomy{}}, logger.NewWithWriter(&buf))
	req := httptest.NewRequest(http.MethodGet, "/api/taxonomy?user_id=u1", nil)
	out := httptest.NewRecorder()
	handler.ServeHTTP(out, req)
	assert.Equal(t, http.StatusServiceUnavailable, out.Code)
}

func TestJobsEndpoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.jobs.SaveJob(ctx, &jobs.CategorizeFileJob{JobID: "j1", UserID: "u1", Status: jobs.JobStatusCompleted, CreatedAt: time.Now()}))
	require.NoError(t, f.jobs.SaveJob(ctx, &jobs.CategorizeFileJob{JobID: "j2", UserID: "u2", Status: jobs.JobStatusFailed, CreatedAt: time.Now()}))

	rec := f.do(t, http.MethodGet, "/api/jobs/j1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "j1", decode(t, rec)["job_id"])

	rec = f.do(t, http.MethodGet, "/api/jobs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/jobs?user_id=u2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["count"])
}

func TestMiddleware(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	out := httptest.NewRecorder()
	f.handler.ServeHTTP(out, req)
	assert.Equal(t, "req-123", out.Header().Get("X-Request-ID"))

	rec = f.do(t, http.MethodOptions, "/api/batches", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
