package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dvloznov/finance-categorizer/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chain(log *bytes.Buffer, h http.Handler) http.Handler {
	l := logger.NewWithWriter(log)
	return RequestID(Logger(l)(Recovery(l)(h)))
}

func TestRecovery_LogsPanicWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	h := chain(&buf, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil taxonomy")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/taxonomy", nil)
	req.Header.Set(RequestIDHeader, "req-9")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())
	assert.Equal(t, "req-9", rec.Header().Get(RequestIDHeader))

	out := buf.String()
	assert.Contains(t, out, `"message":"Panic recovered"`)
	assert.Contains(t, out, `"panic":"nil taxonomy"`)
	assert.Contains(t, out, `"status":500`)
	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte(`"request_id":"req-9"`)))
}

func TestLogger_RequestLoggerInContext(t *testing.T) {
	var buf bytes.Buffer
	h := chain(&buf, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, RequestIDFromContext(r.Context()))
		log := logger.FromContext(r.Context())
		log.Info().Msg("handling")
		w.WriteHeader(http.StatusAccepted)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/batches", nil))

	require.Equal(t, http.StatusAccepted, rec.Code)
	id := rec.Header().Get(RequestIDHeader)
	require.NotEmpty(t, id)

	out := buf.String()
	assert.Contains(t, out, `"message":"handling"`)
	assert.Contains(t, out, `"status":202`)
	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte(`"request_id":"`+id+`"`)))
}
