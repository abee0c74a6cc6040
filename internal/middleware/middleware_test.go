package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/mixtape/internal/metrics"
)

func newTestRouter(logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(Logger(logger))
	r.Use(Metrics)

	r.Get("/api/playlists/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	})
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	return r
}

func TestLogger_RecordsRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	router := newTestRouter(logger)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/playlists/pl_123", nil))

	require.Equal(t, http.StatusTeapot, rec.Code)
	line := buf.String()
	assert.Contains(t, line, `"status":418`)
	assert.Contains(t, line, `"route":"/api/playlists/{id}"`)
	assert.Contains(t, line, `"path":"/api/playlists/pl_123"`)
	assert.Contains(t, line, `"bytes":15`)
	assert.Contains(t, line, `"request_id":"`)
	assert.Contains(t, line, `"level":"INFO"`)
}

func TestLogger_ServerErrorsLogAtError(t *testing.T) {
	var buf bytes.Buffer
	router := newTestRouter(slog.New(slog.NewJSONHandler(&buf, nil)))

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Contains(t, buf.String(), `"level":"ERROR"`)
}

func TestMetrics_CountsByRoutePattern(t *testing.T) {
	router := newTestRouter(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	counter := metrics.HTTPRequests.WithLabelValues("/api/playlists/{id}", "GET", "418")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"a", "b", "c"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/playlists/"+id, nil))
	}

	assert.Equal(t, before+3, testutil.ToFloat64(counter))
}

func TestResponseWriter_FirstStatusWins(t *testing.T) {
	rw := wrap(httptest.NewRecorder())
	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusInternalServerError)
	assert.Equal(t, http.StatusCreated, rw.statusCode)

	// Wrapping twice reuses the same recorder.
	assert.Same(t, rw, wrap(rw))
}
