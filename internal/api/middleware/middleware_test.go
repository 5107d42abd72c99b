package middleware_test

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/reconcile-backend/internal/api/middleware"
	"github.com/eshaffer321/reconcile-backend/internal/infrastructure/config"
)

// newRouter mounts a few reconciliation routes behind the same middleware
// chain the API server uses.
func newRouter(cors middleware.CORSConfig, logs *bytes.Buffer) chi.Router {
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.CORS(cors))
	r.Use(middleware.Logging(logger))

	r.Post("/api/matches/{id}/reverse", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "id") == "M404" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"` + chi.URLParam(r, "id") + `","reversed":true}`))
	})
	r.Delete("/api/auto-match/jobs/{jobId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})
	r.Get("/api/discrepancies", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	return r
}

func serve(r http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestLogging(t *testing.T) {
	t.Run("logs reversal with path status and request id", func(t *testing.T) {
		var logs bytes.Buffer
		r := newRouter(middleware.DefaultCORSConfig(), &logs)

		rec := serve(r, http.MethodPost, "/api/matches/M1/reverse", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"id":"M1","reversed":true}`, rec.Body.String())

		line := logs.String()
		assert.Contains(t, line, "level=INFO")
		assert.Contains(t, line, "method=POST")
		assert.Contains(t, line, "path=/api/matches/M1/reverse")
		assert.Contains(t, line, "status=200")
		assert.Contains(t, line, "request_id=")
	})

	t.Run("client errors log at warn", func(t *testing.T) {
		var logs bytes.Buffer
		r := newRouter(middleware.DefaultCORSConfig(), &logs)

		rec := serve(r, http.MethodPost, "/api/matches/M404/reverse", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = serve(r, http.MethodDelete, "/api/auto-match/jobs/job-1", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)

		out := logs.String()
		assert.Contains(t, out, "level=WARN")
		assert.Contains(t, out, "status=404")
		assert.Contains(t, out, "path=/api/auto-match/jobs/job-1")
		assert.Contains(t, out, "status=409")
		assert.NotContains(t, out, "level=INFO")
	})

	t.Run("server errors log at error", func(t *testing.T) {
		var logs bytes.Buffer
		r := newRouter(middleware.DefaultCORSConfig(), &logs)

		rec := serve(r, http.MethodGet, "/api/discrepancies", nil)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, logs.String(), "level=ERROR")
		assert.Contains(t, logs.String(), "status=500")
	})
}

func TestCORS(t *testing.T) {
	cors := middleware.NewCORSConfig(config.APIConfig{
		AllowedOrigins: []string{"https://books.example.com"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
		CORSMaxAge:     300,
	})

	var logs bytes.Buffer
	r := newRouter(cors, &logs)
	const origin = "https://books.example.com"

	t.Run("sets headers on a reversal from an allowed origin", func(t *testing.T) {
		rec := serve(r, http.MethodPost, "/api/matches/M1/reverse", map[string]string{"Origin": origin})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, origin, rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
		assert.Equal(t, "X-Request-Id", rec.Header().Get("Access-Control-Expose-Headers"))
		assert.Equal(t, "Origin", rec.Header().Get("Vary"))
	})

	t.Run("leaves headers off for an unknown origin", func(t *testing.T) {
		rec := serve(r, http.MethodPost, "/api/matches/M1/reverse", map[string]string{"Origin": "http://evil.com"})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("answers preflight for a configured method", func(t *testing.T) {
		rec := serve(r, http.MethodOptions, "/api/matches/M1/reverse", map[string]string{
			"Origin":                        origin,
			"Access-Control-Request-Method": "POST",
		})

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, origin, rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "GET, POST", rec.Header().Get("Access-Control-Allow-Methods"))
		assert.Equal(t, "Content-Type", rec.Header().Get("Access-Control-Allow-Headers"))
		assert.Equal(t, "300", rec.Header().Get("Access-Control-Max-Age"))
	})

	t.Run("rejects preflight for job cancellation when DELETE is not configured", func(t *testing.T) {
		rec := serve(r, http.MethodOptions, "/api/auto-match/jobs/job-1", map[string]string{
			"Origin":                        origin,
			"Access-Control-Request-Method": "DELETE",
		})

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Methods"))
	})

	t.Run("rejects preflight from an unknown origin", func(t *testing.T) {
		rec := serve(r, http.MethodOptions, "/api/matches/M1/reverse", map[string]string{
			"Origin":                        "http://evil.com",
			"Access-Control-Request-Method": "POST",
		})

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestNewCORSConfig(t *testing.T) {
	t.Run("takes lists from the api config", func(t *testing.T) {
		cfg := config.LoadFromEnv()
		cors := middleware.NewCORSConfig(cfg.API)

		assert.Equal(t, cfg.API.AllowedOrigins, cors.AllowedOrigins)
		assert.Equal(t, cfg.API.AllowedMethods, cors.AllowedMethods)
		assert.Equal(t, cfg.API.AllowedHeaders, cors.AllowedHeaders)
		assert.Equal(t, cfg.API.CORSMaxAge, cors.MaxAge)
	})

	t.Run("falls back to defaults for empty lists", func(t *testing.T) {
		cors := middleware.NewCORSConfig(config.APIConfig{})
		defaults := middleware.DefaultCORSConfig()

		require.NotEmpty(t, cors.AllowedMethods)
		assert.Equal(t, defaults, cors)
	})
}
