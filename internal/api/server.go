// Package api exposes the assistant over a JSON HTTP API: query answering,
// document ingestion and management, and health probes. Routing uses the
// net/http mux with method patterns; cross-cutting concerns (recovery,
// request logging, per-IP rate limiting) are middleware.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taxaide/taxaide/internal/assistant"
	"github.com/taxaide/taxaide/internal/knowledge"
	"github.com/taxaide/taxaide/internal/log"
)

// Assistant is the surface of the core API the handlers depend on.
type Assistant interface {
	Ingest(ctx context.Context, doc knowledge.Document) ([]string, error)
	Query(ctx context.Context, question string, opts ...assistant.QueryOption) (*assistant.Response, error)
	DeleteDocument(ctx context.Context, documentID string) error
	DocumentCount(ctx context.Context) (int, error)
	ChunkCount(ctx context.Context) (int, error)
	ListDocuments(ctx context.Context, limit int) ([]knowledge.Document, error)
}

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger    log.Logger
	Assistant Assistant     // Required
	Pool      *pgxpool.Pool // Optional: nil disables DB check in /readyz

	TrustProxy bool // trust X-Real-IP/X-Forwarded-For (behind reverse proxy)
	RateRPS    int  // tokens refilled per second per IP (0 = default 5)
	RateBurst  int  // burst size per IP (0 = default 10)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates the API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Assistant == nil {
		return nil, errors.New("assistant is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	h := &handler{assistant: cfg.Assistant, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/query", h.query)
	mux.HandleFunc("POST /api/v1/documents", h.ingestDocument)
	mux.HandleFunc("GET /api/v1/documents", h.listDocuments)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", h.deleteDocument)
	mux.HandleFunc("GET /api/v1/stats", h.stats)

	rps := cfg.RateRPS
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 10
	}
	rl := newRateLimiter(float64(rps), burst)

	// Middleware stack, outermost first: Recovery → Logging → RateLimit.
	var wrapped http.Handler = mux
	wrapped = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(wrapped)
	wrapped = loggingMiddleware(logger)(wrapped)
	wrapped = recoveryMiddleware(logger)(wrapped)

	// Health probes bypass the middleware stack so rate limiting can never
	// starve orchestrator probes.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /healthz", healthz)
	topMux.Handle("GET /readyz", readyz(cfg.Pool, logger))
	topMux.Handle("/", wrapped)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// healthz is a liveness probe.
func healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, log.NewNop())
}

// readyz reports readiness, including a database ping when a pool is
// configured.
func readyz(pool *pgxpool.Pool, logger log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if pool != nil {
			if err := pool.Ping(r.Context()); err != nil {
				logger.Warn("readiness check failed", "error", err)
				writeError(w, http.StatusServiceUnavailable, "not_ready", "database unavailable", logger)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"}, logger)
	})
}
