package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koopa0/docent/internal/session"
)

// ServerConfig carries the dependencies of the HTTP boundary.
type ServerConfig struct {
	Logger   *slog.Logger
	Agent    Answerer       // required
	Pipeline Ingestor       // required
	Index    IndexStats     // required
	Sessions *session.Store // required
	Pool     *pgxpool.Pool  // optional: nil skips the DB ping in /ready

	CORSOrigins []string
	TrustProxy  bool
	RateBurst   int // per-IP burst, 0 = default 60
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a server with all routes and middleware
// configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Agent == nil {
		return nil, errors.New("agent is required")
	}
	if cfg.Pipeline == nil {
		return nil, errors.New("ingestion pipeline is required")
	}
	if cfg.Index == nil {
		return nil, errors.New("chunk index is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ch := &chatHandler{agent: cfg.Agent, logger: logger}
	ih := &ingestHandler{pipeline: cfg.Pipeline, logger: logger}
	sh := &sessionHandler{store: cfg.Sessions, logger: logger}
	st := &statsHandler{
		index:    cfg.Index,
		sessions: cfg.Sessions,
		pipeline: cfg.Pipeline,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/chat", ch.answer)
	mux.HandleFunc("POST /api/v1/ingest", ih.trigger)
	mux.HandleFunc("GET /api/v1/sessions/{id}/history", sh.history)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", sh.clear)
	mux.HandleFunc("GET /api/v1/stats", st.stats)

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Outermost first: Recovery → RequestID → Logging → CORS →
	// RateLimit → Routes. RequestID precedes Logging so the id shows
	// up in log attributes; CORS precedes RateLimit so a throttled
	// preflight still carries CORS headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Pool))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
