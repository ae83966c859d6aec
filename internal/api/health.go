package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// health answers liveness probes.
func health(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"}, slog.Default())
}

// readiness answers readiness probes. With a pool configured it pings
// the database; a nil pool (tests, degraded wiring) reports ready.
func readiness(pool *pgxpool.Pool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if pool != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := pool.Ping(ctx); err != nil {
				WriteError(w, http.StatusServiceUnavailable, "not_ready", "database unreachable", slog.Default())
				return
			}
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"}, slog.Default())
	})
}
