// Package app assembles docent's components into a running
// application: configuration in, a wired Agent, ingestion pipeline,
// and HTTP dependencies out.
//
// Setup builds everything through small provider functions and cleans
// up anything already built when a later step fails. Close releases
// resources in reverse order of construction.
package app

import (
	"context"
	"log/slog"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koopa0/docent/internal/agent"
	"github.com/koopa0/docent/internal/config"
	"github.com/koopa0/docent/internal/ingest"
	"github.com/koopa0/docent/internal/knowledge"
	"github.com/koopa0/docent/internal/session"
)

// App is the application container. All fields are initialized by
// Setup and immutable afterwards.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	Knowledge *knowledge.Store
	Sessions  *session.Store
	Agent     *agent.Agent
	Pipeline  *ingest.Pipeline

	// lifecycle
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	otelCleanup func()
	closeOnce   sync.Once
}

// Close stops background work and releases resources. Safe to call
// more than once and on a partially built App.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		if a.Logger != nil {
			a.Logger.Info("shutting down application")
		}

		if a.cancel != nil {
			a.cancel()
		}
		a.wg.Wait()

		if a.DBPool != nil {
			a.DBPool.Close()
		}
		if a.otelCleanup != nil {
			a.otelCleanup()
		}
	})
	return nil
}
