package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/koopa0/docent/db"
	"github.com/koopa0/docent/internal/agent"
	"github.com/koopa0/docent/internal/chunk"
	"github.com/koopa0/docent/internal/config"
	"github.com/koopa0/docent/internal/ingest"
	"github.com/koopa0/docent/internal/knowledge"
	"github.com/koopa0/docent/internal/session"
)

// Setup builds the full application from configuration. On any
// failure, everything already initialized is torn down before the
// error returns.
//
// The returned App owns a background session sweeper; Close stops it.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	g, err := provideGenkit(ctx)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	a.Embedder = provideEmbedder(g, cfg)
	if a.Embedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}

	a.Knowledge, err = knowledge.NewStore(pool, a.Embedder, knowledge.Config{
		Dimension:     cfg.EmbeddingDimension,
		EmbedTimeout:  cfg.EmbedTimeout,
		SearchTimeout: cfg.SearchTimeout,
	}, logger.With("component", "knowledge"))
	if err != nil {
		return nil, fmt.Errorf("creating knowledge store: %w", err)
	}

	a.Sessions = session.NewStore(cfg.MaxHistoryPairs, cfg.SessionTimeout)

	a.Agent, err = agent.New(agent.Config{
		Genkit:   g,
		Searcher: a.Knowledge,
		Sessions: a.Sessions,
		Logger:   logger.With("component", "agent"),

		ModelName:   cfg.FullModelName(),
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		MaxTokens:   cfg.MaxTokens,

		TopK:            cfg.TopK,
		Threshold:       cfg.SimilarityThreshold,
		StrictThreshold: cfg.StrictThreshold,

		ClassifyTimeout: cfg.ClassifyTimeout,
		GenerateTimeout: cfg.GenerateTimeout,
		LockTimeout:     cfg.LockTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("creating agent: %w", err)
	}

	a.Pipeline, err = ingest.New(a.Knowledge, chunk.Config{
		Size:    cfg.ChunkSize,
		Overlap: cfg.ChunkOverlap,
	}, logger.With("component", "ingest"))
	if err != nil {
		return nil, fmt.Errorf("creating ingestion pipeline: %w", err)
	}

	// Idle-session eviction runs for the life of the App.
	sweepCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel
	sweeper := session.NewSweeper(a.Sessions, cfg.SweepInterval, logger.With("component", "sweeper"))
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		sweeper.Run(sweepCtx)
	}()

	return a, nil
}

// provideOtelShutdown wires OTLP trace export when an endpoint is
// configured. Returns the shutdown function, or a no-op when tracing
// is disabled or the exporter cannot be built (tracing is never worth
// failing startup over).
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger *slog.Logger) func() {
	if cfg.OTLPEndpoint == "" {
		return func() {}
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("creating OTLP exporter, tracing disabled", "error", err)
		return func() {}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
	)
	logger.Debug("trace export enabled", "endpoint", cfg.OTLPEndpoint)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideGenkit initializes Genkit with the Google AI plugin. The
// plugin reads GEMINI_API_KEY from the environment itself.
func provideGenkit(ctx context.Context) (*genkit.Genkit, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit with googleai plugin")
	}
	return g, nil
}

// provideEmbedder looks up the embedder registered by the plugin.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
}

// provideDBPool runs migrations, then opens a tuned connection pool
// and verifies it with a ping.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}
