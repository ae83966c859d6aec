// Package agent routes each incoming message through the answering
// pipeline: classify, optionally retrieve evidence from the chunk
// index, synthesize a grounded response, and persist the exchange to
// conversation memory.
//
// Per turn the agent walks CLASSIFY, then either RETRIEVE followed by
// evidence-grounded synthesis or memory-only synthesis, then PERSIST.
// Retrieval failures degrade to memory-only answers and are flagged to
// the caller; generation failures are fatal for the turn and persist
// nothing. Citations exist only for passages that were actually fed to
// the generator.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/koopa0/docent/internal/knowledge"
	"github.com/koopa0/docent/internal/session"
)

// Default provider-call budgets, used when Config leaves them zero.
const (
	defaultClassifyTimeout = 10 * time.Second
	defaultGenerateTimeout = 60 * time.Second
	defaultLockTimeout     = 10 * time.Second
)

// Searcher is the slice of the chunk index the agent depends on.
// *knowledge.Store satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.Result, error)
}

// Config carries the agent's dependencies and tunables.
type Config struct {
	Genkit   *genkit.Genkit
	Searcher Searcher
	Sessions *session.Store
	Logger   *slog.Logger

	// ModelName is the provider-qualified generation model id.
	ModelName   string
	Temperature float32
	TopP        float32
	MaxTokens   int

	// Retrieval tunables. Threshold applies to conversational
	// retrieval, StrictThreshold to fact-seeking policy questions.
	TopK            int
	Threshold       float64
	StrictThreshold float64

	// Provider call budgets. Zero values use the package defaults.
	ClassifyTimeout time.Duration
	GenerateTimeout time.Duration
	LockTimeout     time.Duration

	// Resilience. Zero values use the package defaults; a nil
	// RateLimiter gets a shared 10 rps / burst 30 limiter.
	RetryConfig          RetryConfig
	CircuitBreakerConfig CircuitBreakerConfig
	RateLimiter          *rate.Limiter
}

func (cfg Config) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.Searcher == nil {
		return errors.New("searcher is required")
	}
	if cfg.Sessions == nil {
		return errors.New("session store is required")
	}
	if cfg.ModelName == "" {
		return errors.New("model name is required")
	}
	return nil
}

// Agent answers questions for concurrent sessions. All configuration
// is captured immutably at construction; Agent is safe for concurrent
// use.
type Agent struct {
	g        *genkit.Genkit
	searcher Searcher
	sessions *session.Store
	logger   *slog.Logger

	modelName   string
	temperature float32
	topP        float32
	maxTokens   int32

	topK            int
	threshold       float64
	strictThreshold float64

	classifyTimeout time.Duration
	generateTimeout time.Duration
	lockTimeout     time.Duration

	retryConfig RetryConfig
	breaker     *CircuitBreaker
	rateLimiter *rate.Limiter

	locks *sessionLocks
}

// New creates an Agent.
func New(cfg Config) (*Agent, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.ClassifyTimeout <= 0 {
		cfg.ClassifyTimeout = defaultClassifyTimeout
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = defaultGenerateTimeout
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = defaultLockTimeout
	}
	if cfg.TopK <= 0 {
		cfg.TopK = knowledge.DefaultTopK
	}
	if cfg.RetryConfig.MaxRetries == 0 {
		cfg.RetryConfig = DefaultRetryConfig()
	}
	if cfg.RateLimiter == nil {
		cfg.RateLimiter = rate.NewLimiter(10, 30)
	}

	a := &Agent{
		g:        cfg.Genkit,
		searcher: cfg.Searcher,
		sessions: cfg.Sessions,
		logger:   logger,

		modelName:   cfg.ModelName,
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
		maxTokens:   int32(cfg.MaxTokens),

		topK:            cfg.TopK,
		threshold:       cfg.Threshold,
		strictThreshold: cfg.StrictThreshold,

		classifyTimeout: cfg.ClassifyTimeout,
		generateTimeout: cfg.GenerateTimeout,
		lockTimeout:     cfg.LockTimeout,

		retryConfig: cfg.RetryConfig,
		breaker:     NewCircuitBreaker(cfg.CircuitBreakerConfig),
		rateLimiter: cfg.RateLimiter,

		locks: newSessionLocks(),
	}

	logger.Info("agent initialized",
		"model", a.modelName,
		"top_k", a.topK,
		"threshold", a.threshold,
		"strict_threshold", a.strictThreshold)
	return a, nil
}

// Answer runs one full turn for a session.
//
// Validation failures and lock timeouts reject the turn before any
// side effect. Once past them, the exchange is persisted for every
// completed answer, including memory-only, no-evidence, and degraded
// ones; only a generation failure leaves the session untouched.
func (a *Agent) Answer(ctx context.Context, req Request) (Response, error) {
	if err := req.validate(); err != nil {
		return Response{}, err
	}

	release, err := a.locks.acquire(ctx, req.SessionID, a.lockTimeout)
	if err != nil {
		return Response{}, err
	}
	defer release()

	// The store is the canonical history. A caller-supplied override
	// only seeds a session the store has never seen.
	if len(req.History) > 0 {
		if a.sessions.Seed(req.SessionID, req.History) {
			a.logger.Debug("seeded session from caller history",
				"session_id", req.SessionID, "messages", len(req.History))
		} else {
			a.logger.Debug("ignoring caller history for existing session",
				"session_id", req.SessionID)
		}
	}
	history := a.sessions.History(req.SessionID)

	decision := a.classify(ctx, req.Message, history)
	a.logger.Info("message classified",
		"session_id", req.SessionID,
		"route", decision.String(),
		"history_len", len(history))

	var (
		answer    string
		results   []knowledge.Result
		retrieved bool
		degraded  bool
	)

	switch decision {
	case routeSocial:
		answer = socialResponse(req.Message)

	case routeMemory:
		answer, err = a.synthesize(ctx, req.Message, history, nil)
		if err != nil {
			return Response{}, err
		}

	case routeRetrieve, routeRetrieveStrict:
		threshold := a.threshold
		if decision == routeRetrieveStrict {
			threshold = a.strictThreshold
		}

		results, err = a.searcher.Search(ctx, req.Message,
			knowledge.WithTopK(a.topK),
			knowledge.WithThreshold(threshold),
		)
		switch {
		case err != nil:
			// Retrieval failure degrades to a memory-only answer. The
			// flag travels to the caller; hiding it would dress up a
			// blind answer as a grounded one.
			a.logger.Warn("retrieval failed, degrading to memory-only answer",
				"session_id", req.SessionID, "error", err)
			degraded = true
			results = nil
			answer, err = a.synthesize(ctx, req.Message, history, nil)
			if err != nil {
				return Response{}, err
			}

		case len(results) == 0:
			// Nothing cleared the threshold. Saying so beats making
			// claims no source supports.
			a.logger.Info("no passage cleared the threshold",
				"session_id", req.SessionID, "threshold", threshold)
			answer = noEvidenceResponse

		default:
			retrieved = true
			answer, err = a.synthesize(ctx, req.Message, history, results)
			if err != nil {
				return Response{}, err
			}
		}
	}

	sources := citationsFor(results)
	now := time.Now()
	a.sessions.AppendExchange(req.SessionID,
		session.Message{Role: session.RoleUser, Content: req.Message, Time: now},
		session.Message{Role: session.RoleModel, Content: answer, Time: now, Sources: sources},
	)

	return Response{
		SessionID: req.SessionID,
		Answer:    answer,
		Sources:   sources,
		Retrieved: retrieved,
		Degraded:  degraded,
		Timestamp: now,
	}, nil
}

// Sessions exposes the agent's conversation store for the HTTP layer's
// session endpoints.
func (a *Agent) Sessions() *session.Store {
	return a.sessions
}
