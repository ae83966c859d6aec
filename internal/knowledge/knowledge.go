// Package knowledge stores document chunks and their embeddings in
// PostgreSQL with pgvector, and answers similarity searches over them.
//
// The store embeds through the configured provider and fails fast when
// the provider fails: no chunk is ever written with a placeholder
// vector, and a search never silently degrades to garbage matches.
package knowledge

import (
	"errors"
	"time"
)

// Sentinel errors for store operations. Check with errors.Is().
var (
	// ErrEmbeddingProvider wraps any failure of the embedding provider.
	// Writes abort without touching the index; searches abort without
	// results.
	ErrEmbeddingProvider = errors.New("embedding provider failed")

	// ErrDimensionMismatch reports an embedding whose width differs
	// from the configured vector column.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrRetrievalTimeout reports a similarity search that exceeded its
	// deadline.
	ErrRetrievalTimeout = errors.New("retrieval timed out")
)

const (
	// DefaultTopK is the result count used when a search does not set one.
	DefaultTopK = 5

	// MaxTopK caps how many results one search may request.
	MaxTopK = 50

	// maxQueryBytes caps the text embedded for a search query.
	maxQueryBytes = 8192

	// embedBatchSize is how many chunks are sent to the provider per
	// embedding request during ingestion.
	embedBatchSize = 100

	defaultEmbedTimeout  = 30 * time.Second
	defaultSearchTimeout = 10 * time.Second
	defaultDimension     = 768
)

// Result is one retrieved chunk with its cosine similarity to the
// query, in [0, 1] where 1 is an exact match.
type Result struct {
	ID         string
	Source     string
	Page       int
	Content    string
	Similarity float64
}

// Stats summarizes the index contents.
type Stats struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
}

// SearchOption configures a single search.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK      int
	threshold float64
}

// WithTopK sets the maximum number of results, clamped to [1, MaxTopK].
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		c.topK = k
	}
}

// WithThreshold sets the minimum cosine similarity a result must reach.
// Values are clamped to [0, 1].
func WithThreshold(min float64) SearchOption {
	return func(c *searchConfig) {
		c.threshold = min
	}
}

// ResolveOptions reports the effective top-k and threshold a search
// would use for the given options, after defaulting and clamping.
// Collaborators use it to observe per-call overrides without reaching
// into the store.
func ResolveOptions(opts ...SearchOption) (topK int, threshold float64) {
	cfg := buildSearchConfig(0, opts)
	return cfg.topK, cfg.threshold
}

// buildSearchConfig applies options over the store defaults and clamps
// the outcome to valid ranges.
func buildSearchConfig(threshold float64, opts []SearchOption) searchConfig {
	cfg := searchConfig{
		topK:      DefaultTopK,
		threshold: threshold,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.topK < 1 {
		cfg.topK = DefaultTopK
	}
	if cfg.topK > MaxTopK {
		cfg.topK = MaxTopK
	}
	if cfg.threshold < 0 {
		cfg.threshold = 0
	}
	if cfg.threshold > 1 {
		cfg.threshold = 1
	}
	return cfg
}
