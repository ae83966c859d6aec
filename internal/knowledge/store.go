package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"google.golang.org/genai"

	"github.com/koopa0/docent/internal/chunk"
)

// Embedder is the slice of the embedding provider the store depends
// on. ai.Embedder satisfies it.
type Embedder interface {
	Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error)
}

// chunkCols is the standard SELECT column list for scanResults.
const chunkCols = `id, source, page, content`

// insertChunkSQL relies on ON CONFLICT so that a chunk surviving from
// an earlier ingestion run is skipped, not duplicated.
const insertChunkSQL = `INSERT INTO chunks (id, source, page, content, embedding)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id) DO NOTHING`

// ingestLockKey serializes chunk writes across processes through a
// transaction-scoped advisory lock.
const ingestLockKey = "docent:ingest"

// Config carries the store's tunables. Zero values fall back to the
// package defaults.
type Config struct {
	// Dimension is the vector width and must match the embedding
	// column in the schema.
	Dimension     int
	EmbedTimeout  time.Duration
	SearchTimeout time.Duration
}

// Store manages the chunk index backed by PostgreSQL + pgvector.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool          *pgxpool.Pool
	embedder      Embedder
	logger        *slog.Logger
	dim           int
	embedTimeout  time.Duration
	searchTimeout time.Duration
}

// NewStore creates a chunk Store.
func NewStore(pool *pgxpool.Pool, embedder Embedder, cfg Config, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = defaultDimension
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = defaultEmbedTimeout
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = defaultSearchTimeout
	}
	return &Store{
		pool:          pool,
		embedder:      embedder,
		logger:        logger,
		dim:           cfg.Dimension,
		embedTimeout:  cfg.EmbedTimeout,
		searchTimeout: cfg.SearchTimeout,
	}, nil
}

// Dimension returns the configured vector width.
func (s *Store) Dimension() int {
	return s.dim
}

// embedBatch embeds texts in provider-sized batches, preserving input
// order. Any provider failure aborts the whole call: a placeholder
// vector in the index would poison every later search.
func (s *Store) embedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	vecs := make([]pgvector.Vector, 0, len(texts))
	dim := int32(s.dim)

	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		input := make([]*ai.Document, len(batch))
		for i, t := range batch {
			input[i] = ai.DocumentFromText(t, nil)
		}

		embedCtx, cancel := context.WithTimeout(ctx, s.embedTimeout)
		resp, err := s.embedder.Embed(embedCtx, &ai.EmbedRequest{
			Input:   input,
			Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
		})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEmbeddingProvider, err)
		}
		if len(resp.Embeddings) != len(batch) {
			return nil, fmt.Errorf("%w: got %d embeddings for %d inputs",
				ErrEmbeddingProvider, len(resp.Embeddings), len(batch))
		}
		for _, e := range resp.Embeddings {
			if len(e.Embedding) != s.dim {
				return nil, fmt.Errorf("%w: provider returned %d dimensions, index uses %d",
					ErrDimensionMismatch, len(e.Embedding), s.dim)
			}
			vecs = append(vecs, pgvector.NewVector(e.Embedding))
		}
	}
	return vecs, nil
}

// embedQuery embeds a single search query.
func (s *Store) embedQuery(ctx context.Context, text string) (pgvector.Vector, error) {
	vecs, err := s.embedBatch(ctx, []string{text})
	if err != nil {
		return pgvector.Vector{}, err
	}
	return vecs[0], nil
}

// Add embeds and inserts chunks, returning how many rows were written
// and how many were skipped as already indexed. The write is
// all-or-nothing: an embedding failure aborts before the transaction
// opens, and an insert failure rolls the whole batch back.
func (s *Store) Add(ctx context.Context, chunks []chunk.Chunk) (inserted, skipped int, err error) {
	if len(chunks) == 0 {
		return 0, 0, nil
	}

	fresh, err := s.filterExisting(ctx, chunks)
	if err != nil {
		return 0, 0, err
	}
	skipped = len(chunks) - len(fresh)
	if len(fresh) == 0 {
		return 0, skipped, nil
	}

	texts := make([]string, len(fresh))
	for i, c := range fresh {
		texts[i] = c.Content
	}

	// Embed before opening the transaction: provider calls are slow
	// and must not hold a database connection.
	vecs, err := s.embedBatch(ctx, texts)
	if err != nil {
		return 0, skipped, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, skipped, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	// Serialize concurrent writers, including other processes.
	// pg_advisory_xact_lock releases automatically at commit/rollback.
	if _, lockErr := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, ingestLockKey); lockErr != nil {
		return 0, skipped, fmt.Errorf("acquiring advisory lock: %w", lockErr)
	}

	b := &pgx.Batch{}
	for i, c := range fresh {
		b.Queue(insertChunkSQL, c.ID, c.Source, c.Page, c.Content, vecs[i])
	}
	br := tx.SendBatch(ctx, b)
	for range fresh {
		tag, execErr := br.Exec()
		if execErr != nil {
			_ = br.Close()
			return 0, skipped, fmt.Errorf("inserting chunk: %w", execErr)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return 0, skipped, fmt.Errorf("closing insert batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, skipped, fmt.Errorf("committing chunk batch: %w", err)
	}

	skipped += len(fresh) - inserted
	return inserted, skipped, nil
}

// filterExisting drops chunks whose ids are already indexed so repeat
// ingestion never re-embeds them. In-batch duplicates collapse too.
func (s *Store) filterExisting(ctx context.Context, chunks []chunk.Chunk) ([]chunk.Chunk, error) {
	ids := make([]string, 0, len(chunks))
	seen := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		if !seen[c.ID] {
			seen[c.ID] = true
			ids = append(ids, c.ID)
		}
	}

	rows, err := s.pool.Query(ctx, `SELECT id FROM chunks WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("checking existing chunks: %w", err)
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning chunk id: %w", err)
		}
		existing[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk ids: %w", err)
	}

	fresh := make([]chunk.Chunk, 0, len(chunks))
	taken := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		if existing[c.ID] || taken[c.ID] {
			continue
		}
		taken[c.ID] = true
		fresh = append(fresh, c)
	}
	return fresh, nil
}

// Search returns the chunks most similar to the query, best first.
// Results below the similarity threshold are filtered out; an empty
// result set is not an error.
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return []Result{}, nil
	}
	if strings.ContainsRune(query, 0) {
		return []Result{}, nil
	}
	if len(query) > maxQueryBytes {
		query = query[:maxQueryBytes]
	}

	cfg := buildSearchConfig(0, opts)

	vec, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	searchCtx, cancel := context.WithTimeout(ctx, s.searchTimeout)
	defer cancel()

	rows, err := s.pool.Query(searchCtx,
		`SELECT `+chunkCols+`, 1 - (embedding <=> $1) AS similarity
		 FROM chunks
		 WHERE 1 - (embedding <=> $1) >= $2
		 ORDER BY embedding <=> $1
		 LIMIT $3`,
		vec, cfg.threshold, cfg.topK,
	)
	if err != nil {
		return nil, s.searchErr(err)
	}
	defer rows.Close()

	results, err := scanResults(rows)
	if err != nil {
		return nil, s.searchErr(err)
	}
	return results, nil
}

// searchErr maps a deadline hit during search to ErrRetrievalTimeout.
func (s *Store) searchErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrRetrievalTimeout, s.searchTimeout)
	}
	return fmt.Errorf("searching chunks: %w", err)
}

// scanResults reads Result rows (standard column set plus similarity).
func scanResults(rows pgx.Rows) ([]Result, error) {
	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Source, &r.Page, &r.Content, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating results: %w", err)
	}
	return results, nil
}

// Stats reports how many chunks and distinct documents are indexed.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT source) FROM chunks`,
	).Scan(&st.Chunks, &st.Documents)
	if err != nil {
		return Stats{}, fmt.Errorf("counting chunks: %w", err)
	}
	return st, nil
}

// Reset drops every indexed chunk.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE chunks`); err != nil {
		return fmt.Errorf("resetting chunk index: %w", err)
	}
	return nil
}
