package config

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"
)

// Validate checks value ranges. It runs on every Load, so it must not
// require an API key; commands that talk to the provider call
// ValidateProvider on top.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}
	// Gemini accepts temperatures in [0, 2].
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("%w: must be positive, got %d", ErrInvalidMaxTokens, c.MaxTokens)
	}
	if c.TopP <= 0 || c.TopP > 1 {
		return fmt.Errorf("%w: top_p must be in (0, 1], got %.2f", ErrInvalidTemperature, c.TopP)
	}

	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}
	if c.EmbeddingDimension < 1 {
		return fmt.Errorf("%w: embedding_dimension must be positive, got %d", ErrInvalidEmbedderModel, c.EmbeddingDimension)
	}

	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be >= 0 and < chunk_size, got %d", ErrInvalidChunking, c.ChunkOverlap)
	}

	if c.TopK < 1 || c.TopK > 50 {
		return fmt.Errorf("%w: top_k must be between 1 and 50, got %d", ErrInvalidRetrieval, c.TopK)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: similarity_threshold must be in [0, 1], got %.2f", ErrInvalidRetrieval, c.SimilarityThreshold)
	}
	if c.StrictThreshold < c.SimilarityThreshold || c.StrictThreshold > 1 {
		return fmt.Errorf("%w: strict_threshold must be in [similarity_threshold, 1], got %.2f", ErrInvalidRetrieval, c.StrictThreshold)
	}

	if c.MaxHistoryPairs < 1 {
		return fmt.Errorf("%w: max_history_pairs must be positive, got %d", ErrInvalidHistory, c.MaxHistoryPairs)
	}
	if c.SessionTimeout < time.Second {
		return fmt.Errorf("%w: session_timeout must be at least 1s, got %s", ErrInvalidHistory, c.SessionTimeout)
	}
	if c.SweepInterval < time.Second {
		return fmt.Errorf("%w: sweep_interval must be at least 1s, got %s", ErrInvalidHistory, c.SweepInterval)
	}

	for name, d := range map[string]time.Duration{
		"embed_timeout":    c.EmbedTimeout,
		"search_timeout":   c.SearchTimeout,
		"classify_timeout": c.ClassifyTimeout,
		"generate_timeout": c.GenerateTimeout,
		"lock_timeout":     c.LockTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %s", ErrInvalidTimeout, name, d)
		}
	}

	return c.validatePostgres()
}

// validatePostgres checks the storage settings.
func (c *Config) validatePostgres() error {
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}
	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set", ErrInvalidPostgresPassword)
	}
	if c.PostgresPassword == "docent_dev_password" {
		slog.Warn("using default development password for PostgreSQL",
			"hint", "change postgres_password before deploying")
	}

	// allow/prefer are deprecated and MITM-vulnerable; reject them.
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of %v",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}
	return nil
}

// ValidateProvider checks that the Gemini credential is present.
// Called by commands that reach the model provider (serve, ingest, ask).
func (c *Config) ValidateProvider() error {
	if c == nil {
		return ErrConfigNil
	}
	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
			"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
			ErrMissingAPIKey)
	}
	return nil
}

// ValidateIngest checks settings the ingest command depends on.
func (c *Config) ValidateIngest() error {
	if err := c.ValidateProvider(); err != nil {
		return err
	}
	if c.CorpusDir == "" {
		return fmt.Errorf("%w: corpus_dir cannot be empty", ErrInvalidCorpusDir)
	}
	info, err := os.Stat(c.CorpusDir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCorpusDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrInvalidCorpusDir, c.CorpusDir)
	}
	return nil
}
