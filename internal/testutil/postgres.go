// Package testutil provides shared testing utilities for the docent
// project: a disposable pgvector-enabled PostgreSQL container plus
// deterministic mock model and embedder implementations.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/koopa0/docent/db"
)

// TestDB wraps a PostgreSQL test container with a ready connection pool.
type TestDB struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string
}

// SetupTestDB starts an isolated PostgreSQL container with the pgvector
// extension, applies the embedded migrations, and returns a connection
// pool. The returned cleanup function must be called to terminate the
// container.
//
// Example:
//
//	testDB, cleanup := testutil.SetupTestDB(t)
//	defer cleanup()
//	// Use testDB.Pool for queries.
func SetupTestDB(t *testing.T) (*TestDB, func()) {
	t.Helper()

	testDB, cleanup, err := SetupTestDBForMain()
	if err != nil {
		t.Fatalf("Failed to set up test database: %v", err)
	}
	return testDB, cleanup
}

// SetupTestDBForMain is the TestMain variant of SetupTestDB: it returns
// errors instead of failing a test, so one container can be shared by a
// whole package.
func SetupTestDBForMain() (*TestDB, func(), error) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase("docent_test"),
		postgres.WithUsername("docent_test"),
		postgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("starting PostgreSQL container: %w", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, nil, fmt.Errorf("getting connection string: %w", err)
	}

	// The same migration path production uses.
	if err := db.Migrate(connStr); err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	testDB := &TestDB{
		Container: pgContainer,
		Pool:      pool,
		ConnStr:   connStr,
	}

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(context.Background())
	}

	return testDB, cleanup, nil
}

// CleanTables truncates all data tables for test isolation.
func CleanTables(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	if _, err := pool.Exec(context.Background(), `TRUNCATE chunks`); err != nil {
		t.Fatalf("Failed to clean tables: %v", err)
	}
}
