package integration

import (
	"context"
	"testing"
	"time"

	"sgl-admin/internal/config"
	"sgl-admin/internal/database"
	"sgl-admin/internal/docstore"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestDB represents a test database instance.
type TestDB struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	Store     docstore.Store
}

// SetupTestDB creates a PostgreSQL test container, migrates the documents
// table and opens a postgres-backed document store on it.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	t.Cleanup(func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := postgresContainer.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}

	port, err := postgresContainer.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("failed to get container port: %v", err)
	}

	dbConfig := config.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		User:            "testuser",
		Password:        "testpass",
		Database:        "testdb",
		MaxConnections:  20,
		MinConnections:  2,
		MaxConnLifetime: 300,
	}

	logger := zerolog.Nop()
	pool, err := database.NewPool(ctx, dbConfig, logger)
	if err != nil {
		t.Fatalf("failed to create connection pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := docstore.Migrate(ctx, pool); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	store := docstore.NewPostgresStore(pool, logger,
		docstore.WithMaxAttempts(50),
		docstore.WithBaseBackoff(2*time.Millisecond),
	)

	return &TestDB{
		Container: postgresContainer,
		Pool:      pool,
		Store:     store,
	}
}

// SeedCard inserts a card catalog record.
func SeedCard(t *testing.T, store docstore.Store, cardID string, promoCodes ...string) {
	t.Helper()

	codes := make([]any, 0, len(promoCodes))
	for _, code := range promoCodes {
		codes = append(codes, code)
	}

	err := store.Set(context.Background(), "cards", cardID, map[string]any{
		"name":       "Card " + cardID,
		"promoCodes": codes,
	})
	if err != nil {
		t.Fatalf("failed to seed card %s: %v", cardID, err)
	}
}

// CleanupDB removes every document.
func CleanupDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	if _, err := pool.Exec(context.Background(), "TRUNCATE documents"); err != nil {
		t.Fatalf("failed to truncate documents: %v", err)
	}
}
