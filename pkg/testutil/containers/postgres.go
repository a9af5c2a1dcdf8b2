//go:build integration

// Package containers manages shared test containers for integration tests.
// One Postgres container serves the whole test binary; tests isolate through
// fresh tenant ids or TruncateTables.
package containers

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	platformpostgres "loom/internal/platform/postgres"
)

// PostgresContainer exposes the running database to tests.
type PostgresContainer struct {
	DB               *sql.DB
	ConnectionString string
}

var (
	pgOnce     sync.Once
	pgInstance *PostgresContainer
	pgSetupErr error
)

// GetPostgres returns the shared Postgres container, starting it and
// applying the schema on first use. Fails the test when Docker is missing.
func GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()

	pgOnce.Do(func() {
		ctx := context.Background()

		container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
			tcpostgres.WithDatabase("loom_test"),
			tcpostgres.WithUsername("loom"),
			tcpostgres.WithPassword("loom"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			pgSetupErr = fmt.Errorf("start postgres container: %w", err)
			return
		}

		connStr, err := container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			pgSetupErr = fmt.Errorf("container connection string: %w", err)
			return
		}

		db, err := sql.Open("postgres", connStr)
		if err != nil {
			pgSetupErr = fmt.Errorf("open test database: %w", err)
			return
		}
		if err := db.Ping(); err != nil {
			pgSetupErr = fmt.Errorf("ping test database: %w", err)
			return
		}
		if err := platformpostgres.EnsureSchema(ctx, db); err != nil {
			pgSetupErr = fmt.Errorf("apply schema: %w", err)
			return
		}

		pgInstance = &PostgresContainer{DB: db, ConnectionString: connStr}
	})

	if pgSetupErr != nil {
		t.Fatalf("postgres container unavailable: %v", pgSetupErr)
	}
	return pgInstance
}

// TruncateTables clears the given tables between tests.
func (c *PostgresContainer) TruncateTables(t *testing.T, tables ...string) {
	t.Helper()
	for _, table := range tables {
		if _, err := c.DB.Exec("TRUNCATE TABLE " + table + " CASCADE"); err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
}
