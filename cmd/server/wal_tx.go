package main

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	txcontext "loom/pkg/platform/tx"
)

// postgresUnitRunner opens one transaction per commit unit and threads it
// through the context, so the artifact, WAL, and outbox writes inside the
// unit land or roll back together.
type postgresUnitRunner struct {
	db *sql.DB
}

func newPostgresUnitRunner(db *sql.DB) *postgresUnitRunner {
	return &postgresUnitRunner{db: db}
}

func (r *postgresUnitRunner) RunAtomic(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit unit: %w", err)
	}
	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback commit unit after %w: %v", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit unit: %w", err)
	}
	return nil
}

// memoryUnitRunner serializes commit units under one lock. The in-memory
// stores cannot roll back, so dev mode settles for keeping units from
// interleaving.
type memoryUnitRunner struct {
	mu sync.Mutex
}

func newMemoryUnitRunner() *memoryUnitRunner {
	return &memoryUnitRunner{}
}

func (r *memoryUnitRunner) RunAtomic(ctx context.Context, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx)
}
