package wal

import (
	"context"

	id "loom/pkg/domain"
)

// Store persists WAL events. Append-only: no update, compaction, or delete
// API is exposed. Retention is an external concern.
//
// Ordering: appends for a single tenant are ordered by arrival. No global
// order across tenants is guaranteed; tenants are isolated.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByTenant(ctx context.Context, tenantID id.TenantID) ([]Event, error)
	ListByExecution(ctx context.Context, tenantID id.TenantID, executionID id.ExecutionID) ([]Event, error)
}
