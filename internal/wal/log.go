package wal

import (
	"context"
	"time"

	id "loom/pkg/domain"
	dErrors "loom/pkg/domain-errors"
)

// Log is the appender handed to services. It is append-only and uses the
// storage layer for persistence so tests can swap sinks easily.
type Log struct {
	store Store
}

// NewLog wires a Log over a store. A nil store is a composition-time
// configuration error: the WAL is a required collaborator, never an
// optional one.
func NewLog(store Store) (*Log, error) {
	if store == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "wal store is required")
	}
	return &Log{store: store}, nil
}

// Append records a lifecycle transition. A failed append is fatal to the
// enclosing operation; the WAL is never best-effort.
func (l *Log) Append(ctx context.Context, tenantID id.TenantID, executionID id.ExecutionID, eventType EventType, data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}
	event := Event{
		EventID:     id.NewEventID(),
		TenantID:    tenantID,
		ExecutionID: executionID,
		Type:        eventType,
		Data:        data,
		CreatedAt:   time.Now(),
	}
	if err := l.store.Append(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "wal append failed")
	}
	return nil
}

// ListByTenant returns the tenant's events in append order.
func (l *Log) ListByTenant(ctx context.Context, tenantID id.TenantID) ([]Event, error) {
	return l.store.ListByTenant(ctx, tenantID)
}

// ListByExecution returns one execution's events in append order.
func (l *Log) ListByExecution(ctx context.Context, tenantID id.TenantID, executionID id.ExecutionID) ([]Event, error) {
	return l.store.ListByExecution(ctx, tenantID, executionID)
}
