package wal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	id "loom/pkg/domain"
	txcontext "loom/pkg/platform/tx"
)

// PostgresStore persists WAL events in the wal_events table. Per-tenant
// ordering comes from the bigserial sequence; reads order by it.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append inserts one event. When the context carries a transaction (the
// atomic commit unit), the insert joins it.
func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("marshal wal event data: %w", err)
	}

	var executionID *uuid.UUID
	if !event.ExecutionID.IsNil() {
		eid := uuid.UUID(event.ExecutionID)
		executionID = &eid
	}

	query := `
		INSERT INTO wal_events (event_id, tenant_id, execution_id, event_type, event_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(event.EventID),
		uuid.UUID(event.TenantID),
		executionID,
		string(event.Type),
		data,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert wal event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByTenant(ctx context.Context, tenantID id.TenantID) ([]Event, error) {
	query := `
		SELECT event_id, tenant_id, execution_id, event_type, event_data, created_at
		FROM wal_events
		WHERE tenant_id = $1
		ORDER BY seq
	`
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, uuid.UUID(tenantID))
	if err != nil {
		return nil, fmt.Errorf("list wal events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *PostgresStore) ListByExecution(ctx context.Context, tenantID id.TenantID, executionID id.ExecutionID) ([]Event, error) {
	query := `
		SELECT event_id, tenant_id, execution_id, event_type, event_data, created_at
		FROM wal_events
		WHERE tenant_id = $1 AND execution_id = $2
		ORDER BY seq
	`
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, query,
		uuid.UUID(tenantID), uuid.UUID(executionID))
	if err != nil {
		return nil, fmt.Errorf("list wal events by execution: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var (
			event       Event
			eventID     uuid.UUID
			tenantID    uuid.UUID
			executionID *uuid.UUID
			eventType   string
			data        []byte
		)
		if err := rows.Scan(&eventID, &tenantID, &executionID, &eventType, &data, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan wal event: %w", err)
		}
		event.EventID = id.EventID(eventID)
		event.TenantID = id.TenantID(tenantID)
		if executionID != nil {
			event.ExecutionID = id.ExecutionID(*executionID)
		}
		event.Type = EventType(eventType)
		if err := json.Unmarshal(data, &event.Data); err != nil {
			return nil, fmt.Errorf("unmarshal wal event data: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
