package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "loom/pkg/domain"
	"loom/pkg/platform/sentinel"
	txcontext "loom/pkg/platform/tx"
)

// PostgresStore persists outbox rows. Enqueue joins the context transaction
// when one is present, which is how the atomic commit unit keeps "state
// changed" and "event exists" inseparable.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Enqueue(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	var executionID *uuid.UUID
	if !event.ExecutionID.IsNil() {
		eid := uuid.UUID(event.ExecutionID)
		executionID = &eid
	}

	query := `
		INSERT INTO outbox (id, tenant_id, execution_id, event_type, payload, created_at, published)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE)
	`
	_, err = txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(event.ID),
		uuid.UUID(event.TenantID),
		executionID,
		event.Type,
		payload,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPending(ctx context.Context, limit int) ([]Event, error) {
	query := `
		SELECT id, tenant_id, execution_id, event_type, payload, created_at
		FROM outbox
		WHERE NOT published
		ORDER BY created_at
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("scan pending outbox: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			event       Event
			eventID     uuid.UUID
			tenantID    uuid.UUID
			executionID *uuid.UUID
			payload     []byte
		)
		if err := rows.Scan(&eventID, &tenantID, &executionID, &event.Type, &payload, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		event.ID = id.EventID(eventID)
		event.TenantID = id.TenantID(tenantID)
		if executionID != nil {
			event.ExecutionID = id.ExecutionID(*executionID)
		}
		if err := json.Unmarshal(payload, &event.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal outbox payload: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (s *PostgresStore) MarkPublished(ctx context.Context, eventID id.EventID) error {
	query := `
		UPDATE outbox SET published = TRUE, published_at = $2
		WHERE id = $1 AND NOT published
	`
	res, err := s.db.ExecContext(ctx, query, uuid.UUID(eventID), time.Now())
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
