package artifact

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "loom/pkg/domain"
	"loom/pkg/platform/sentinel"
	txcontext "loom/pkg/platform/tx"
)

// PostgresStore persists artifact records and their materialization rows.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, record *Record) error {
	descriptor, err := json.Marshal(record.Descriptor)
	if err != nil {
		return fmt.Errorf("marshal descriptor: %w", err)
	}
	var payload []byte
	if record.Payload != nil {
		if payload, err = json.Marshal(record.Payload); err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
	}

	parents := make([]uuid.UUID, len(record.ParentArtifacts))
	for i, p := range record.ParentArtifacts {
		parents[i] = uuid.UUID(p)
	}

	exec := txcontext.ExecutorFrom(ctx, s.db)
	query := `
		INSERT INTO artifacts (
			artifact_id, tenant_id, artifact_type, lifecycle_state, descriptor,
			parent_artifacts, produced_by_intent, produced_by_execution,
			source_contract_id, payload, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = exec.ExecContext(ctx, query,
		uuid.UUID(record.ArtifactID),
		uuid.UUID(record.TenantID),
		record.Type,
		string(record.LifecycleState),
		descriptor,
		pq.Array(parents),
		nullableUUID(uuid.UUID(record.ProducedBy.IntentID)),
		nullableUUID(uuid.UUID(record.ProducedBy.ExecutionID)),
		nullableUUID(uuid.UUID(record.SourceContractID)),
		payload,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert artifact: %w", err)
	}

	for _, m := range record.Materializations {
		_, err = exec.ExecContext(ctx, `
			INSERT INTO materializations (materialization_id, artifact_id, storage_type, uri, format, compression, created_at)
			VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
		`,
			uuid.UUID(m.MaterializationID),
			uuid.UUID(record.ArtifactID),
			m.StorageType,
			m.URI,
			m.Format,
			m.Compression,
			m.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert materialization: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, tenantID id.TenantID, artifactID id.ArtifactID) (*Record, error) {
	exec := txcontext.ExecutorFrom(ctx, s.db)
	row := exec.QueryRowContext(ctx, `
		SELECT artifact_id, tenant_id, artifact_type, lifecycle_state, descriptor,
			parent_artifacts, produced_by_intent, produced_by_execution,
			source_contract_id, payload, created_at, updated_at
		FROM artifacts
		WHERE tenant_id = $1 AND artifact_id = $2
	`, uuid.UUID(tenantID), uuid.UUID(artifactID))

	record, err := scanRecord(row)
	if err != nil {
		return nil, err
	}

	rows, err := exec.QueryContext(ctx, `
		SELECT materialization_id, storage_type, uri, format, COALESCE(compression, ''), created_at
		FROM materializations
		WHERE artifact_id = $1
		ORDER BY created_at
	`, uuid.UUID(artifactID))
	if err != nil {
		return nil, fmt.Errorf("list materializations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			m   Materialization
			mid uuid.UUID
		)
		if err := rows.Scan(&mid, &m.StorageType, &m.URI, &m.Format, &m.Compression, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan materialization: %w", err)
		}
		m.MaterializationID = id.ArtifactID(mid)
		record.Materializations = append(record.Materializations, m)
	}
	return record, rows.Err()
}

func (s *PostgresStore) ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*Record, error) {
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, `
		SELECT artifact_id, tenant_id, artifact_type, lifecycle_state, descriptor,
			parent_artifacts, produced_by_intent, produced_by_execution,
			source_contract_id, payload, created_at, updated_at
		FROM artifacts
		WHERE tenant_id = $1
		ORDER BY created_at
	`, uuid.UUID(tenantID))
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Transition applies the state change only when the stored state still
// permits it: the WHERE clause carries the state machine, so concurrent
// transitions are monotonic without an optimistic-lock token.
func (s *PostgresStore) Transition(ctx context.Context, tenantID id.TenantID, artifactID id.ArtifactID, to LifecycleState) error {
	var from []string
	for state, targets := range transitions {
		if targets[to] {
			from = append(from, string(state))
		}
	}

	res, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		UPDATE artifacts SET lifecycle_state = $3, updated_at = $4
		WHERE tenant_id = $1 AND artifact_id = $2 AND lifecycle_state = ANY($5)
	`, uuid.UUID(tenantID), uuid.UUID(artifactID), string(to), time.Now(), pq.Array(from))
	if err != nil {
		return fmt.Errorf("transition artifact: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition artifact: %w", err)
	}
	if affected == 0 {
		// Either the artifact is missing or the transition is illegal;
		// disambiguate for the caller.
		var state string
		err := s.db.QueryRowContext(ctx, `
			SELECT lifecycle_state FROM artifacts WHERE tenant_id = $1 AND artifact_id = $2
		`, uuid.UUID(tenantID), uuid.UUID(artifactID)).Scan(&state)
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("transition artifact: %w", err)
		}
		return sentinel.ErrInvalidState
	}
	return nil
}

func (s *PostgresStore) DeleteMaterializations(ctx context.Context, tenantID id.TenantID, artifactID id.ArtifactID) error {
	exec := txcontext.ExecutorFrom(ctx, s.db)
	res, err := exec.ExecContext(ctx, `
		UPDATE artifacts SET payload = NULL, updated_at = $3
		WHERE tenant_id = $1 AND artifact_id = $2
	`, uuid.UUID(tenantID), uuid.UUID(artifactID), time.Now())
	if err != nil {
		return fmt.Errorf("clear artifact payload: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("clear artifact payload: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	_, err = exec.ExecContext(ctx, `DELETE FROM materializations WHERE artifact_id = $1`, uuid.UUID(artifactID))
	if err != nil {
		return fmt.Errorf("delete materializations: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		record      Record
		artifactID  uuid.UUID
		tenantID    uuid.UUID
		state       string
		descriptor  []byte
		parents     []uuid.UUID
		intentID    *uuid.UUID
		executionID *uuid.UUID
		contractID  *uuid.UUID
		payload     []byte
	)
	err := row.Scan(
		&artifactID, &tenantID, &record.Type, &state, &descriptor,
		pq.Array(&parents), &intentID, &executionID,
		&contractID, &payload, &record.CreatedAt, &record.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan artifact: %w", err)
	}

	record.ArtifactID = id.ArtifactID(artifactID)
	record.TenantID = id.TenantID(tenantID)
	record.LifecycleState = LifecycleState(state)
	if err := json.Unmarshal(descriptor, &record.Descriptor); err != nil {
		return nil, fmt.Errorf("unmarshal descriptor: %w", err)
	}
	for _, p := range parents {
		record.ParentArtifacts = append(record.ParentArtifacts, id.ArtifactID(p))
	}
	if intentID != nil {
		record.ProducedBy.IntentID = id.IntentID(*intentID)
	}
	if executionID != nil {
		record.ProducedBy.ExecutionID = id.ExecutionID(*executionID)
	}
	if contractID != nil {
		record.SourceContractID = id.ContractID(*contractID)
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &record.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	return &record, nil
}

func nullableUUID(u uuid.UUID) *uuid.UUID {
	if u == uuid.Nil {
		return nil
	}
	return &u
}
