package governance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "loom/pkg/domain"
	"loom/pkg/platform/sentinel"
	txcontext "loom/pkg/platform/tx"
)

// PostgresStore persists boundary contracts. The unique index on
// (tenant_id, external_source_type, external_source_identifier) carries the
// one-contract-per-source invariant; Save upserts against it so replacing an
// expired contract is a single statement.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, contract *BoundaryContract) error {
	metadata, err := json.Marshal(orEmpty(contract.ExternalSourceMetadata))
	if err != nil {
		return fmt.Errorf("marshal source metadata: %w", err)
	}
	conditions, err := json.Marshal(orEmpty(contract.AccessConditions))
	if err != nil {
		return fmt.Errorf("marshal access conditions: %w", err)
	}

	query := `
		INSERT INTO boundary_contracts (
			contract_id, tenant_id, user_id, intent_id,
			external_source_type, external_source_identifier, external_source_metadata,
			access_granted, access_reason, access_conditions,
			contract_status, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (tenant_id, external_source_type, external_source_identifier)
		DO UPDATE SET
			contract_id = EXCLUDED.contract_id,
			user_id = EXCLUDED.user_id,
			intent_id = EXCLUDED.intent_id,
			external_source_metadata = EXCLUDED.external_source_metadata,
			access_granted = EXCLUDED.access_granted,
			access_reason = EXCLUDED.access_reason,
			access_conditions = EXCLUDED.access_conditions,
			materialization_type = NULL,
			materialization_scope = NULL,
			materialization_backing_store = NULL,
			materialization_ttl_seconds = NULL,
			materialization_expires_at = NULL,
			contract_status = EXCLUDED.contract_status,
			created_at = EXCLUDED.created_at,
			activated_at = NULL
	`
	_, err = txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(contract.ContractID),
		uuid.UUID(contract.TenantID),
		nullableUUID(uuid.UUID(contract.UserID)),
		nullableUUID(uuid.UUID(contract.IntentID)),
		contract.ExternalSourceType,
		contract.ExternalSourceIdentifier,
		metadata,
		contract.AccessGranted,
		contract.AccessReason,
		conditions,
		string(contract.Status),
		contract.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save boundary contract: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindBySource(ctx context.Context, tenantID id.TenantID, sourceType, sourceIdentifier string) (*BoundaryContract, error) {
	row := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, selectContract+`
		WHERE tenant_id = $1 AND external_source_type = $2 AND external_source_identifier = $3
	`, uuid.UUID(tenantID), sourceType, sourceIdentifier)
	return scanContract(row)
}

func (s *PostgresStore) GetByID(ctx context.Context, tenantID id.TenantID, contractID id.ContractID) (*BoundaryContract, error) {
	row := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, selectContract+`
		WHERE tenant_id = $1 AND contract_id = $2
	`, uuid.UUID(tenantID), uuid.UUID(contractID))
	return scanContract(row)
}

func (s *PostgresStore) Activate(ctx context.Context, tenantID id.TenantID, contract *BoundaryContract) error {
	var ttlSeconds *int64
	if contract.MaterializationTTL > 0 {
		v := int64(contract.MaterializationTTL / time.Second)
		ttlSeconds = &v
	}
	activatedAt := time.Now()
	if contract.ActivatedAt != nil {
		activatedAt = *contract.ActivatedAt
	}

	query := `
		UPDATE boundary_contracts SET
			materialization_type = $3,
			materialization_scope = $4,
			materialization_backing_store = $5,
			materialization_ttl_seconds = $6,
			materialization_expires_at = $7,
			contract_status = $8,
			activated_at = $9
		WHERE tenant_id = $1 AND contract_id = $2
	`
	res, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(tenantID),
		uuid.UUID(contract.ContractID),
		string(contract.MaterializationType),
		contract.MaterializationScope,
		contract.MaterializationBackingStore,
		ttlSeconds,
		contract.MaterializationExpiresAt,
		string(StatusActive),
		activatedAt,
	)
	if err != nil {
		return fmt.Errorf("activate boundary contract: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("activate boundary contract: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

const selectContract = `
	SELECT contract_id, tenant_id, user_id, intent_id,
		external_source_type, external_source_identifier, external_source_metadata,
		access_granted, access_reason, access_conditions,
		materialization_type, materialization_scope, materialization_backing_store,
		materialization_ttl_seconds, materialization_expires_at,
		contract_status, created_at, activated_at
	FROM boundary_contracts
`

func scanContract(row *sql.Row) (*BoundaryContract, error) {
	var (
		c          BoundaryContract
		contractID uuid.UUID
		tenantID   uuid.UUID
		userID     *uuid.UUID
		intentID   *uuid.UUID
		metadata   []byte
		conditions []byte
		matType    sql.NullString
		matScope   sql.NullString
		matStore   sql.NullString
		ttlSeconds sql.NullInt64
		status     string
	)
	err := row.Scan(
		&contractID, &tenantID, &userID, &intentID,
		&c.ExternalSourceType, &c.ExternalSourceIdentifier, &metadata,
		&c.AccessGranted, &c.AccessReason, &conditions,
		&matType, &matScope, &matStore,
		&ttlSeconds, &c.MaterializationExpiresAt,
		&status, &c.CreatedAt, &c.ActivatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan boundary contract: %w", err)
	}

	c.ContractID = id.ContractID(contractID)
	c.TenantID = id.TenantID(tenantID)
	if userID != nil {
		c.UserID = id.UserID(*userID)
	}
	if intentID != nil {
		c.IntentID = id.IntentID(*intentID)
	}
	if err := json.Unmarshal(metadata, &c.ExternalSourceMetadata); err != nil {
		return nil, fmt.Errorf("unmarshal source metadata: %w", err)
	}
	if err := json.Unmarshal(conditions, &c.AccessConditions); err != nil {
		return nil, fmt.Errorf("unmarshal access conditions: %w", err)
	}
	if matType.Valid {
		c.MaterializationType = MaterializationType(matType.String)
	}
	c.MaterializationScope = matScope.String
	c.MaterializationBackingStore = matStore.String
	if ttlSeconds.Valid {
		c.MaterializationTTL = time.Duration(ttlSeconds.Int64) * time.Second
	}
	c.Status = ContractStatus(status)
	return &c, nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func nullableUUID(u uuid.UUID) *uuid.UUID {
	if u == uuid.Nil {
		return nil
	}
	return &u
}
