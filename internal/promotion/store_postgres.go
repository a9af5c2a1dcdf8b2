package promotion

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

// PostgresStore persists records of fact and the three platform registries.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateRecord(ctx context.Context, record *RecordOfFact) error {
	content, err := json.Marshal(record.Content)
	if err != nil {
		return fmt.Errorf("marshal record content: %w", err)
	}
	_, err = txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO records_of_fact (
			record_id, tenant_id, record_type, source_file_id,
			source_boundary_contract_id, source_expired_at,
			embedding_id, interpretation_id, record_content,
			model_name, confidence_score, promoted_at, promoted_by, promotion_reason
		)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9, NULLIF($10, ''), $11, $12, $13, $14)
	`,
		uuid.UUID(record.RecordID),
		uuid.UUID(record.TenantID),
		record.RecordType.String(),
		uuid.UUID(record.SourceFileID),
		nullableUUID(uuid.UUID(record.SourceBoundaryContractID)),
		record.SourceExpiredAt,
		record.EmbeddingID,
		record.InterpretationID,
		content,
		record.ModelName,
		record.ConfidenceScore,
		record.PromotedAt,
		record.PromotedBy,
		record.PromotionReason,
	)
	if err != nil {
		return fmt.Errorf("insert record of fact: %w", err)
	}
	return nil
}

const selectRecord = `
	SELECT record_id, tenant_id, record_type, source_file_id,
		source_boundary_contract_id, source_expired_at,
		COALESCE(embedding_id, ''), COALESCE(interpretation_id, ''), record_content,
		COALESCE(model_name, ''), COALESCE(confidence_score, 0), promoted_at, promoted_by, promotion_reason
	FROM records_of_fact
`

func (s *PostgresStore) GetRecord(ctx context.Context, tenantID id.TenantID, recordID id.RecordID) (*RecordOfFact, error) {
	row := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		selectRecord+` WHERE tenant_id = $1 AND record_id = $2`,
		uuid.UUID(tenantID), uuid.UUID(recordID))
	return scanRecordOfFact(row)
}

func (s *PostgresStore) ListRecordsBySource(ctx context.Context, tenantID id.TenantID, sourceFileID id.ArtifactID) ([]*RecordOfFact, error) {
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx,
		selectRecord+` WHERE tenant_id = $1 AND source_file_id = $2 ORDER BY promoted_at`,
		uuid.UUID(tenantID), uuid.UUID(sourceFileID))
	if err != nil {
		return nil, fmt.Errorf("list records by source: %w", err)
	}
	defer rows.Close()

	var out []*RecordOfFact
	for rows.Next() {
		record, err := scanRecordOfFact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkSourceExpired(ctx context.Context, tenantID id.TenantID, sourceFileID id.ArtifactID, at time.Time) error {
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		UPDATE records_of_fact SET source_expired_at = $3
		WHERE tenant_id = $1 AND source_file_id = $2 AND source_expired_at IS NULL
	`, uuid.UUID(tenantID), uuid.UUID(sourceFileID), at)
	if err != nil {
		return fmt.Errorf("mark source expired: %w", err)
	}
	return nil
}

// registryTables whitelists the table per registry type; the type is an
// enum, never raw input, but the table name still never comes from a query
// argument.
var registryTables = map[id.RegistryType]string{
	id.RegistryTypeSolution: "solution_registry",
	id.RegistryTypeIntent:   "intent_registry",
	id.RegistryTypeRealm:    "realm_registry",
}

func registryTable(registryType id.RegistryType) (string, error) {
	table, ok := registryTables[registryType]
	if !ok {
		return "", fmt.Errorf("unknown registry type %q", registryType)
	}
	return table, nil
}

func (s *PostgresStore) CreateRegistryEntry(ctx context.Context, entry *RegistryEntry) error {
	table, err := registryTable(entry.RegistryType)
	if err != nil {
		return err
	}
	definition, err := json.Marshal(entry.Definition)
	if err != nil {
		return fmt.Errorf("marshal registry definition: %w", err)
	}

	exec := txcontext.ExecutorFrom(ctx, s.db)
	_, err = exec.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET is_current_version = FALSE
		WHERE registry_name = $1 AND is_current_version
	`, table), entry.Name)
	if err != nil {
		return fmt.Errorf("retire prior registry version: %w", err)
	}

	_, err = exec.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (
			registry_id, registry_name, version, definition,
			source_artifact_id, source_tenant_id, parent_registry_id,
			is_current_version, promoted_at, promoted_by, tags, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8, $9, $10, $11)
	`, table),
		uuid.UUID(entry.RegistryID),
		entry.Name,
		entry.Version,
		definition,
		nullableUUID(uuid.UUID(entry.SourceArtifactID)),
		nullableUUID(uuid.UUID(entry.SourceTenantID)),
		nullableUUID(uuid.UUID(entry.ParentRegistryID)),
		entry.PromotedAt,
		entry.PromotedBy,
		pq.Array(entry.Tags),
		entry.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert registry entry: %w", err)
	}
	return nil
}

const selectEntryColumns = `
	SELECT registry_id, registry_name, version, definition,
		source_artifact_id, source_tenant_id, parent_registry_id,
		is_current_version, promoted_at, promoted_by, tags, created_at
`

func (s *PostgresStore) GetCurrentEntry(ctx context.Context, registryType id.RegistryType, name string) (*RegistryEntry, error) {
	table, err := registryTable(registryType)
	if err != nil {
		return nil, err
	}
	row := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, fmt.Sprintf(
		selectEntryColumns+` FROM %s WHERE registry_name = $1 AND is_current_version`, table), name)
	return scanRegistryEntry(row, registryType)
}

func (s *PostgresStore) ListEntries(ctx context.Context, registryType id.RegistryType) ([]*RegistryEntry, error) {
	table, err := registryTable(registryType)
	if err != nil {
		return nil, err
	}
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, fmt.Sprintf(
		selectEntryColumns+` FROM %s ORDER BY registry_name, version`, table))
	if err != nil {
		return nil, fmt.Errorf("list registry entries: %w", err)
	}
	defer rows.Close()

	var out []*RegistryEntry
	for rows.Next() {
		entry, err := scanRegistryEntry(rows, registryType)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecordOfFact(row rowScanner) (*RecordOfFact, error) {
	var (
		record     RecordOfFact
		recordID   uuid.UUID
		tenantID   uuid.UUID
		recordType string
		sourceID   uuid.UUID
		contractID *uuid.UUID
		content    []byte
	)
	err := row.Scan(
		&recordID, &tenantID, &recordType, &sourceID,
		&contractID, &record.SourceExpiredAt,
		&record.EmbeddingID, &record.InterpretationID, &content,
		&record.ModelName, &record.ConfidenceScore,
		&record.PromotedAt, &record.PromotedBy, &record.PromotionReason,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan record of fact: %w", err)
	}
	record.RecordID = id.RecordID(recordID)
	record.TenantID = id.TenantID(tenantID)
	record.RecordType = id.RecordType(recordType)
	record.SourceFileID = id.ArtifactID(sourceID)
	if contractID != nil {
		record.SourceBoundaryContractID = id.ContractID(*contractID)
	}
	if err := json.Unmarshal(content, &record.Content); err != nil {
		return nil, fmt.Errorf("unmarshal record content: %w", err)
	}
	return &record, nil
}

func scanRegistryEntry(row rowScanner, registryType id.RegistryType) (*RegistryEntry, error) {
	var (
		entry      RegistryEntry
		registryID uuid.UUID
		definition []byte
		artifactID *uuid.UUID
		tenantID   *uuid.UUID
		parentID   *uuid.UUID
		tags       []string
	)
	err := row.Scan(
		&registryID, &entry.Name, &entry.Version, &definition,
		&artifactID, &tenantID, &parentID,
		&entry.IsCurrentVersion, &entry.PromotedAt, &entry.PromotedBy,
		pq.Array(&tags), &entry.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan registry entry: %w", err)
	}
	entry.RegistryID = id.RegistryID(registryID)
	entry.RegistryType = registryType
	entry.Tags = tags
	if artifactID != nil {
		entry.SourceArtifactID = id.ArtifactID(*artifactID)
	}
	if tenantID != nil {
		entry.SourceTenantID = id.TenantID(*tenantID)
	}
	if parentID != nil {
		entry.ParentRegistryID = id.RegistryID(*parentID)
	}
	if err := json.Unmarshal(definition, &entry.Definition); err != nil {
		return nil, fmt.Errorf("unmarshal registry definition: %w", err)
	}
	return &entry, nil
}

func nullableUUID(u uuid.UUID) *uuid.UUID {
	if u == uuid.Nil {
		return nil
	}
	return &u
}
