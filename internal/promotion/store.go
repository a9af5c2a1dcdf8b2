package promotion

import (
	"context"
	"time"

	id "loom/pkg/domain"
)

// Store persists records of fact and registry entries.
//
// CreateRegistryEntry retires the prior current version of the same
// (registry type, name) inside the store's critical section before
// inserting the new row, so there is exactly one current version at any
// point. A concurrent insert of the same version returns ErrConflict.
type Store interface {
	CreateRecord(ctx context.Context, record *RecordOfFact) error
	GetRecord(ctx context.Context, tenantID id.TenantID, recordID id.RecordID) (*RecordOfFact, error)
	ListRecordsBySource(ctx context.Context, tenantID id.TenantID, sourceFileID id.ArtifactID) ([]*RecordOfFact, error)
	// MarkSourceExpired stamps every record promoted from the given source
	// file. Records stay queryable; only their provenance changes.
	MarkSourceExpired(ctx context.Context, tenantID id.TenantID, sourceFileID id.ArtifactID, at time.Time) error

	CreateRegistryEntry(ctx context.Context, entry *RegistryEntry) error
	GetCurrentEntry(ctx context.Context, registryType id.RegistryType, name string) (*RegistryEntry, error)
	ListEntries(ctx context.Context, registryType id.RegistryType) ([]*RegistryEntry, error)
}
