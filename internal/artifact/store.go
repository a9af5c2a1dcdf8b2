package artifact

import (
	"context"

	id "loom/pkg/domain"
)

// Store persists artifact records. All methods take tenant id explicitly.
//
// Transition re-validates the state machine against the currently stored
// state inside the store's critical section, so a racing archive and delete
// can interleave in either order but can never resurrect a DELETED
// artifact (last-writer-wins, monotonic).
type Store interface {
	Create(ctx context.Context, record *Record) error
	Get(ctx context.Context, tenantID id.TenantID, artifactID id.ArtifactID) (*Record, error)
	ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*Record, error)
	Transition(ctx context.Context, tenantID id.TenantID, artifactID id.ArtifactID, to LifecycleState) error
	// DeleteMaterializations removes all physical copy rows for the
	// artifact. Called when the artifact is deleted; irreversible.
	DeleteMaterializations(ctx context.Context, tenantID id.TenantID, artifactID id.ArtifactID) error
}

// CacheStore holds TTL-bounded working-material content for cache-class
// (deterministic) materializations. Content past its TTL simply vanishes;
// facts that must outlive it are promoted to records of fact first.
type CacheStore interface {
	Set(ctx context.Context, key string, value []byte, ttlSeconds int64) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
