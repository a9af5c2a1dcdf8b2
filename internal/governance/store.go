package governance

import (
	"context"

	id "loom/pkg/domain"
)

// Store persists boundary contracts. All methods take tenant id explicitly;
// tenant isolation is enforced at the call boundary, never inferred.
type Store interface {
	// Save inserts the contract, replacing any prior contract for the same
	// (tenant, source type, source identifier) key. Replacement only
	// happens after the service has decided the prior contract is expired;
	// the one-contract-per-source invariant lives in the store.
	Save(ctx context.Context, contract *BoundaryContract) error

	// FindBySource returns the contract for the source key, or
	// sentinel.ErrNotFound.
	FindBySource(ctx context.Context, tenantID id.TenantID, sourceType, sourceIdentifier string) (*BoundaryContract, error)

	// GetByID returns the tenant's contract, or sentinel.ErrNotFound.
	GetByID(ctx context.Context, tenantID id.TenantID, contractID id.ContractID) (*BoundaryContract, error)

	// Activate finalizes the materialization decision, moving the contract
	// to active status. It is the only writer of materialization fields.
	Activate(ctx context.Context, tenantID id.TenantID, contract *BoundaryContract) error
}
