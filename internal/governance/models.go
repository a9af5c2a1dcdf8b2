package governance

import (
	"time"

	id "loom/pkg/domain"
)

// ContractStatus tracks where a boundary contract is in its negotiation.
type ContractStatus string

const (
	// StatusPending: Phase 1 ran; the materialization decision has not.
	StatusPending ContractStatus = "pending"
	// StatusActive: Phase 2 ran; materialization fields are final.
	StatusActive ContractStatus = "active"
)

// MaterializationType encodes how externally sourced data may be kept.
type MaterializationType string

const (
	// MaterializationFullArtifact: durable copy, no TTL.
	MaterializationFullArtifact MaterializationType = "full_artifact"
	// MaterializationDeterministic: TTL-bounded cached copy.
	MaterializationDeterministic MaterializationType = "deterministic"
	// MaterializationReference: no physical copy, reference only.
	MaterializationReference MaterializationType = "reference"
)

// BoundaryContract is the negotiated, persisted record of whether and how
// external data may be accessed and materialized. Keyed uniquely per
// (tenant, source type, source identifier); an active contract for the same
// source is reused rather than re-negotiated.
type BoundaryContract struct {
	ContractID               id.ContractID
	TenantID                 id.TenantID
	UserID                   id.UserID
	IntentID                 id.IntentID
	ExternalSourceType       string
	ExternalSourceIdentifier string
	ExternalSourceMetadata   map[string]any

	AccessGranted    bool
	AccessReason     string
	AccessConditions map[string]any

	MaterializationType         MaterializationType
	MaterializationScope        string
	MaterializationBackingStore string
	MaterializationTTL          time.Duration
	MaterializationExpiresAt    *time.Time

	Status      ContractStatus
	CreatedAt   time.Time
	ActivatedAt *time.Time
}

// Expired reports whether the contract's materialization window has lapsed.
// Expiry is evaluated lazily at lookup time; there is no active timer.
func (c *BoundaryContract) Expired(now time.Time) bool {
	return c.MaterializationExpiresAt != nil && now.After(*c.MaterializationExpiresAt)
}
