package promotion

import (
	"time"

	id "loom/pkg/domain"
)

// RecordOfFact is a durable semantic fact extracted from working material.
// Rows are immutable after promotion except for SourceExpiredAt, which is
// set when the originating file is deleted so the fact carries its own
// provenance honestly.
type RecordOfFact struct {
	RecordID                 id.RecordID
	TenantID                 id.TenantID
	RecordType               id.RecordType
	SourceFileID             id.ArtifactID
	SourceBoundaryContractID id.ContractID
	SourceExpiredAt          *time.Time

	EmbeddingID      string
	InterpretationID string
	Content          map[string]any
	ModelName        string
	ConfidenceScore  float64

	PromotedAt      time.Time
	PromotedBy      string
	PromotionReason string
}

// RegistryEntry is one versioned row in a platform registry. Definitions are
// tenant-neutral: identity keys are stripped before the row is written, and
// SourceTenantID records provenance without leaking into the definition.
type RegistryEntry struct {
	RegistryID       id.RegistryID
	RegistryType     id.RegistryType
	Name             string
	Version          int
	Definition       map[string]any
	SourceArtifactID id.ArtifactID
	SourceTenantID   id.TenantID
	ParentRegistryID id.RegistryID
	IsCurrentVersion bool
	PromotedAt       time.Time
	PromotedBy       string
	Tags             []string
	CreatedAt        time.Time
}
