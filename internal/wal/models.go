package wal

import (
	"time"

	id "loom/pkg/domain"
)

// EventType names a lifecycle transition recorded in the write-ahead log.
type EventType string

const (
	// Execution lifecycle
	EventStepStarted   EventType = "STEP_STARTED"
	EventStepCompleted EventType = "STEP_COMPLETED"
	EventStepFailed    EventType = "STEP_FAILED"

	// Governance
	EventAccessGranted             EventType = "ACCESS_GRANTED"
	EventAccessDenied              EventType = "ACCESS_DENIED"
	EventMaterializationAuthorized EventType = "MATERIALIZATION_AUTHORIZED"

	// Artifact lifecycle
	EventArtifactRegistered EventType = "ARTIFACT_REGISTERED"
	EventArtifactArchived   EventType = "ARTIFACT_ARCHIVED"
	EventArtifactDeleted    EventType = "ARTIFACT_DELETED"
	EventArtifactAccepted   EventType = "ARTIFACT_ACCEPTED"

	// Promotion
	EventRecordPromoted   EventType = "RECORD_PROMOTED"
	EventRegistryPromoted EventType = "REGISTRY_PROMOTED"

	// Outbox receipts
	EventOutboxEnqueued EventType = "OUTBOX_ENQUEUED"
)

// Event is one permanent audit record. The WAL, not the caller's return
// value, is the source of truth for "did this happen".
type Event struct {
	EventID     id.EventID
	TenantID    id.TenantID
	ExecutionID id.ExecutionID
	Type        EventType
	Data        map[string]any
	CreatedAt   time.Time
}
