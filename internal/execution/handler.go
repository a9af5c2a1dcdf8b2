package execution

import (
	"context"
	"log/slog"

	"loom/internal/artifact"
	"loom/internal/governance"
	"loom/internal/intent"
	"loom/internal/wal"
	id "loom/pkg/domain"
)

// DataRequirement declares a handler's need for externally sourced data.
// The manager negotiates a boundary contract before dispatch; a handler
// that returns nil runs without one.
type DataRequirement struct {
	SourceType       string
	SourceIdentifier string
	SourceMetadata   map[string]any
	// ArtifactType keys the materialization policy for Phase 2.
	ArtifactType string
}

// EventDraft is a downstream announcement a handler wants published. It is
// enqueued on the outbox inside the same commit unit as the artifacts.
type EventDraft struct {
	Type    string
	Payload map[string]any
}

// HandlerResult is what a successful handler hands back to the manager.
// Nothing in it has been persisted yet; the manager commits it atomically.
type HandlerResult struct {
	Artifacts []artifact.Draft
	Events    []EventDraft
}

// Handler executes one intent type.
type Handler interface {
	// NeedsExternalData inspects the intent and declares the external
	// source it must read, or nil when it runs on internal data only.
	NeedsExternalData(in *intent.Intent) *DataRequirement
	Handle(ctx context.Context, ec *ExecContext) (*HandlerResult, error)
}

// ExecContext is the handler's window into the execution. The contract is
// nil when no external data was negotiated.
type ExecContext struct {
	Intent      *intent.Intent
	ExecutionID id.ExecutionID
	Contract    *governance.BoundaryContract
	Log         *slog.Logger

	wal *wal.Log
}

// AppendEvent lets a handler record intermediate audit events under its
// execution id. Completion and failure events stay the manager's job.
func (ec *ExecContext) AppendEvent(ctx context.Context, eventType wal.EventType, data map[string]any) error {
	return ec.wal.Append(ctx, ec.Intent.TenantID, ec.ExecutionID, eventType, data)
}
