package intent

import (
	"time"

	id "loom/pkg/domain"
	dErrors "loom/pkg/domain-errors"
)

// Intent is an immutable, validated request descriptor. A caller constructs
// it, the lifecycle manager validates it once and consumes it exactly once.
// Invariant: all five identity fields are non-empty; Parameters and Metadata
// are structurally maps, never scalars.
type Intent struct {
	ID             id.IntentID
	Type           string
	TenantID       id.TenantID
	UserID         id.UserID
	SessionID      id.SessionID
	SolutionID     id.SolutionID
	Parameters     map[string]any
	Metadata       map[string]any
	IdempotencyKey string
	CreatedAt      time.Time
}

// New builds an intent with fresh identity and timestamps. Parameters and
// metadata default to empty maps so Validate's map invariant holds for
// callers that pass nil.
func New(intentType string, tenantID id.TenantID, userID id.UserID, sessionID id.SessionID, solutionID id.SolutionID) *Intent {
	return &Intent{
		ID:         id.NewIntentID(),
		Type:       intentType,
		TenantID:   tenantID,
		UserID:     userID,
		SessionID:  sessionID,
		SolutionID: solutionID,
		Parameters: map[string]any{},
		Metadata:   map[string]any{},
		CreatedAt:  time.Now(),
	}
}

// Validate enforces the structural invariants. A failed intent is never
// persisted; validation happens before any side effect.
func (i *Intent) Validate() error {
	if i == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "intent is required")
	}
	if i.ID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "intent id is required")
	}
	if i.Type == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "intent type is required")
	}
	if i.TenantID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "tenant id is required")
	}
	if i.SessionID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "session id is required")
	}
	if i.SolutionID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "solution id is required")
	}
	if i.Parameters == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "parameters must be a map")
	}
	if i.Metadata == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "metadata must be a map")
	}
	return nil
}

// Workspace identifies the caller's workspace for scope computation.
// Materializations are workspace-scoped by default, not globally shared.
type Workspace struct {
	TenantID   id.TenantID
	UserID     id.UserID
	SessionID  id.SessionID
	SolutionID id.SolutionID
}

// Workspace derives the workspace identity carried by the intent.
func (i *Intent) Workspace() Workspace {
	return Workspace{
		TenantID:   i.TenantID,
		UserID:     i.UserID,
		SessionID:  i.SessionID,
		SolutionID: i.SolutionID,
	}
}
