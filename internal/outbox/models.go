package outbox

import (
	"time"

	id "loom/pkg/domain"
)

// Event is one outbox row. It is written atomically alongside the lifecycle
// state change it announces, so "event exists" and "state changed" can never
// diverge. Publication is a separate, retryable step.
type Event struct {
	ID          id.EventID
	TenantID    id.TenantID
	ExecutionID id.ExecutionID
	Type        string
	Payload     map[string]any
	CreatedAt   time.Time
	Published   bool
	PublishedAt *time.Time
}

// Envelope is the wire shape published downstream. Delivery is
// at-least-once; consumers dedupe on EventID.
type Envelope struct {
	EventID     string         `json:"event_id"`
	EventType   string         `json:"event_type"`
	TenantID    string         `json:"tenant_id"`
	ExecutionID string         `json:"execution_id,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
	Payload     map[string]any `json:"payload"`
}

// Envelope converts the stored row into its wire shape.
func (e Event) Envelope() Envelope {
	env := Envelope{
		EventID:    e.ID.String(),
		EventType:  e.Type,
		TenantID:   e.TenantID.String(),
		OccurredAt: e.CreatedAt,
		Payload:    e.Payload,
	}
	if !e.ExecutionID.IsNil() {
		env.ExecutionID = e.ExecutionID.String()
	}
	return env
}
