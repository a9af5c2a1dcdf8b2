package outbox

import (
	"context"

	id "loom/pkg/domain"
)

// Store persists outbox events. Enqueue participates in the atomic commit
// unit; GetPending and MarkPublished are the relay's scan-and-ack loop.
//
// An event never leaves the pending set except through MarkPublished, so
// events can be delivered twice but never lost.
type Store interface {
	Enqueue(ctx context.Context, event Event) error
	GetPending(ctx context.Context, limit int) ([]Event, error)
	MarkPublished(ctx context.Context, eventID id.EventID) error
}
