package outbox

import (
	"context"
	"log/slog"
	"time"

	"loom/internal/outbox/metrics"
)

// Relay scans for unpublished events and pushes them downstream one at a
// time, marking each published only after delivery succeeded. Keeps
// background processing testable without wiring broker implementations.
type Relay struct {
	store     Store
	publisher Publisher
	log       *slog.Logger
	metrics   *metrics.Metrics
	interval  time.Duration
	batchSize int
}

func NewRelay(store Store, publisher Publisher, log *slog.Logger, m *metrics.Metrics, interval time.Duration, batchSize int) *Relay {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{
		store:     store,
		publisher: publisher,
		log:       log,
		metrics:   m,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Run loops until the context is cancelled. Publish failures are logged and
// retried on the next tick; the event stays pending until acknowledged.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Drain(ctx); err != nil {
				r.log.Error("outbox drain failed", "error", err)
			}
		}
	}
}

// Drain publishes every currently-pending event. Exported so tests and the
// composition root can flush without the ticker.
func (r *Relay) Drain(ctx context.Context) error {
	pending, err := r.store.GetPending(ctx, r.batchSize)
	if err != nil {
		return err
	}
	if r.metrics != nil {
		r.metrics.Pending.Set(float64(len(pending)))
	}

	for _, event := range pending {
		start := time.Now()
		if err := r.publisher.Publish(ctx, event.Envelope()); err != nil {
			if r.metrics != nil {
				r.metrics.PublishFailed.Inc()
			}
			r.log.Error("publish failed, will retry",
				"event_id", event.ID.String(),
				"event_type", event.Type,
				"error", err)
			// Leave the event pending for the next tick.
			continue
		}
		if r.metrics != nil {
			r.metrics.Published.Inc()
			r.metrics.PublishLatency.Observe(time.Since(start).Seconds())
		}
		if err := r.store.MarkPublished(ctx, event.ID); err != nil {
			// Delivered but not acknowledged: the event will be
			// re-published next tick. Consumers dedupe on event id.
			r.log.Warn("mark published failed, event will duplicate",
				"event_id", event.ID.String(),
				"error", err)
		}
	}
	return nil
}
