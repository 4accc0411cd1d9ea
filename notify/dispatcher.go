package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/steward/throttle"
)

// Dispatcher routes events to a sink, consulting the throttle store to
// suppress repeats inside the window.
type Dispatcher struct {
	sink    Sink
	records throttle.Store
	window  time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewDispatcher creates a dispatcher. A zero window disables throttling.
func NewDispatcher(sink Sink, records throttle.Store, window time.Duration, logger *slog.Logger) *Dispatcher {
	if sink == nil {
		sink = NopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		sink:    sink,
		records: records,
		window:  window,
		logger:  logger,
		now:     time.Now,
	}
}

// Dispatch delivers the event unless an event with the same throttle
// key was delivered within the window. It reports whether the event was
// actually delivered.
func (d *Dispatcher) Dispatch(ctx context.Context, e *Event) (bool, error) {
	now := d.now()
	if e.OccurredAt.IsZero() {
		e.OccurredAt = now
	}

	key := e.ThrottleKey()

	if d.window > 0 && d.records != nil {
		rec, err := d.records.GetRecord(ctx, key)
		if err != nil {
			return false, fmt.Errorf("notify: load throttle record: %w", err)
		}

		if rec != nil && now.Sub(rec.LastSentAt) < d.window {
			d.logger.Debug("notification throttled",
				"kind", e.Kind,
				"recipient", e.RecipientID.String(),
				"last_sent", rec.LastSentAt)

			return false, nil
		}
	}

	if err := d.sink.Deliver(ctx, e); err != nil {
		return false, fmt.Errorf("notify: deliver %s: %w", e.Kind, err)
	}

	if d.window > 0 && d.records != nil {
		if err := d.records.PutRecord(ctx, &throttle.Record{Key: key, LastSentAt: now}); err != nil {
			return true, fmt.Errorf("notify: save throttle record: %w", err)
		}
	}

	return true, nil
}
