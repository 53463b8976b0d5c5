package engine

import (
	"context"
	"errors"
	"time"

	"loginguard/internal/model"
)

// Sink receives every processed event, scored when a model is serving.
type Sink interface {
	Publish(ctx context.Context, ev model.LoginEvent) error
}

type SinkFunc func(ctx context.Context, ev model.LoginEvent) error

func (f SinkFunc) Publish(ctx context.Context, ev model.LoginEvent) error {
	return f(ctx, ev)
}

// SetDedupeWindow sets how long an identical event is suppressed. Zero
// disables suppression.
func (e *Engine) SetDedupeWindow(d time.Duration) {
	e.dedupeWindow.Store(int64(d))
}

// Start consumes in until ctx is done or in is closed.
func (e *Engine) Start(ctx context.Context, in <-chan model.LoginEvent, sinks ...Sink) {
	go func() {
		for {
			select {
			case ev, ok := <-in:
				if !ok {
					return
				}
				e.Process(ctx, ev, sinks...)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Process scores ev and hands the result to each sink. Events arriving while
// no model is loaded are passed on unscored. It reports false for suppressed
// duplicates.
func (e *Engine) Process(ctx context.Context, ev model.LoginEvent, sinks ...Sink) bool {
	if window := time.Duration(e.dedupeWindow.Load()); window > 0 {
		if e.dedupe.Seen(eventKey(ev), time.Now().UTC(), window) {
			e.metrics.ScoreError("duplicate")
			return false
		}
	}
	out, err := e.ScoreEvent(ev)
	if err != nil && !errors.Is(err, ErrNotReady) {
		return true
	}
	for _, sink := range sinks {
		if sink == nil {
			continue
		}
		if err := sink.Publish(ctx, out); err != nil && e.logger != nil {
			e.logger.Warn("sink publish failed", "user_id", out.UserID, "error", err)
		}
	}
	return true
}
