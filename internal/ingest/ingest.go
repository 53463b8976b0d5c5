package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"loginguard/internal/config"
	"loginguard/internal/geo"
	"loginguard/internal/model"
	"loginguard/internal/normalize"
)

// ErrDropped means the event was valid but the pipeline had no room for it.
var ErrDropped = errors.New("event dropped: pipeline full")

// Source bundles what every ingest path needs to turn raw records into
// validated events.
type Source struct {
	Config  *config.Manager
	Locator geo.Locator
	Out     chan<- model.LoginEvent
	Logger  *slog.Logger
}

func (s Source) options() normalize.Options {
	return normalize.Options{
		Locator:  s.Locator,
		Location: s.Config.Get().Location(),
	}
}

// Accept parses and validates one JSON record and forwards it.
func (s Source) Accept(ctx context.Context, data []byte, origin string) error {
	fields, err := ParseJSONBytes(data)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warn("undecodable login record", "source", origin, "err", err)
		}
		return err
	}
	return s.forward(ctx, fields, origin)
}

// Decode parses and validates one JSON record without forwarding it.
func (s Source) Decode(data []byte) (model.LoginEvent, error) {
	fields, err := ParseJSONBytes(data)
	if err != nil {
		return model.LoginEvent{}, err
	}
	return normalize.Normalize(*fields, s.options())
}

// AcceptMap is Accept for a record that is already decoded.
func (s Source) AcceptMap(ctx context.Context, obj map[string]any, origin string) error {
	return s.forward(ctx, ParseJSONMap(obj), origin)
}

func (s Source) forward(ctx context.Context, fields *normalize.EventFields, origin string) error {
	ev, err := normalize.Normalize(*fields, s.options())
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warn("rejected login record", "source", origin, "err", err)
		}
		return err
	}
	if !SendNonBlocking(ctx, s.Out, ev, s.Logger) {
		return ErrDropped
	}
	return nil
}

func SendNonBlocking(ctx context.Context, out chan<- model.LoginEvent, ev model.LoginEvent, logger *slog.Logger) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	default:
		if logger != nil {
			logger.Warn("event channel full, dropping event", "user_id", ev.UserID, "timestamp", ev.Timestamp)
		}
		return false
	}
}

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
