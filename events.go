package flagsync

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/flagsync/flagsync/engine"
)

// EventType discriminates the notifications delivered to the event callback.
type EventType string

const (
	// EventReady fires exactly once, when the engine first holds usable
	// flag state.
	EventReady EventType = "ready"
	// EventFetched fires on every successful fetch carrying a new payload.
	EventFetched EventType = "fetched"
	// EventFeatureFlag fires per IsEnabled call on flags configured for
	// impression eventing.
	EventFeatureFlag EventType = "feature_flag"
	// EventVariant fires per GetVariant call on flags configured for
	// impression eventing.
	EventVariant EventType = "variant"
)

// Event is a value object describing a client state change or evaluation.
// Events are created at the point of change, delivered synchronously, and
// never persisted or retried.
type Event interface {
	Type() EventType
	ID() uuid.UUID
}

type baseEvent struct {
	eventType EventType
	id        uuid.UUID
}

func (e baseEvent) Type() EventType { return e.eventType }
func (e baseEvent) ID() uuid.UUID   { return e.id }

// ReadyEvent signals that flag state is loaded and evaluations are served
// from real data.
type ReadyEvent struct {
	baseEvent
}

// FetchedEvent carries the raw payload of a successful fetch.
type FetchedEvent struct {
	baseEvent
	RawState json.RawMessage
}

// ImpressionEvent describes a single evaluation. Its Type is
// EventFeatureFlag for IsEnabled calls and EventVariant for GetVariant
// calls.
type ImpressionEvent struct {
	baseEvent
	FeatureName string
	Enabled     bool
	Variant     string
	Context     engine.Context
}

// EventCallback receives client events. Callbacks run synchronously on the
// calling goroutine; panics are recovered and logged, never propagated.
type EventCallback func(Event)

// buildReadyCallback wraps cb in a fire-once latch so repeated readiness
// signals from a connector collapse to a single delivery. Returns nil when
// there is no callback to notify.
func buildReadyCallback(cb EventCallback, logger *slog.Logger) func() {
	if cb == nil {
		return nil
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			invokeCallback(cb, ReadyEvent{baseEvent{eventType: EventReady, id: uuid.New()}}, logger)
		})
	}
}

// invokeCallback shields the client from user callback panics.
func invokeCallback(cb EventCallback, ev Event, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("event callback panicked",
				slog.String("event_type", string(ev.Type())),
				slog.Any("panic", r))
		}
	}()
	cb(ev)
}
