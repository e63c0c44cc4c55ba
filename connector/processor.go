package connector

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/flagsync/flagsync/engine"
	"github.com/flagsync/flagsync/store"
)

// Named events on the streaming channel.
const (
	// EventConnected carries the initial hydration snapshot. The server
	// re-sends it after every reconnect.
	EventConnected = "connected"
	// EventUpdated carries an incremental delta.
	EventUpdated = "updated"
)

// StreamEvent is the subset of an SSE event the processor consumes.
type StreamEvent interface {
	Event() string
	Data() string
}

// EventProcessor applies streamed state transitions to the engine under a
// mutual-exclusion lock and tracks whether initial hydration has occurred.
// Connected snapshots are persisted to the store so a restarted client can
// serve last-known flags before reconnecting. The processor is deliberately
// unaware of connection and reconnect concerns.
type EventProcessor struct {
	engine   engine.Engine
	store    store.Store
	mu       sync.Mutex
	hydrated atomic.Bool
	logger   *slog.Logger
}

// NewEventProcessor builds a processor for the given engine. A nil store
// disables snapshot persistence.
func NewEventProcessor(eng engine.Engine, st store.Store, opts ...Option) *EventProcessor {
	o := newOptions(opts)
	p := &EventProcessor{engine: eng, store: st, logger: o.logger}
	p.hydrated.Store(o.hydrated)
	return p
}

// Hydrated reports whether a connected snapshot was applied successfully.
// The flag is set at most once from false to true and never resets.
func (p *EventProcessor) Hydrated() bool {
	return p.hydrated.Load()
}

// Process handles a single stream event. Payload application order matches
// arrival order; deltas are never reordered or coalesced. Unknown event
// types are ignored. Hydration is recorded only when the engine accepted
// the connected payload: a swallowed ingestion failure must not make the
// client look ready with an empty engine.
func (p *EventProcessor) Process(ctx context.Context, ev StreamEvent) {
	switch ev.Event() {
	case EventConnected:
		if !p.apply(ctx, ev.Data()) {
			return
		}
		p.persist(ctx, ev.Data())
		if p.hydrated.CompareAndSwap(false, true) {
			p.logger.Debug("engine hydrated from stream")
		}
	case EventUpdated:
		p.apply(ctx, ev.Data())
	default:
		p.logger.Debug("ignoring stream event", slog.String("event", ev.Event()))
	}
}

// apply feeds one payload to the engine and reports whether it was
// accepted.
func (p *EventProcessor) apply(ctx context.Context, data string) bool {
	if data == "" {
		return false
	}
	p.mu.Lock()
	warnings, err := p.engine.TakeState(json.RawMessage(data))
	p.mu.Unlock()
	if err != nil {
		p.logger.WarnContext(ctx, "applying streamed state failed", slog.Any("error", err))
		return false
	}
	if len(warnings) > 0 {
		p.logger.WarnContext(ctx, "some features could not be parsed and may not evaluate as expected",
			slog.Any("warnings", warnings))
	}
	return true
}

// persist caches a connected snapshot, which is a full feature-state
// document. Deltas are not re-persisted: the merged state lives in the
// engine, and the next reconnect snapshot refreshes the cache.
func (p *EventProcessor) persist(ctx context.Context, data string) {
	if p.store == nil {
		return
	}
	if err := p.store.Set(ctx, store.KeyFeatureState, data); err != nil {
		p.logger.WarnContext(ctx, "persisting streamed state failed", slog.Any("error", err))
	}
}
