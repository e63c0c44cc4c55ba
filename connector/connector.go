package connector

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/flagsync/flagsync/engine"
	"github.com/flagsync/flagsync/store"
)

// stopGrace bounds how long Stop waits for an in-flight cycle. Network
// calls carry their own timeouts, so this only guards against bugs.
const stopGrace = 35 * time.Second

// Connector owns one delivery strategy's lifecycle. Exactly one connector
// is active per client; it is created at initialization and stopped at
// destroy.
//
// Start launches the connector's background work and returns immediately.
// Stop signals cancellation cooperatively and waits (bounded) for in-flight
// work. Both are safe to call once each; Stop before Start is a no-op.
type Connector interface {
	Start(ctx context.Context) error
	Stop()
}

// Option configures optional connector behavior shared by all variants.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	onReady   func()
	onFetched func(json.RawMessage)
	hydrated  bool
}

func newOptions(opts []Option) *options {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets the connector logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithReadyCallback registers the readiness signal. Connectors may invoke
// it repeatedly; the client collapses repeats behind a fire-once latch.
func WithReadyCallback(fn func()) Option {
	return func(o *options) { o.onReady = fn }
}

// WithFetchedCallback registers a callback invoked with the raw payload of
// every successful fetch.
func WithFetchedCallback(fn func(json.RawMessage)) Option {
	return func(o *options) { o.onFetched = fn }
}

// WithPreloadedState marks the engine as already hydrated (from cache or
// bootstrap) before the connector starts, so readiness can fire on cycles
// that bring no new payload.
func WithPreloadedState() Option {
	return func(o *options) { o.hydrated = true }
}

// jittered returns interval shifted by a uniformly random offset in
// [-jitter, +jitter].
func jittered(interval, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return interval
	}
	d := interval + time.Duration(rand.Int63n(int64(2*jitter))) - jitter
	if d <= 0 {
		return interval
	}
	return d
}

// hydrate loads the cached feature state into the engine under mu. It
// returns true when the engine ingested a state payload.
func hydrate(ctx context.Context, st store.Store, eng engine.Engine, mu *sync.Mutex, logger *slog.Logger) bool {
	state, ok, err := st.Get(ctx, store.KeyFeatureState)
	if err != nil {
		logger.WarnContext(ctx, "reading cached feature state failed", slog.Any("error", err))
		return false
	}
	if !ok || state == "" {
		logger.WarnContext(ctx, "no cached feature state; make sure the client can reach the server or the store is pre-seeded")
		return false
	}

	mu.Lock()
	warnings, err := eng.TakeState(json.RawMessage(state))
	mu.Unlock()
	if err != nil {
		logger.ErrorContext(ctx, "loading cached feature state into engine failed", slog.Any("error", err))
		return false
	}
	logTakeStateWarnings(ctx, logger, warnings)
	return true
}

func logTakeStateWarnings(ctx context.Context, logger *slog.Logger, warnings []string) {
	if len(warnings) == 0 {
		return
	}
	logger.WarnContext(ctx, "some features could not be parsed and may not evaluate as expected",
		slog.Any("warnings", warnings))
}
