package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flagsync/flagsync/engine"
	"github.com/flagsync/flagsync/fetcher"
	"github.com/flagsync/flagsync/store"
)

// hydrationMarker identifies the hydration event inside a delta payload.
// The delta endpoint guarantees the first event of a fresh stream is a
// hydration snapshot.
var hydrationMarker = []byte(`"type":"hydration"`)

// PollingConfig holds the immutable schedule of a polling connector.
type PollingConfig struct {
	// Interval between fetch cycles.
	Interval time.Duration
	// Jitter shifts each interval by a random offset in [-Jitter, +Jitter].
	Jitter time.Duration
	// UseDeltas switches the connector from full flag-set fetches to the
	// incremental delta endpoint.
	UseDeltas bool
}

// PollingConnector repeats Fetch -> Apply -> Sleep until stopped. A failed
// fetch leaves the engine and cache untouched; the previous state stays
// authoritative until the next cycle.
type PollingConnector struct {
	fetcher *fetcher.Fetcher
	store   store.Store
	engine  engine.Engine
	cfg     PollingConfig

	logger    *slog.Logger
	onReady   func()
	onFetched func(json.RawMessage)

	mu       sync.Mutex
	hydrated atomic.Bool
	started  atomic.Bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewPollingConnector builds a polling connector. Interval defaults to 15s
// when unset.
func NewPollingConnector(f *fetcher.Fetcher, st store.Store, eng engine.Engine, cfg PollingConfig, opts ...Option) *PollingConnector {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	o := newOptions(opts)
	p := &PollingConnector{
		fetcher:   f,
		store:     st,
		engine:    eng,
		cfg:       cfg,
		logger:    o.logger,
		onReady:   o.onReady,
		onFetched: o.onFetched,
	}
	p.hydrated.Store(o.hydrated)
	return p
}

// Start runs the first cycle immediately, then repeats on the configured
// interval until the context is canceled or Stop is called.
func (p *PollingConnector) Start(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		p.cycle(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(jittered(p.cfg.Interval, p.cfg.Jitter)):
				p.cycle(ctx)
			}
		}
	}()
	return nil
}

// Stop cancels the loop and waits for the in-flight cycle. The wait is
// bounded: fetches carry their own timeouts, so this returns promptly.
func (p *PollingConnector) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	select {
	case <-p.done:
	case <-time.After(stopGrace):
		p.logger.Warn("polling connector did not stop within grace period")
	}
}

func (p *PollingConnector) cycle(ctx context.Context) {
	if p.cfg.UseDeltas {
		p.deltaCycle(ctx)
	} else {
		p.fullCycle(ctx)
	}
}

func (p *PollingConnector) fullCycle(ctx context.Context) {
	etag, _, _ := p.store.Get(ctx, store.KeyETag)

	res, err := p.fetcher.FetchFeatures(ctx, etag)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.WarnContext(ctx, "feature fetch failed; keeping cached state", slog.Any("error", err))
		p.signalReady()
		return
	}

	if !res.Modified {
		p.logger.DebugContext(ctx, "feature state unchanged")
		if res.ETag != "" && res.ETag != etag {
			if err := p.store.Set(ctx, store.KeyETag, res.ETag); err != nil {
				p.logger.WarnContext(ctx, "persisting etag failed", slog.Any("error", err))
			}
		}
		p.signalReady()
		return
	}

	p.mu.Lock()
	warnings, err := p.engine.TakeState(res.State)
	p.mu.Unlock()
	if err != nil {
		p.logger.ErrorContext(ctx, "applying fetched state failed", slog.Any("error", err))
		p.signalReady()
		return
	}
	logTakeStateWarnings(ctx, p.logger, warnings)
	p.hydrated.Store(true)

	values := map[string]string{store.KeyFeatureState: string(res.State)}
	if res.ETag != "" {
		values[store.KeyETag] = res.ETag
	}
	if err := p.store.MSet(ctx, values); err != nil {
		p.logger.WarnContext(ctx, "persisting fetched state failed", slog.Any("error", err))
	}

	if p.onFetched != nil {
		p.onFetched(res.State)
	}
	p.signalReady()
}

// deltaCycle applies an ordered event list from the delta endpoint. The
// token is persisted even on 304 answers; readiness waits for the payload
// carrying the hydration snapshot.
func (p *PollingConnector) deltaCycle(ctx context.Context) {
	etag, _, _ := p.store.Get(ctx, store.KeyETag)

	res, err := p.fetcher.FetchDeltas(ctx, etag)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.WarnContext(ctx, "delta fetch failed; keeping current state", slog.Any("error", err))
		p.signalReady()
		return
	}

	if res.ETag != "" && res.ETag != etag {
		if err := p.store.Set(ctx, store.KeyETag, res.ETag); err != nil {
			p.logger.WarnContext(ctx, "persisting etag failed", slog.Any("error", err))
		}
	}

	if !res.Modified {
		p.logger.DebugContext(ctx, "no deltas to apply")
		p.signalReady()
		return
	}

	p.mu.Lock()
	warnings, err := p.engine.TakeState(res.State)
	p.mu.Unlock()
	if err != nil {
		p.logger.WarnContext(ctx, "applying delta failed", slog.Any("error", err))
		p.signalReady()
		return
	}
	logTakeStateWarnings(ctx, p.logger, warnings)

	if bytes.Contains(res.State, hydrationMarker) {
		p.hydrated.Store(true)
	}
	if p.onFetched != nil {
		p.onFetched(res.State)
	}
	p.signalReady()
}

// signalReady reports readiness once the engine holds usable state. The
// client-side latch collapses repeated signals to a single delivery.
func (p *PollingConnector) signalReady() {
	if p.hydrated.Load() && p.onReady != nil {
		p.onReady()
	}
}
