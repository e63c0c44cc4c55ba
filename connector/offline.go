package connector

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flagsync/flagsync/engine"
	"github.com/flagsync/flagsync/store"
)

// BootstrapConnector performs exactly one hydration pass from the store at
// Start: no network access, no scheduled repetition. Stop is a no-op.
type BootstrapConnector struct {
	store   store.Store
	engine  engine.Engine
	logger  *slog.Logger
	onReady func()
	mu      sync.Mutex
}

// NewBootstrapConnector builds a one-shot store-to-engine connector.
func NewBootstrapConnector(st store.Store, eng engine.Engine, opts ...Option) *BootstrapConnector {
	o := newOptions(opts)
	return &BootstrapConnector{
		store:   st,
		engine:  eng,
		logger:  o.logger,
		onReady: o.onReady,
	}
}

func (b *BootstrapConnector) Start(ctx context.Context) error {
	if hydrate(ctx, b.store, b.engine, &b.mu, b.logger) && b.onReady != nil {
		b.onReady()
	}
	return nil
}

func (b *BootstrapConnector) Stop() {}

// OfflineConnector re-reads the store on a fixed schedule and never talks
// to the network. It serves environments where flags are refreshed into the
// cache out-of-band.
type OfflineConnector struct {
	store  store.Store
	engine engine.Engine
	logger *slog.Logger

	interval time.Duration
	jitter   time.Duration
	onReady  func()

	mu      sync.Mutex
	started atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewOfflineConnector builds an offline connector re-hydrating every
// interval±jitter. Interval defaults to 15s when unset.
func NewOfflineConnector(st store.Store, eng engine.Engine, interval, jitter time.Duration, opts ...Option) *OfflineConnector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	o := newOptions(opts)
	return &OfflineConnector{
		store:    st,
		engine:   eng,
		logger:   o.logger,
		interval: interval,
		jitter:   jitter,
		onReady:  o.onReady,
	}
}

func (c *OfflineConnector) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)
		c.pass(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(jittered(c.interval, c.jitter)):
				c.pass(ctx)
			}
		}
	}()
	return nil
}

func (c *OfflineConnector) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	select {
	case <-c.done:
	case <-time.After(stopGrace):
		c.logger.Warn("offline connector did not stop within grace period")
	}
}

func (c *OfflineConnector) pass(ctx context.Context) {
	if hydrate(ctx, c.store, c.engine, &c.mu, c.logger) && c.onReady != nil {
		c.onReady()
	}
}
