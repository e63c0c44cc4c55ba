package connector

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/launchdarkly/eventsource"

	"github.com/flagsync/flagsync/fetcher"
)

// StreamingConfig holds the immutable settings of a streaming connector.
type StreamingConfig struct {
	// URL is the full streaming endpoint URL.
	URL string
	// Headers are merged into the stream request.
	Headers http.Header
	// Heartbeat forces a transport reconnect when no event of any kind
	// arrives within the window. Defaults to 60s.
	Heartbeat time.Duration
	// InitialRetry is the first reconnect delay. Defaults to 2s.
	InitialRetry time.Duration
	// MaxRetry caps the reconnect backoff. Defaults to 30s.
	MaxRetry time.Duration
}

// StreamingConnector owns the SSE connection lifecycle. The underlying
// transport handles its own reconnect backoff; the connector's outer loop
// additionally survives catastrophic transport failures so the background
// task never dies silently.
type StreamingConnector struct {
	cfg       StreamingConfig
	processor *EventProcessor
	client    *http.Client
	logger    *slog.Logger
	onReady   func()

	started atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewStreamingConnector builds a streaming connector delegating event
// semantics to processor.
func NewStreamingConnector(cfg StreamingConfig, processor *EventProcessor, opts ...Option) *StreamingConnector {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 60 * time.Second
	}
	if cfg.InitialRetry <= 0 {
		cfg.InitialRetry = 2 * time.Second
	}
	if cfg.MaxRetry <= 0 {
		cfg.MaxRetry = 30 * time.Second
	}
	o := newOptions(opts)
	return &StreamingConnector{
		cfg:       cfg,
		processor: processor,
		logger:    o.logger,
		onReady:   o.onReady,
		// No overall client timeout: the connection is long-lived. Staleness
		// is handled by the stream's read timeout instead.
		client: &http.Client{Transport: &http.Transport{IdleConnTimeout: 90 * time.Second}},
	}
}

// WithStreamHTTPClient replaces the stream's HTTP client. The client must
// not set an overall request timeout.
func (c *StreamingConnector) WithStreamHTTPClient(client *http.Client) *StreamingConnector {
	if client != nil {
		c.client = client
	}
	return c
}

func (c *StreamingConnector) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.run(ctx)
	return nil
}

func (c *StreamingConnector) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	select {
	case <-c.done:
	case <-time.After(stopGrace):
		c.logger.Warn("streaming connector did not stop within grace period")
	}
}

func (c *StreamingConnector) run(ctx context.Context) {
	defer close(c.done)

	restarts := fetcher.ExponentialBackoff{
		InitialInterval: c.cfg.InitialRetry,
		MaxInterval:     c.cfg.MaxRetry,
		JitterFactor:    0.5,
	}

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		err := c.streamOnce(ctx)
		if ctx.Err() != nil {
			return
		}

		attempt++
		delay := restarts.NextInterval(attempt)
		c.logger.WarnContext(ctx, "stream ended; restarting",
			slog.Any("error", err),
			slog.Duration("delay", delay))
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// streamOnce subscribes and consumes events until the context is canceled
// or the stream dies. A panicking transport is converted into an error so
// the outer loop can restart it; already-applied engine state is never
// lost by a reconnect.
func (c *StreamingConnector) streamOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("streaming transport panic: %v", r)
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("building stream request: %w", err)
	}
	for k, vs := range c.cfg.Headers {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}
	req.Header.Set("Accept", "text/event-stream")

	c.logger.InfoContext(ctx, "connecting to streaming endpoint", slog.String("url", c.cfg.URL))

	// First-connection retries stay with the outer restart loop: it selects
	// on ctx, while the transport's internal retry window would keep Stop
	// waiting until it elapsed.
	stream, err := eventsource.SubscribeWithRequestAndOptions(req,
		eventsource.StreamOptionHTTPClient(c.client),
		eventsource.StreamOptionReadTimeout(c.cfg.Heartbeat),
		eventsource.StreamOptionInitialRetry(c.cfg.InitialRetry),
		eventsource.StreamOptionUseBackoff(c.cfg.MaxRetry),
		eventsource.StreamOptionUseJitter(0.5),
		eventsource.StreamOptionErrorHandler(func(streamErr error) eventsource.StreamErrorHandlerResult {
			c.logger.WarnContext(ctx, "stream error; transport will reconnect", slog.Any("error", streamErr))
			return eventsource.StreamErrorHandlerResult{CloseNow: false}
		}),
	)
	if err != nil {
		return fmt.Errorf("subscribing to stream: %w", err)
	}
	defer stream.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-stream.Events:
			if !ok {
				return ErrStreamClosed
			}
			c.processor.Process(ctx, ev)
			if ev.Event() == EventConnected && c.processor.Hydrated() && c.onReady != nil {
				c.onReady()
			}
		}
	}
}
