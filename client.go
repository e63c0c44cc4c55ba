package flagsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/flagsync/flagsync/connector"
	"github.com/flagsync/flagsync/engine"
	"github.com/flagsync/flagsync/fetcher"
	"github.com/flagsync/flagsync/store"
)

const (
	sdkVersion  = "flagsync-go/1.0.0"
	specVersion = "1.0"

	// destroyGrace bounds how long Destroy waits for background tasks.
	destroyGrace = 5 * time.Second
)

// RunState is the client lifecycle state. Transitions are one-directional:
// Uninitialized -> Initialized -> Shutdown.
type RunState int32

const (
	StateUninitialized RunState = iota
	StateInitialized
	StateShutdown
)

func (s RunState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Client keeps a local flag snapshot consistent with the remote server and
// answers evaluation queries through the configured engine. Create it with
// New, start synchronization with Initialize, and release resources with
// Destroy.
type Client struct {
	cfg     Config
	engine  engine.Engine
	store   store.Store
	fetch   *fetcher.Fetcher // nil in offline and bootstrap modes
	headers http.Header

	logger        *slog.Logger
	eventCallback EventCallback
	readyCallback func() // latched; nil without an event callback

	connectionID string
	identity     string
	ownsStore    bool

	mu     sync.Mutex
	state  RunState
	conn   connector.Connector
	cancel context.CancelFunc
	tasks  *errgroup.Group
}

// Option configures optional client collaborators.
type Option func(*clientOptions)

type clientOptions struct {
	store         store.Store
	logger        *slog.Logger
	httpClient    *http.Client
	eventCallback EventCallback
}

// WithStore replaces the default file-backed store.
func WithStore(s store.Store) Option {
	return func(o *clientOptions) {
		if s != nil {
			o.store = s
		}
	}
}

// WithLogger sets the client logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *clientOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithHTTPClient replaces the HTTP client used for fetches, registration
// and metrics. The streaming channel manages its own client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithEventCallback registers the callback receiving Ready, Fetched and
// impression events.
func WithEventCallback(cb EventCallback) Option {
	return func(o *clientOptions) { o.eventCallback = cb }
}

// New validates cfg and builds a client around the given engine. Fatal
// configuration problems (malformed URL, bad header names, unknown mode)
// are reported here, before any background work exists.
func New(cfg Config, eng engine.Engine, opts ...Option) (*Client, error) {
	if eng == nil {
		return nil, fmt.Errorf("%w: engine is required", ErrInvalidConfig)
	}
	if cfg.AppName == "" {
		cfg.AppName = "default"
	}
	if cfg.Environment == "" {
		cfg.Environment = "default"
	}
	if cfg.Mode == "" {
		cfg.Mode = ModePolling
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 15 * time.Second
	}
	if cfg.MetricsInterval <= 0 {
		cfg.MetricsInterval = 60 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.RequestRetries <= 0 {
		cfg.RequestRetries = 3
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := &clientOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	headers := make(http.Header)
	if cfg.APIToken != "" {
		headers.Set("Authorization", cfg.APIToken)
	}
	for k, v := range cfg.CustomHeaders {
		headers.Set(k, v)
	}

	c := &Client{
		cfg:           cfg,
		engine:        eng,
		store:         o.store,
		headers:       headers,
		logger:        o.logger,
		eventCallback: o.eventCallback,
		connectionID:  uuid.NewString(),
	}
	c.readyCallback = buildReadyCallback(o.eventCallback, o.logger)

	if cfg.Mode.networked() {
		fetchOpts := []fetcher.Option{fetcher.WithLogger(o.logger)}
		if o.httpClient != nil {
			fetchOpts = append(fetchOpts, fetcher.WithHTTPClient(o.httpClient))
		}
		f, err := fetcher.New(fetcher.Config{
			URL:        cfg.URL,
			AppName:    cfg.AppName,
			InstanceID: cfg.InstanceID,
			Project:    cfg.Project,
			Headers:    headers,
			Timeout:    cfg.RequestTimeout,
			Retries:    cfg.RequestRetries,
		}, fetchOpts...)
		if err != nil {
			return nil, err
		}
		c.fetch = f
	}

	if c.store == nil {
		fs, err := store.NewFileStore(cfg.AppName, cfg.CacheDirectory)
		if err != nil {
			return nil, err
		}
		c.store = fs
		c.ownsStore = true
	}

	c.identity = identityKey(cfg.APIToken, cfg.AppName, cfg.InstanceID)
	if n := instances.register(c.identity); n > 1 {
		if cfg.StrictInstanceCheck {
			instances.release(c.identity)
			return nil, fmt.Errorf("%w: %s/%s", ErrDuplicateInstance, cfg.AppName, cfg.InstanceID)
		}
		c.logger.Warn("multiple client instances share one server identity; duplicate background polling is likely unintended",
			slog.String("app_name", cfg.AppName),
			slog.String("instance_id", cfg.InstanceID),
			slog.Int("instances", n))
	}

	return c, nil
}

// Initialize hydrates the engine from any pre-existing cache state,
// registers the client, starts the configured connector and the metrics
// loop, and transitions the client to the initialized state.
//
// Calling Initialize on an initialized or shut-down client logs a warning
// and returns nil without side effects. Any error leaves the client
// uninitialized.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateInitialized:
		c.logger.Warn("client already initialized; ignoring repeated Initialize")
		return nil
	case StateShutdown:
		c.logger.Warn("client already shut down; ignoring Initialize")
		return nil
	}

	if err := c.store.Set(ctx, store.KeyMetricsLastSent, time.Now().UTC().Format(time.RFC3339)); err != nil {
		c.logger.WarnContext(ctx, "persisting bookkeeping failed", slog.Any("error", err))
	}

	preloaded := c.hydrateFromStore(ctx)
	if (preloaded || c.store.Bootstrapped()) && c.readyCallback != nil {
		// A warm cache or pre-seeded state means evaluations already work:
		// readiness fires before any network activity.
		c.readyCallback()
	}

	if c.fetch != nil && !c.cfg.DisableRegistration {
		if err := c.register(ctx); err != nil {
			if errors.Is(err, fetcher.ErrInvalidURL) {
				return err
			}
			c.logger.WarnContext(ctx, "client registration failed", slog.Any("error", err))
		}
	}

	// Background work outlives the Initialize call but keeps its values
	// (loggers, trace metadata).
	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))

	if !c.cfg.DisableFetch {
		conn := c.buildConnector(preloaded)
		if err := conn.Start(bg); err != nil {
			cancel()
			return fmt.Errorf("starting %s connector: %w", c.cfg.Mode, err)
		}
		c.conn = conn
	}

	if c.fetch != nil && !c.cfg.DisableMetrics {
		c.tasks = &errgroup.Group{}
		c.tasks.Go(func() error {
			c.metricsLoop(bg)
			return nil
		})
	}

	c.cancel = cancel
	c.state = StateInitialized
	c.logger.InfoContext(ctx, "client initialized",
		slog.String("mode", string(c.cfg.Mode)),
		slog.String("app_name", c.cfg.AppName),
		slog.String("instance_id", c.cfg.InstanceID))
	return nil
}

// Destroy stops background work, waits (bounded) for completion, tears
// down the store if the client created it, and transitions to the shutdown
// state. It is idempotent and never fails.
func (c *Client) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateShutdown {
		return
	}

	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil {
		c.conn.Stop()
	}
	if c.tasks != nil {
		done := make(chan struct{})
		go func() {
			_ = c.tasks.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(destroyGrace):
			c.logger.Warn("background tasks did not stop within grace period")
		}
	}

	// Injected stores belong to the host application; only the default
	// file store created here is torn down.
	if c.ownsStore {
		if err := c.store.Destroy(context.Background()); err != nil {
			c.logger.Warn("cache teardown failed", slog.Any("error", err))
		}
	}

	instances.release(c.identity)
	c.state = StateShutdown
	c.logger.Info("client shut down", slog.String("app_name", c.cfg.AppName))
}

// IsInitialized reports whether the client is in the initialized state.
func (c *Client) IsInitialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateInitialized
}

// hydrateFromStore loads cached feature state into the engine so the
// client serves last-known flags before the first network round trip.
func (c *Client) hydrateFromStore(ctx context.Context) bool {
	state, ok, err := c.store.Get(ctx, store.KeyFeatureState)
	if err != nil {
		c.logger.WarnContext(ctx, "reading cached feature state failed", slog.Any("error", err))
		return false
	}
	if !ok || state == "" {
		return false
	}
	warnings, err := c.engine.TakeState(json.RawMessage(state))
	if err != nil {
		c.logger.WarnContext(ctx, "loading cached feature state failed", slog.Any("error", err))
		return false
	}
	if len(warnings) > 0 {
		c.logger.WarnContext(ctx, "some cached features could not be parsed", slog.Any("warnings", warnings))
	}
	c.logger.DebugContext(ctx, "engine hydrated from cached state")
	return true
}

func (c *Client) register(ctx context.Context) error {
	return c.fetch.Register(ctx, fetcher.Registration{
		AppName:      c.cfg.AppName,
		InstanceID:   c.cfg.InstanceID,
		ConnectionID: c.connectionID,
		SDKVersion:   sdkVersion,
		SpecVersion:  specVersion,
		Strategies:   []string{"default"},
		Started:      time.Now().UTC(),
		Interval:     c.cfg.MetricsInterval.Milliseconds(),
	})
}

func (c *Client) buildConnector(preloaded bool) connector.Connector {
	common := []connector.Option{connector.WithLogger(c.logger)}
	if c.readyCallback != nil {
		common = append(common, connector.WithReadyCallback(c.readyCallback))
	}
	if preloaded {
		common = append(common, connector.WithPreloadedState())
	}

	switch c.cfg.Mode {
	case ModeStreaming:
		processor := connector.NewEventProcessor(c.engine, c.store, common...)
		return connector.NewStreamingConnector(connector.StreamingConfig{
			URL:       strings.TrimRight(c.cfg.URL, "/") + fetcher.StreamingPath,
			Headers:   c.headers,
			Heartbeat: c.cfg.StreamingHeartbeat,
		}, processor, common...)

	case ModeOffline:
		return connector.NewOfflineConnector(c.store, c.engine, c.cfg.RefreshInterval, c.cfg.RefreshJitter, common...)

	case ModeBootstrap:
		return connector.NewBootstrapConnector(c.store, c.engine, common...)

	default: // polling and deltas
		common = append(common, connector.WithFetchedCallback(c.onFetched))
		return connector.NewPollingConnector(c.fetch, c.store, c.engine, connector.PollingConfig{
			Interval:  c.cfg.RefreshInterval,
			Jitter:    c.cfg.RefreshJitter,
			UseDeltas: c.cfg.Mode == ModeDeltas,
		}, common...)
	}
}

func (c *Client) onFetched(state json.RawMessage) {
	if c.eventCallback == nil {
		return
	}
	invokeCallback(c.eventCallback, FetchedEvent{
		baseEvent: baseEvent{eventType: EventFetched, id: uuid.New()},
		RawState:  state,
	}, c.logger)
}

// metricsLoop periodically drains the engine's metrics bucket and submits
// it. Submission is skipped entirely when there is nothing to report.
func (c *Client) metricsLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(jitteredInterval(c.cfg.MetricsInterval, c.cfg.MetricsJitter)):
			c.flushMetrics(ctx)
		}
	}
}

func (c *Client) flushMetrics(ctx context.Context) {
	bucket := c.engine.MetricsBucket()
	if len(bucket) == 0 || string(bucket) == "null" {
		c.logger.DebugContext(ctx, "no metrics to report; skipping submission")
		return
	}

	err := c.fetch.SendMetrics(ctx, fetcher.MetricsPayload{
		AppName:         c.cfg.AppName,
		InstanceID:      c.cfg.InstanceID,
		ConnectionID:    c.connectionID,
		Bucket:          bucket,
		PlatformName:    "go",
		PlatformVersion: runtime.Version(),
		SpecVersion:     specVersion,
	})
	if err != nil {
		if ctx.Err() == nil {
			c.logger.WarnContext(ctx, "metrics submission failed", slog.Any("error", err))
		}
		return
	}

	if err := c.store.Set(ctx, store.KeyMetricsLastSent, time.Now().UTC().Format(time.RFC3339)); err != nil {
		c.logger.WarnContext(ctx, "persisting metrics timestamp failed", slog.Any("error", err))
	}
}

func jitteredInterval(interval, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return interval
	}
	d := interval + time.Duration(rand.Int63n(int64(2*jitter))) - jitter
	if d <= 0 {
		return interval
	}
	return d
}
