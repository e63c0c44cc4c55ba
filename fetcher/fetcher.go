package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Server endpoint paths, relative to the configured base URL.
const (
	FeaturesPath  = "/api/client/features"
	DeltaPath     = "/api/client/delta"
	RegisterPath  = "/api/client/register"
	MetricsPath   = "/api/client/metrics"
	StreamingPath = "/api/client/streaming"
)

// Identification headers sent with every request.
const (
	HeaderAppName    = "X-App-Name"
	HeaderInstanceID = "X-Instance-Id"
)

// Transient status codes retried with backoff.
var transientStatuses = map[int]struct{}{
	http.StatusInternalServerError: {},
	http.StatusBadGateway:          {},
	http.StatusGatewayTimeout:      {},
}

// Config holds the immutable per-fetcher settings.
type Config struct {
	// URL is the server base URL, e.g. "https://flags.example.com".
	URL string
	// AppName and InstanceID identify this client to the server.
	AppName    string
	InstanceID string
	// Project optionally filters the fetched flag set.
	Project string
	// Headers are merged into every request (authorization, custom headers).
	Headers http.Header
	// Timeout bounds each individual HTTP request.
	Timeout time.Duration
	// Retries is the number of additional attempts after a transient failure.
	Retries int
}

// Result is the outcome of a single conditional retrieval.
type Result struct {
	// State is the response body; nil when the server answered 304.
	State json.RawMessage
	// ETag is the conditional token to persist for the next request. On a
	// 304 it is the response token if present, otherwise the token the
	// request was made with.
	ETag string
	// Modified reports whether State carries a new payload.
	Modified bool
}

// Fetcher performs conditional retrieval of feature state and deltas, plus
// the one-shot registration and periodic metrics submissions.
type Fetcher struct {
	cfg     Config
	base    *url.URL
	client  *http.Client
	backoff BackoffStrategy
	logger  *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithBackoff replaces the transient-failure backoff strategy.
func WithBackoff(b BackoffStrategy) Option {
	return func(f *Fetcher) {
		if b != nil {
			f.backoff = b
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// New validates cfg and builds a Fetcher. A malformed base URL is a fatal
// configuration error (ErrInvalidURL): callers must not retry or suppress
// it.
func New(cfg Config, opts ...Option) (*Fetcher, error) {
	base, err := parseBaseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	f := &Fetcher{
		cfg:     cfg,
		base:    base,
		backoff: DefaultBackoffStrategy(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return f, nil
}

func parseBaseURL(rawURL string) (*url.URL, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("%w: URL is required", ErrInvalidURL)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: only http and https schemes are supported", ErrInvalidURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidURL)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	return u, nil
}

// FetchFeatures performs a conditional GET of the full flag set.
func (f *Fetcher) FetchFeatures(ctx context.Context, etag string) (*Result, error) {
	query := url.Values{}
	if f.cfg.Project != "" {
		query.Set("project", f.cfg.Project)
	}
	return f.fetch(ctx, f.endpoint(FeaturesPath), query, etag)
}

// FetchDeltas performs a conditional GET of the incremental delta stream.
// The returned payload is an ordered event list; callers apply it verbatim.
func (f *Fetcher) FetchDeltas(ctx context.Context, etag string) (*Result, error) {
	return f.fetch(ctx, f.endpoint(DeltaPath), nil, etag)
}

func (f *Fetcher) endpoint(path string) string {
	return f.base.String() + path
}

// fetch issues a conditional GET with bounded retry on transient failures.
// Network-level errors follow the same retry policy as transient statuses;
// any other non-200/304 status fails the cycle immediately.
func (f *Fetcher) fetch(ctx context.Context, target string, query url.Values, etag string) (*Result, error) {
	var lastErr error
	for attempt := 0; attempt <= f.cfg.Retries; attempt++ {
		if attempt > 0 {
			delay := f.backoff.NextInterval(attempt)
			f.logger.DebugContext(ctx, "retrying fetch",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, retryable, err := f.attempt(ctx, target, query, etag)
		if err == nil {
			return result, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, f.cfg.Retries+1, lastErr)
}

// attempt performs one conditional GET. The second result reports whether
// the failure is transient and worth retrying.
func (f *Fetcher) attempt(ctx context.Context, target string, query url.Values, etag string) (*Result, bool, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if len(query) > 0 {
		req.URL.RawQuery = query.Encode()
	}
	f.setCommonHeaders(req)
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		newTag := resp.Header.Get("ETag")
		if newTag == "" {
			newTag = etag
		}
		return &Result{ETag: newTag, Modified: false}, false, nil

	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, true, fmt.Errorf("reading response body: %w", err)
		}
		return &Result{State: body, ETag: resp.Header.Get("ETag"), Modified: true}, false, nil

	default:
		_, transient := transientStatuses[resp.StatusCode]
		err := fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
		return nil, transient, err
	}
}

func (f *Fetcher) setCommonHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderAppName, f.cfg.AppName)
	req.Header.Set(HeaderInstanceID, f.cfg.InstanceID)
	for k, vs := range f.cfg.Headers {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}
}

// post delivers a JSON body and accepts 200/202 as success.
func (f *Fetcher) post(ctx context.Context, target string, body any, failure error) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Join(failure, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, target, strings.NewReader(string(payload)))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	req.Header.Set("Content-Type", "application/json")
	f.setCommonHeaders(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return errors.Join(failure, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("%w: %w: %d", failure, ErrUnexpectedStatus, resp.StatusCode)
	}
	return nil
}
