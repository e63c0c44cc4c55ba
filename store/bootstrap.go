package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// BootstrapFromMap pre-seeds the store with feature state built from a Go
// value (typically a map matching the server's feature-state document) and
// marks the store bootstrapped. The client fires its ready callback before
// any network activity when it starts with a bootstrapped store.
func BootstrapFromMap(ctx context.Context, s Store, initial any) error {
	raw, err := json.Marshal(initial)
	if err != nil {
		return errors.Join(ErrInvalidBootstrap, err)
	}
	if err := s.Set(ctx, KeyFeatureState, string(raw)); err != nil {
		return err
	}
	s.MarkBootstrapped()
	return nil
}

// BootstrapFromFile pre-seeds the store from a JSON or YAML document on
// disk. The format is chosen by file extension: .yaml/.yml documents are
// converted to JSON before storing, anything else is validated as JSON and
// stored verbatim.
func BootstrapFromFile(ctx context.Context, s Store, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Join(ErrInvalidBootstrap, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return errors.Join(ErrInvalidBootstrap, err)
		}
		return BootstrapFromMap(ctx, s, doc)
	default:
		if !json.Valid(data) {
			return fmt.Errorf("%w: %s is not valid JSON", ErrInvalidBootstrap, path)
		}
		if err := s.Set(ctx, KeyFeatureState, string(data)); err != nil {
			return err
		}
		s.MarkBootstrapped()
		return nil
	}
}

// BootstrapURLOption customizes BootstrapFromURL requests.
type BootstrapURLOption func(*bootstrapURLOptions)

type bootstrapURLOptions struct {
	headers http.Header
	timeout time.Duration
	client  *http.Client
}

// WithBootstrapHeader adds a request header to the bootstrap fetch.
func WithBootstrapHeader(key, value string) BootstrapURLOption {
	return func(o *bootstrapURLOptions) {
		o.headers.Set(key, value)
	}
}

// WithBootstrapTimeout overrides the default 30s request timeout.
func WithBootstrapTimeout(d time.Duration) BootstrapURLOption {
	return func(o *bootstrapURLOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithBootstrapHTTPClient overrides the HTTP client used for the fetch.
func WithBootstrapHTTPClient(c *http.Client) BootstrapURLOption {
	return func(o *bootstrapURLOptions) {
		if c != nil {
			o.client = c
		}
	}
}

// BootstrapFromURL pre-seeds the store from a URL returning the server's
// feature-state JSON document.
func BootstrapFromURL(ctx context.Context, s Store, rawURL string, opts ...BootstrapURLOption) error {
	options := &bootstrapURLOptions{
		headers: make(http.Header),
		timeout: 30 * time.Second,
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(options)
	}

	reqCtx, cancel := context.WithTimeout(ctx, options.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return errors.Join(ErrBootstrapFetchFailed, err)
	}
	for k, vs := range options.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := options.client.Do(req)
	if err != nil {
		return errors.Join(ErrBootstrapFetchFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: unexpected status %d", ErrBootstrapFetchFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Join(ErrBootstrapFetchFailed, err)
	}
	if !json.Valid(body) {
		return fmt.Errorf("%w: response is not valid JSON", ErrInvalidBootstrap)
	}

	if err := s.Set(ctx, KeyFeatureState, string(body)); err != nil {
		return err
	}
	s.MarkBootstrapped()
	return nil
}
