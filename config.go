package flagsync

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// SyncMode selects the delivery strategy. The mode is fixed at client
// construction; there is no dynamic re-selection at runtime.
type SyncMode string

const (
	// ModePolling fetches the full flag set on an interval.
	ModePolling SyncMode = "polling"
	// ModeDeltas polls the incremental delta endpoint instead of full
	// snapshots.
	ModeDeltas SyncMode = "deltas"
	// ModeStreaming keeps a server-sent-events channel open.
	ModeStreaming SyncMode = "streaming"
	// ModeOffline never touches the network; the store is refreshed
	// out-of-band and re-read on an interval.
	ModeOffline SyncMode = "offline"
	// ModeBootstrap hydrates once from the store and does nothing else.
	ModeBootstrap SyncMode = "bootstrap"
)

// networked reports whether the mode talks to the server.
func (m SyncMode) networked() bool {
	switch m {
	case ModeOffline, ModeBootstrap:
		return false
	default:
		return true
	}
}

// Config holds the client's immutable configuration. Zero values fall back
// to the documented defaults inside New.
type Config struct {
	// URL is the server base URL. Required for networked modes.
	URL string `env:"FLAGSYNC_URL"`
	// APIToken is sent as the Authorization header when set.
	APIToken string `env:"FLAGSYNC_API_TOKEN"`
	// AppName identifies the application to the server and in contexts.
	AppName string `env:"FLAGSYNC_APP_NAME" envDefault:"default"`
	// InstanceID identifies this process. Defaults to a random ID.
	InstanceID string `env:"FLAGSYNC_INSTANCE_ID"`
	// Environment is stamped into evaluation contexts lacking one.
	Environment string `env:"FLAGSYNC_ENVIRONMENT" envDefault:"default"`
	// Project optionally filters the fetched flag set.
	Project string `env:"FLAGSYNC_PROJECT"`

	// Mode selects the delivery strategy. Defaults to polling.
	Mode SyncMode `env:"FLAGSYNC_MODE" envDefault:"polling"`

	RefreshInterval time.Duration `env:"FLAGSYNC_REFRESH_INTERVAL" envDefault:"15s"`
	RefreshJitter   time.Duration `env:"FLAGSYNC_REFRESH_JITTER"`
	MetricsInterval time.Duration `env:"FLAGSYNC_METRICS_INTERVAL" envDefault:"60s"`
	MetricsJitter   time.Duration `env:"FLAGSYNC_METRICS_JITTER"`
	RequestTimeout  time.Duration `env:"FLAGSYNC_REQUEST_TIMEOUT" envDefault:"30s"`
	// RequestRetries is the number of additional attempts after a transient
	// fetch failure.
	RequestRetries int `env:"FLAGSYNC_REQUEST_RETRIES" envDefault:"3"`
	// StreamingHeartbeat forces a stream reconnect when no event arrives
	// within the window.
	StreamingHeartbeat time.Duration `env:"FLAGSYNC_STREAMING_HEARTBEAT" envDefault:"60s"`

	DisableMetrics      bool `env:"FLAGSYNC_DISABLE_METRICS"`
	DisableRegistration bool `env:"FLAGSYNC_DISABLE_REGISTRATION"`
	// DisableFetch initializes the client without starting any background
	// synchronization; evaluations serve whatever the store held.
	DisableFetch bool `env:"FLAGSYNC_DISABLE_FETCH"`

	// StrictInstanceCheck turns the duplicate-instance warning into a
	// construction error.
	StrictInstanceCheck bool `env:"FLAGSYNC_STRICT_INSTANCE_CHECK"`

	// CacheDirectory overrides the location of the default file store.
	CacheDirectory string `env:"FLAGSYNC_CACHE_DIR"`

	// CustomHeaders are merged into every server request.
	CustomHeaders map[string]string `env:"FLAGSYNC_CUSTOM_HEADERS"`
}

var defaultEnvLoaded sync.Once

// LoadConfig reads a Config from environment variables, loading a .env file
// first if one exists.
func LoadConfig() (Config, error) {
	defaultEnvLoaded.Do(func() {
		// The .env file might not exist and that's ok.
		_ = godotenv.Load()
	})

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	return cfg, nil
}

// validate checks the parts of Config that would otherwise fail deep inside
// a background task. URL validation happens in the fetcher.
func (c Config) validate() error {
	switch c.Mode {
	case ModePolling, ModeDeltas, ModeStreaming, ModeOffline, ModeBootstrap:
	default:
		return fmt.Errorf("%w: unknown sync mode %q", ErrInvalidConfig, c.Mode)
	}
	for name := range c.CustomHeaders {
		if !validHeaderName(name) {
			return fmt.Errorf("%w: invalid header name %q", ErrInvalidConfig, name)
		}
	}
	return nil
}

// validHeaderName rejects names an HTTP request would silently mangle.
func validHeaderName(name string) bool {
	if name == "" {
		return false
	}
	return !strings.ContainsAny(name, " \t\r\n:")
}
