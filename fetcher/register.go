package fetcher

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Registration is the one-shot startup announcement sent to the server.
type Registration struct {
	AppName      string    `json:"appName"`
	InstanceID   string    `json:"instanceId"`
	ConnectionID string    `json:"connectionId"`
	SDKVersion   string    `json:"sdkVersion"`
	SpecVersion  string    `json:"specVersion"`
	Strategies   []string  `json:"strategies"`
	Started      time.Time `json:"started"`
	// Interval is the metrics reporting interval in milliseconds.
	Interval int64 `json:"interval"`
}

// Register announces this client instance to the server. Failures are
// returned for the caller to log; only a fatal configuration error
// (ErrInvalidURL) should abort client initialization.
func (f *Fetcher) Register(ctx context.Context, reg Registration) error {
	f.logger.InfoContext(ctx, "registering client instance",
		slog.String("app_name", reg.AppName),
		slog.String("instance_id", reg.InstanceID))
	return f.post(ctx, f.endpoint(RegisterPath), reg, ErrRegistration)
}

// MetricsPayload is the periodic metrics submission body. Bucket is the
// engine's aggregated counters, passed through opaquely.
type MetricsPayload struct {
	AppName         string          `json:"appName"`
	InstanceID      string          `json:"instanceId"`
	ConnectionID    string          `json:"connectionId"`
	Bucket          json.RawMessage `json:"bucket"`
	PlatformName    string          `json:"platformName"`
	PlatformVersion string          `json:"platformVersion"`
	SpecVersion     string          `json:"specVersion"`
}

// SendMetrics posts an aggregated metrics bucket. Callers skip the call
// entirely when the bucket is empty.
func (f *Fetcher) SendMetrics(ctx context.Context, payload MetricsPayload) error {
	return f.post(ctx, f.endpoint(MetricsPath), payload, ErrMetricsSubmission)
}
