package store

import "context"

// Well-known keys used by the synchronization core. Values under these keys
// are written only by connectors and the client bookkeeping path.
const (
	// KeyFeatureState holds the last-known serialized feature state.
	KeyFeatureState = "feature_state"
	// KeyETag holds the conditional-fetch token from the last server response.
	KeyETag = "etag"
	// KeyMetricsLastSent holds the RFC 3339 timestamp of the last metrics
	// submission.
	KeyMetricsLastSent = "metrics_last_sent"
)

// Store is a durable key/value store shared between the foreground
// evaluation path and a background connector.
//
// Implementations must make Set and MSet atomic with respect to concurrent
// readers, and must persist before returning so a crash after Set does not
// lose the write. Destroy removes all persisted state and never fails when
// nothing exists.
type Store interface {
	// Get returns the value for key. The second result reports whether the
	// key was present.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes a single key durably.
	Set(ctx context.Context, key, value string) error

	// MSet writes several keys as one atomic update.
	MSet(ctx context.Context, values map[string]string) error

	// Exists reports whether key holds a value.
	Exists(ctx context.Context, key string) (bool, error)

	// Destroy removes all persisted state.
	Destroy(ctx context.Context) error

	// Bootstrapped reports whether this store was pre-seeded with feature
	// state before the client started.
	Bootstrapped() bool

	// MarkBootstrapped flags the store as pre-seeded. Custom bootstrap
	// flows must call it after writing KeyFeatureState.
	MarkBootstrapped()
}
