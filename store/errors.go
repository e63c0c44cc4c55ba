package store

import "errors"

var (
	// ErrStoreUnavailable indicates the backing storage could not be reached
	// or written.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInvalidBootstrap indicates a bootstrap source could not be parsed
	// into feature state.
	ErrInvalidBootstrap = errors.New("invalid bootstrap configuration")

	// ErrBootstrapFetchFailed indicates a bootstrap URL could not be fetched.
	ErrBootstrapFetchFailed = errors.New("bootstrap fetch failed")
)
