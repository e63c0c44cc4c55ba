package flagsync

import "errors"

var (
	// ErrInvalidConfig indicates a fatal configuration problem: missing
	// engine, unknown synchronization mode, or a malformed custom header.
	ErrInvalidConfig = errors.New("invalid client configuration")

	// ErrDuplicateInstance is returned in strict instance-check mode when a
	// second client is constructed for the same server identity.
	ErrDuplicateInstance = errors.New("duplicate client instance for the same identity")

	// ErrParsingConfig is returned when environment variables cannot be
	// parsed into the Config struct.
	ErrParsingConfig = errors.New("failed to parse environment variables into config")
)
