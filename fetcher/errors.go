package fetcher

import "errors"

// Error classification follows the synchronization core's failure taxonomy:
//   - Configuration errors (ErrInvalidURL) are fatal, surfaced to the caller
//     of client initialization, never retried.
//   - Transient failures (network errors, 500/502/504) are retried with
//     backoff; exhaustion yields ErrRetriesExhausted and the cycle is treated
//     as "no update".
//   - Any other non-2xx/304 status is ErrUnexpectedStatus: logged, not
//     retried within the cycle.
var (
	ErrInvalidURL        = errors.New("invalid fetch URL")
	ErrRetriesExhausted  = errors.New("fetch retries exhausted")
	ErrUnexpectedStatus  = errors.New("unexpected response status")
	ErrRegistration      = errors.New("client registration failed")
	ErrMetricsSubmission = errors.New("metrics submission failed")
)
