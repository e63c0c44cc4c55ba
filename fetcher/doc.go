// Package fetcher implements the network retrieval side of flagsync:
// conditional GETs of full flag sets and incremental deltas, the one-shot
// client registration, and periodic metrics submission.
//
// Every retrieval is conditional: the last-known token travels in an
// If-None-Match header and a 304 answer means "unchanged, refresh the token
// only". Transient failures (connection errors, 500/502/504) are retried
// with capped exponential backoff; any other unexpected status fails the
// cycle immediately so the previous cached state stays authoritative.
//
// Malformed base URLs are rejected at construction with ErrInvalidURL. This
// is the one error class connectors must never retry or swallow: it signals
// a configuration mistake, not server unavailability.
package fetcher
