// Package connector implements the pluggable delivery strategies that keep
// the evaluation engine's flag snapshot consistent with the remote server.
//
// Four variants implement the Connector interface:
//
//   - PollingConnector: Fetch -> Apply -> Sleep cycles against the features
//     endpoint, or the incremental delta endpoint in delta mode.
//   - StreamingConnector: a long-lived server-sent-events channel; event
//     semantics live in EventProcessor, reconnect concerns in the connector.
//   - BootstrapConnector: a single hydration pass from the store.
//   - OfflineConnector: scheduled hydration passes from the store, for
//     setups that refresh the cache out-of-band.
//
// Exactly one connector is active per client. All variants serialize engine
// state application behind a per-connector lock, so foreground evaluation
// may observe a slightly stale snapshot but never a torn one. Stop uses
// cooperative cancellation: loops observe the stop signal at every sleep
// and suspension point, and in-flight network calls are bounded by their
// own timeouts.
package connector
