// Package flagsync is the client-side synchronization core of a
// feature-flag delivery SDK. It keeps a local, in-memory flag snapshot
// consistent with a remote server under pluggable delivery strategies
// (periodic polling, incremental delta polling, server-sent-event
// streaming, static bootstrap, offline-only) while a separate evaluation
// engine answers the actual flag queries.
//
// # Architecture
//
// A Client owns one store (the persisted cache), one engine handle, and
// exactly one active connector selected from configuration. Connectors
// apply fetched or streamed state into the engine and the store; the
// client's evaluation calls read only from the engine and never touch the
// network path.
//
//	cfg, err := flagsync.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	client, err := flagsync.New(cfg, eng,
//		flagsync.WithEventCallback(func(ev flagsync.Event) {
//			if ev.Type() == flagsync.EventReady {
//				log.Println("flags loaded")
//			}
//		}),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := client.Initialize(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer client.Destroy()
//
//	if client.IsEnabled("new-checkout", flagsync.Context{UserID: "42"}) {
//		// serve the new flow
//	}
//
// # Failure behavior
//
// Evaluation calls never fail: unknown flags resolve through a fallback
// and callback errors are logged, not propagated. Initialize returns an
// error only for fatal configuration problems; transient server trouble is
// retried with capped exponential backoff and the last-known state stays
// authoritative. Destroy never fails.
//
// # Readiness
//
// The ready event fires exactly once per client lifetime: either at
// initialization when the store was pre-seeded (see the store package's
// bootstrap helpers), or when the active connector first loads usable
// state into the engine.
package flagsync
