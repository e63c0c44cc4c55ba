// Package store provides the durable key/value cache shared by flagsync
// connectors and the client.
//
// The store holds three well-known keys: the last serialized feature state,
// the conditional-fetch token (ETag) from the last server response, and the
// timestamp of the last metrics submission. Connectors read the store at
// hydration time and write it on every applied fetch; the format survives
// process restart so a client can serve the last-known flags before its
// first network round trip.
//
// # Backends
//
// Three backends implement the Store interface:
//
//   - FileStore: a single JSON file with atomic rename-based writes. This is
//     the default used by the client.
//   - MemoryStore: process-local, for tests and throwaway setups.
//   - RedisStore: a Redis hash, for fleets that share a cache out-of-band.
//
// # Bootstrapping
//
// A store can be pre-seeded before the client starts so evaluations work
// without any network access:
//
//	st, err := store.NewFileStore("my-app", "")
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := store.BootstrapFromFile(ctx, st, "flags.json"); err != nil {
//		log.Fatal(err)
//	}
//
// Bootstrapping sets the store's bootstrapped flag, which the client reads
// once at initialization to fire its ready callback before any fetch.
package store
