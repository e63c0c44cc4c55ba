// Package engine defines the contract between the flagsync synchronization
// core and the feature evaluation engine.
//
// The engine itself is an external collaborator: it decides, given a flag
// name and a context, whether a flag is enabled and which variant applies.
// flagsync never implements those semantics. Connectors push state into the
// engine through TakeState, and the client reads evaluation results back out
// through IsEnabled and GetVariant.
//
// Implementations must tolerate repeated TakeState calls with the same
// payload (the polling connector re-applies state whenever the server
// reports a change) and must allow evaluation queries concurrently with
// state ingestion.
package engine
