// Package analysis holds the in-memory strike-detection core: per-person
// tracking, the bounded pose window and state-machine classifier, the
// reorder buffer that restores frame order after parallel inference, and the
// report aggregator.
//
// The package is pure computation. It performs no I/O and holds no state
// beyond what a single video's pipeline feeds it, so two videos never share
// mutable state.
package analysis
