// Package orchestrator schedules porting tasks across the symbol graph.
// It dispatches units whose dependencies are verified, bounded by the
// configured concurrency, records progress through the checkpoint store,
// and blocks the transitive dependents of any unit that fails terminally.
package orchestrator
