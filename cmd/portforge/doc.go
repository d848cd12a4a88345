// Package main hosts the portforge CLI entrypoint and command graph.
//
// The Cobra-based command tree resolves configuration, materializes the
// symbol graph from the facts file, and drives the porting orchestrator.
// Supporting commands inspect checkpoint progress, print the dependency
// order, reset checkpoints, and scaffold configuration.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
