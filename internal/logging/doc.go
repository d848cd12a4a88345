// Package logging builds the slog loggers used across portforge.
//
// It provides a console handler for interactive runs, a JSON handler for
// machine-readable logs, typed attribute helpers, and well-known field name
// constants so run, unit, phase, and correlation identifiers appear uniformly
// in every record. WithContext derives those fields from a context annotated
// by the services package.
//
// Construct loggers through New or NewFromConfig so output paths and levels
// follow configuration; use NewNop in tests that do not assert on output.
package logging
