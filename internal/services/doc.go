// Package services defines shared utilities consumed by the porting task
// state machine and the external collaborator integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, processing unit IDs, phase names,
//     and correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     into the retry taxonomy (defect vs infrastructure vs fatal).
//
// Use these helpers when wiring new phase logic so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
