// Package services defines shared utilities consumed by the stage workers and
// the scheduler.
//
// Key responsibilities:
//   - Context helpers that stamp run identifiers, pipeline names, and stage
//     names for logging.
//   - Structured error markers plus the Wrap and Details helpers that keep the
//     failure taxonomy (invalid input, processing, persistence) uniform.
//
// Use these helpers when wiring new stage logic so failures read the same way
// in logs, the run store, and the presenter.
package services
