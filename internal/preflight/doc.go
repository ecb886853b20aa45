// Package preflight provides readiness checks for the filesystem paths,
// run store, power source, notification endpoint, and desktop opener that
// blurchain depends on.
//
// The CLI "blurchain status" command runs RunAll and renders each Result.
// Checks for optional features are skipped when the feature is disabled.
package preflight
