// Package main hosts the blurchain CLI entrypoint and command graph.
//
// The Cobra command tree resolves configuration, builds the scheduler and
// its workers, and drives the presenter for interactive blur runs. History,
// cleanup, configuration scaffolding, and notification checks are exposed as
// separate commands.
package main
