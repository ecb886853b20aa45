// Package workflow runs pipeline definitions stage by stage.
//
// The Scheduler owns one goroutine per run. Runs are registered under a unique
// name; enqueueing under a name that already has a live run cancels that run,
// publishes its remaining stages as cancelled, and holds the new run until the
// old goroutine has exited. Each stage's output payload becomes the next
// stage's input unless the stage definition supplies its own. Stages with a
// constraint stay enqueued until the constraint checker reports it satisfied.
//
// Every state change is published on a statehub.Hub under each of the stage's
// tags and under the pipeline topic, and mirrored into the run store when one
// is configured. The store is history only; nothing is resumed after a
// restart.
package workflow
