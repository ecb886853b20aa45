// Package controller is the narrow surface the presenter and CLI use to start,
// cancel, and observe named pipeline runs.
package controller

import (
	"context"
	"fmt"
	"log/slog"

	"blurchain/internal/logging"
	"blurchain/internal/pipeline"
	"blurchain/internal/stage"
	"blurchain/internal/statehub"
	"blurchain/internal/workflow"
)

// Controller fronts a workflow.Scheduler.
type Controller struct {
	scheduler *workflow.Scheduler
	logger    *slog.Logger
}

// New wraps scheduler.
func New(scheduler *workflow.Scheduler, logger *slog.Logger) *Controller {
	return &Controller{
		scheduler: scheduler,
		logger:    logging.NewComponentLogger(logger, "controller"),
	}
}

// Start enqueues def under name. A live run with the same name is cancelled
// and superseded. Start returns as soon as the run is registered.
func (c *Controller) Start(ctx context.Context, name string, def pipeline.Definition) (workflow.RunRef, error) {
	if c == nil || c.scheduler == nil {
		return workflow.RunRef{}, fmt.Errorf("controller unavailable")
	}
	ref, err := c.scheduler.Enqueue(ctx, name, def)
	if err != nil {
		return workflow.RunRef{}, fmt.Errorf("start %s: %w", name, err)
	}
	c.logger.Debug("pipeline started",
		logging.String(logging.FieldPipeline, name),
		logging.Uint64(logging.FieldRunID, ref.ID),
	)
	return ref, nil
}

// Cancel requests cancellation of every stage of the live run under name.
func (c *Controller) Cancel(name string) bool {
	if c == nil || c.scheduler == nil {
		return false
	}
	return c.scheduler.Cancel(name)
}

// Observe subscribes to events published under tag. The latest event, if
// any, is delivered first. Callers must Unsubscribe.
func (c *Controller) Observe(tag string) *statehub.Subscription[workflow.StateEvent] {
	return c.scheduler.Subscribe(tag)
}

// Latest returns the most recent event for tag without subscribing.
func (c *Controller) Latest(tag string) (workflow.StateEvent, bool) {
	return c.scheduler.Latest(tag)
}

// HealthCheck reports the readiness of every stage worker.
func (c *Controller) HealthCheck(ctx context.Context) []stage.Health {
	return c.scheduler.HealthCheck(ctx)
}
