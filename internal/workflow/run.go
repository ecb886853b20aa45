package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"blurchain/internal/logging"
	"blurchain/internal/notifications"
	"blurchain/internal/payload"
	"blurchain/internal/pipeline"
	"blurchain/internal/services"
	"blurchain/internal/stage"
)

type run struct {
	id     uint64
	uuid   string
	name   string
	def    pipeline.Definition
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	states   []State
	finished bool
}

func newRun(parent context.Context, id uint64, runUUID, name string, def pipeline.Definition) *run {
	ctx := services.WithRunID(parent, id)
	ctx = services.WithPipeline(ctx, name)
	ctx = services.WithRequestID(ctx, runUUID)
	ctx, cancel := context.WithCancel(ctx)

	states := make([]State, def.Len())
	for i := range states {
		states[i] = StateEnqueued
	}
	return &run{
		id:     id,
		uuid:   runUUID,
		name:   name,
		def:    def,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		states: states,
	}
}

func (r *run) isFinished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished
}

// execute drives r through its stages. It runs on its own goroutine.
func (s *Scheduler) execute(r *run, prev *run) {
	defer s.wg.Done()
	defer close(r.done)
	defer s.release(r)
	defer r.cancel()

	logger := logging.WithContext(r.ctx, s.logger)

	if prev != nil {
		select {
		case <-prev.done:
		case <-r.ctx.Done():
			s.cancelRemaining(r, "cancelled before start")
			return
		}
	}

	if s.store != nil {
		if err := s.store.SetRunState(r.ctx, int64(r.id), string(StateRunning)); err != nil {
			logger.Warn("failed to record run start", logging.Error(err),
				logging.String(logging.FieldEventType, "store_write_failed"),
				logging.String(logging.FieldErrorHint, "check run database access"),
				logging.String(logging.FieldImpact, "history may be incomplete"),
			)
		}
	}

	runStart := time.Now()
	var carry payload.Payload
	for i, spec := range r.def.Stages {
		if r.ctx.Err() != nil {
			s.cancelRemaining(r, "cancelled")
			return
		}

		input := payload.NewBuilder().Merge(carry).Merge(spec.Input).Build()

		if !spec.Constraint.IsZero() {
			if err := s.awaitConstraint(r, i, spec, logger); err != nil {
				s.cancelRemaining(r, "cancelled while waiting for "+spec.Constraint.String())
				return
			}
		}

		out, err := s.runStage(r, i, spec, input)
		switch {
		case err == nil:
			s.transition(r, i, StateSucceeded, out, nil, "")
			carry = out
		case r.ctx.Err() != nil || errors.Is(err, services.ErrCancelled):
			s.cancelRemaining(r, "cancelled")
			return
		default:
			s.failRemaining(r, i, err)
			s.notifyFailure(r, spec.Kind, err)
			return
		}
	}

	if !s.complete(r, carry) {
		return
	}
	logger.Info("pipeline run succeeded",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.String("output", carry.String()),
		logging.Duration("run_duration", time.Since(runStart)),
	)
}

func (s *Scheduler) runStage(r *run, index int, spec pipeline.StageSpec, input payload.Payload) (payload.Payload, error) {
	stageCtx := services.WithStage(r.ctx, string(spec.Kind))
	stageLogger := logging.WithContext(stageCtx, s.logger).With(logging.Int(logging.FieldStageIndex, index))

	if !s.transition(r, index, StateRunning, payload.Payload{}, nil, "") {
		return payload.Payload{}, services.Wrap(services.ErrCancelled, string(spec.Kind), "start", "stage already finished", nil)
	}

	start := time.Now()
	stageLogger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("input", input.String()),
	)
	out, err := stage.Run(stageCtx, spec.Kind, s.handlers[spec.Kind], input)
	if err != nil {
		s.logStageError(stageLogger, spec.Kind, err, r.ctx.Err() != nil)
		return out, err
	}
	stageLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("output", out.String()),
		logging.Duration("stage_duration", time.Since(start)),
	)
	return out, nil
}

func (s *Scheduler) logStageError(logger *slog.Logger, kind stage.Kind, err error, runCancelled bool) {
	details := services.Details(err)
	if runCancelled || details.Kind == services.KindCancelled {
		logger.Info("stage cancelled",
			logging.String(logging.FieldEventType, "stage_cancelled"),
			logging.String("reason", err.Error()),
		)
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String(logging.FieldErrorKind, string(details.Kind)),
		logging.String("operation", details.Operation),
		logging.String(logging.FieldErrorHint, errorHint(kind, details.Kind)),
	}
	if details.Cause != nil {
		attrs = append(attrs, logging.Error(details.Cause))
	} else {
		attrs = append(attrs, logging.Error(err))
	}
	logger.Error("stage failed", logging.Args(attrs...)...)
}

func errorHint(kind stage.Kind, errKind services.Kind) string {
	switch errKind {
	case services.KindInvalidInput:
		return "check the --image argument or blur.default_image"
	case services.KindPersistence:
		return "check paths.output_dir exists and is writable"
	case services.KindProcessing:
		if kind == stage.KindBlur {
			return "verify the input is a readable image and paths.staging_dir is writable"
		}
	}
	return "check logs for details"
}

// awaitConstraint keeps stage index enqueued until its constraint holds.
func (s *Scheduler) awaitConstraint(r *run, index int, spec pipeline.StageSpec, logger *slog.Logger) error {
	lastReason := ""
	for {
		status, err := s.checker.Check(r.ctx, spec.Constraint)
		if r.ctx.Err() != nil {
			return r.ctx.Err()
		}
		if err == nil && status.Satisfied {
			if lastReason != "" {
				logger.Info("stage constraint satisfied",
					logging.String(logging.FieldEventType, "constraint_satisfied"),
					logging.String(logging.FieldStage, string(spec.Kind)),
				)
			}
			return nil
		}

		reason := status.Reason
		if err != nil {
			reason = err.Error()
		}
		if reason == "" {
			reason = "waiting"
		}
		if reason != lastReason {
			lastReason = reason
			logging.WarnWithContext(logger, "stage deferred until constraint is met", "constraint_wait",
				logging.String(logging.FieldStage, string(spec.Kind)),
				logging.String("constraint", spec.Constraint.String()),
				logging.String("reason", reason),
				logging.String(logging.FieldErrorHint, "connect the charger or pass --require-charging=false"),
				logging.String(logging.FieldImpact, "stage stays enqueued"),
			)
			s.transition(r, index, StateEnqueued, payload.Payload{}, nil, "waiting: "+reason)
		}

		timer := time.NewTimer(s.pollInterval)
		select {
		case <-r.ctx.Done():
			timer.Stop()
			return r.ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *Scheduler) notifyFailure(r *run, kind stage.Kind, stageErr error) {
	label := fmt.Sprintf("%s (run %d)", kind, r.id)
	if err := s.notifier.Publish(s.root, notifications.EventError, notifications.Payload{
		"error":   stageErr,
		"context": label,
	}); err != nil {
		logger := logging.WithContext(r.ctx, s.logger)
		if errors.Is(err, context.Canceled) {
			logger.Debug("scheduler shutting down, could not send error notification")
		} else {
			logger.Debug("stage error notification failed", logging.Error(err))
		}
	}
}
