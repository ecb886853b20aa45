package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"blurchain/internal/config"
	"blurchain/internal/constraint"
	"blurchain/internal/controller"
	"blurchain/internal/logging"
	"blurchain/internal/notifications"
	"blurchain/internal/statehub"
	"blurchain/internal/store"
	"blurchain/internal/workers"
	"blurchain/internal/workflow"
)

// app wires the scheduler, its workers, and the run store for one process.
type app struct {
	store      *store.Store
	scheduler  *workflow.Scheduler
	controller *controller.Controller
	notifier   notifications.Service
}

func newApp(ctx context.Context, cfg *config.Config, checker constraint.Checker, logger *slog.Logger) (*app, error) {
	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}
	if n, err := st.CancelInterrupted(ctx); err != nil {
		logging.WarnWithContext(logger, "failed to close interrupted runs", "store_recovery_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "inspect "+st.Path()),
			logging.String(logging.FieldImpact, "history may list stale runs"),
		)
	} else if n > 0 {
		logger.Info("marked interrupted runs cancelled",
			logging.String(logging.FieldEventType, "store_recovery"),
			logging.Int64("count", n),
		)
	}

	if checker == nil {
		checker = constraint.NewBatteryChecker()
	}
	notifier := notifications.NewService(cfg)
	set := workers.New(cfg, notifier, logger)
	scheduler, err := workflow.NewScheduler(workflow.Options{
		Handlers:     set.Handlers(),
		Store:        st,
		Hub:          statehub.New[workflow.StateEvent](64),
		Checker:      checker,
		Notifier:     notifier,
		Logger:       logger,
		PollInterval: time.Duration(cfg.Workflow.ConstraintPollInterval) * time.Second,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return &app{
		store:      st,
		scheduler:  scheduler,
		controller: controller.New(scheduler, logger),
		notifier:   notifier,
	}, nil
}

// Close stops every live run and closes the store.
func (a *app) Close() error {
	a.scheduler.Close()
	return a.store.Close()
}
