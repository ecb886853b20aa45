package workers

import (
	"context"
	"log/slog"
	"time"

	"blurchain/internal/config"
	"blurchain/internal/logging"
	"blurchain/internal/notifications"
	"blurchain/internal/services"
	"blurchain/internal/stage"
)

// ArtifactPrefix names every intermediate file written by the blur worker.
const ArtifactPrefix = "blur-filter-output-"

// Set bundles one instance of each worker.
type Set struct {
	Cleanup *Cleanup
	Blur    *Blur
	Save    *Save
}

// New builds the workers from cfg.
func New(cfg *config.Config, notifier notifications.Service, logger *slog.Logger) Set {
	if notifier == nil {
		notifier = notifications.NewNoop()
	}
	return Set{
		Cleanup: NewCleanup(cfg.Paths.StagingDir, logger),
		Blur: NewBlur(BlurOptions{
			StagingDir: cfg.Paths.StagingDir,
			Sigma:      cfg.Blur.Sigma,
			Delay:      time.Duration(cfg.Blur.DelaySeconds) * time.Second,
			Notifier:   notifier,
			Logger:     logger,
		}),
		Save: NewSave(cfg.Paths.OutputDir, notifier, logger),
	}
}

// Handlers maps each stage kind to its worker.
func (s Set) Handlers() map[stage.Kind]stage.Handler {
	return map[stage.Kind]stage.Handler{
		stage.KindCleanup: s.Cleanup,
		stage.KindBlur:    s.Blur,
		stage.KindSave:    s.Save,
	}
}

// cancelled converts a context error into the cancellation marker.
func cancelled(ctx context.Context, kind stage.Kind, operation string) error {
	if err := ctx.Err(); err != nil {
		return services.Wrap(services.ErrCancelled, string(kind), operation, "stage cancelled", err)
	}
	return nil
}

// sleepCtx waits for d or until ctx ends.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func componentLogger(logger *slog.Logger, kind stage.Kind) *slog.Logger {
	return logging.NewComponentLogger(logger, "worker").With(logging.String("worker", string(kind)))
}
