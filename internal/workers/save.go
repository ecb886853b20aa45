package workers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"blurchain/internal/fileutil"
	"blurchain/internal/logging"
	"blurchain/internal/notifications"
	"blurchain/internal/payload"
	"blurchain/internal/services"
	"blurchain/internal/stage"
)

// OutputTitleLayout formats saved image names, e.g.
// "Blurred Image 2024.05.01 at 14.03.22 UTC".
const OutputTitleLayout = "Blurred Image 2006.01.02 at 15.04.05 MST"

// Save copies the final artifact into the output directory.
type Save struct {
	outputDir string
	notifier  notifications.Service
	logger    *slog.Logger
	now       func() time.Time
}

// NewSave returns a save worker writing into outputDir.
func NewSave(outputDir string, notifier notifications.Service, logger *slog.Logger) *Save {
	if notifier == nil {
		notifier = notifications.NewNoop()
	}
	return &Save{
		outputDir: strings.TrimSpace(outputDir),
		notifier:  notifier,
		logger:    componentLogger(logger, stage.KindSave),
		now:       time.Now,
	}
}

// Execute copies the artifact at KEY_IMAGE_URI into the output directory and
// returns the durable locator.
func (s *Save) Execute(ctx context.Context, in payload.Payload) (payload.Payload, error) {
	logger := logging.WithContext(ctx, s.logger)
	kind := string(stage.KindSave)

	locator, ok := in.ImageURI()
	if !ok {
		return payload.Empty(), services.Wrap(services.ErrInvalidInput, kind, "read input", "image locator missing", nil)
	}
	src, err := fileutil.PathFromLocator(locator)
	if err != nil {
		return payload.Empty(), services.Wrap(services.ErrInvalidInput, kind, "resolve input", "image locator unusable", err)
	}
	if err := cancelled(ctx, stage.KindSave, "copy"); err != nil {
		return payload.Empty(), err
	}

	if err := fileutil.EnsureWritableDir(s.outputDir); err != nil {
		return payload.Empty(), services.Wrap(services.ErrPersistence, kind, "prepare output", "output directory unavailable", err)
	}
	dst := s.destination()
	if err := fileutil.CopyFileVerified(src, dst); err != nil {
		return payload.Empty(), services.Wrap(services.ErrPersistence, kind, "copy image", filepath.Base(dst), err)
	}

	logger.Info("blurred image saved",
		logging.String(logging.FieldEventType, "save_complete"),
		logging.String("source", src),
		logging.String("output", dst),
	)
	if err := s.notifier.Publish(ctx, notifications.EventPipelineCompleted, notifications.Payload{
		"output": dst,
	}); err != nil {
		logger.Debug("completion notification failed", logging.Error(err))
	}
	return payload.Of(payload.KeyImageURI, fileutil.Locator(dst)), nil
}

// destination picks a timestamped file name that does not exist yet.
func (s *Save) destination() string {
	title := s.now().Format(OutputTitleLayout)
	dst := filepath.Join(s.outputDir, title+".png")
	for i := 2; ; i++ {
		if _, err := os.Stat(dst); err != nil {
			return dst
		}
		dst = filepath.Join(s.outputDir, fmt.Sprintf("%s (%d).png", title, i))
	}
}

// HealthCheck reports whether the output directory is writable.
func (s *Save) HealthCheck(context.Context) stage.Health {
	name := stage.KindSave.Label()
	if err := fileutil.EnsureWritableDir(s.outputDir); err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	return stage.Healthy(name)
}
