package workers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"blurchain/internal/fileutil"
	"blurchain/internal/logging"
	"blurchain/internal/notifications"
	"blurchain/internal/payload"
	"blurchain/internal/services"
	"blurchain/internal/stage"
)

// BlurOptions configures a Blur worker.
type BlurOptions struct {
	StagingDir string
	Sigma      float64
	// Delay is an artificial pause before the blur pass so progress is visible.
	Delay    time.Duration
	Notifier notifications.Service
	Logger   *slog.Logger
}

// Blur applies one Gaussian blur pass to the input image.
type Blur struct {
	stagingDir string
	sigma      float64
	delay      time.Duration
	notifier   notifications.Service
	logger     *slog.Logger
}

// NewBlur returns a blur worker.
func NewBlur(opts BlurOptions) *Blur {
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewNoop()
	}
	sigma := opts.Sigma
	if sigma <= 0 {
		sigma = 10
	}
	return &Blur{
		stagingDir: strings.TrimSpace(opts.StagingDir),
		sigma:      sigma,
		delay:      opts.Delay,
		notifier:   notifier,
		logger:     componentLogger(opts.Logger, stage.KindBlur),
	}
}

// Execute blurs the image at KEY_IMAGE_URI into a new staging artifact and
// returns its locator. The input file is never modified.
func (b *Blur) Execute(ctx context.Context, in payload.Payload) (payload.Payload, error) {
	logger := logging.WithContext(ctx, b.logger)
	kind := string(stage.KindBlur)

	locator, ok := in.ImageURI()
	if !ok {
		logger.Error("blur input missing",
			logging.String(logging.FieldEventType, "blur_invalid_input"),
			logging.String(logging.FieldErrorHint, "pass --image or set blur.default_image"),
		)
		return payload.Empty(), services.Wrap(services.ErrInvalidInput, kind, "read input", "image locator missing", nil)
	}

	if err := b.notifier.Publish(ctx, notifications.EventBlurStatus, notifications.Payload{
		"image": filepath.Base(locator),
	}); err != nil {
		logger.Debug("blur status notification failed", logging.Error(err))
	}

	if err := sleepCtx(ctx, b.delay); err != nil {
		return payload.Empty(), services.Wrap(services.ErrCancelled, kind, "delay", "stage cancelled", err)
	}
	if err := cancelled(ctx, stage.KindBlur, "delay"); err != nil {
		return payload.Empty(), err
	}

	src, err := fileutil.PathFromLocator(locator)
	if err != nil {
		return payload.Empty(), services.Wrap(services.ErrInvalidInput, kind, "resolve input", "image locator unusable", err)
	}

	img, err := imaging.Open(src)
	if err != nil {
		return payload.Empty(), services.Wrap(services.ErrProcessing, kind, "decode image", filepath.Base(src), err)
	}
	blurred := imaging.Blur(img, b.sigma)

	if err := cancelled(ctx, stage.KindBlur, "blur"); err != nil {
		return payload.Empty(), err
	}

	if err := os.MkdirAll(b.stagingDir, 0o755); err != nil {
		return payload.Empty(), services.Wrap(services.ErrProcessing, kind, "prepare staging", b.stagingDir, err)
	}
	dst := filepath.Join(b.stagingDir, fmt.Sprintf("%s%s.png", ArtifactPrefix, uuid.NewString()))
	if err := imaging.Save(blurred, dst); err != nil {
		_ = os.Remove(dst)
		return payload.Empty(), services.Wrap(services.ErrProcessing, kind, "write image", filepath.Base(dst), err)
	}

	bounds := blurred.Bounds()
	logger.Info("blur pass complete",
		logging.String(logging.FieldEventType, "blur_complete"),
		logging.String("source", src),
		logging.String("artifact", dst),
		logging.Float64("sigma", b.sigma),
		logging.Int("width", bounds.Dx()),
		logging.Int("height", bounds.Dy()),
	)
	return payload.Of(payload.KeyImageURI, fileutil.Locator(dst)), nil
}

// HealthCheck reports whether artifacts can be written to staging.
func (b *Blur) HealthCheck(context.Context) stage.Health {
	name := stage.KindBlur.Label()
	if b.sigma <= 0 {
		return stage.Unhealthy(name, "blur sigma must be positive")
	}
	if err := fileutil.EnsureWritableDir(b.stagingDir); err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	return stage.Healthy(name)
}
