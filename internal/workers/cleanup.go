package workers

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"blurchain/internal/fileutil"
	"blurchain/internal/logging"
	"blurchain/internal/payload"
	"blurchain/internal/stage"
)

// CleanupResult contains the outcome of a staging sweep.
type CleanupResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a path with its removal error.
type CleanupError struct {
	Path  string
	Error error
}

// Cleanup deletes intermediate blur artifacts from the staging directory.
type Cleanup struct {
	stagingDir string
	logger     *slog.Logger
}

// NewCleanup returns a cleanup worker for stagingDir.
func NewCleanup(stagingDir string, logger *slog.Logger) *Cleanup {
	return &Cleanup{stagingDir: strings.TrimSpace(stagingDir), logger: componentLogger(logger, stage.KindCleanup)}
}

// Execute sweeps staging. Removal failures are logged and never fail the stage.
func (c *Cleanup) Execute(ctx context.Context, _ payload.Payload) (payload.Payload, error) {
	c.Sweep(ctx)
	return payload.Empty(), nil
}

// Sweep removes every artifact it can and reports what happened.
func (c *Cleanup) Sweep(ctx context.Context) CleanupResult {
	logger := logging.WithContext(ctx, c.logger)
	result := CleanupResult{}
	if c.stagingDir == "" {
		return result
	}

	entries, err := os.ReadDir(c.stagingDir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: c.stagingDir, Error: err})
			logging.WarnWithContext(logger, "failed to list staging directory", "staging_cleanup_failed",
				logging.String("path", c.stagingDir),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check paths.staging_dir permissions"),
				logging.String(logging.FieldImpact, "old blur artifacts not removed"),
			)
		}
		return result
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if entry.IsDir() || !IsArtifact(entry.Name()) {
			continue
		}
		path := filepath.Join(c.stagingDir, entry.Name())
		if err := os.Remove(path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			logging.WarnWithContext(logger, "failed to remove blur artifact", "staging_cleanup_failed",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check paths.staging_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, path)
	}

	if len(result.Removed) > 0 {
		logger.Info("removed blur artifacts",
			logging.Int("count", len(result.Removed)),
			logging.String(logging.FieldEventType, "staging_cleanup"),
		)
	}
	return result
}

// HealthCheck reports whether staging is usable.
func (c *Cleanup) HealthCheck(context.Context) stage.Health {
	name := stage.KindCleanup.Label()
	if err := fileutil.EnsureWritableDir(c.stagingDir); err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	return stage.Healthy(name)
}

// IsArtifact reports whether name is an intermediate blur output.
func IsArtifact(name string) bool {
	return strings.HasPrefix(name, ArtifactPrefix) && strings.EqualFold(filepath.Ext(name), ".png")
}
