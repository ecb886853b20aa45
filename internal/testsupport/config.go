package testsupport

import (
	"path/filepath"
	"testing"

	"blurchain/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The artificial blur delay is disabled and the charging precondition is off
// so pipelines complete immediately unless an option says otherwise.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Blur.DelaySeconds = 0
	cfgVal.Blur.Sigma = 1.5
	cfgVal.Blur.RequireCharging = false
	cfgVal.Workflow.ConstraintPollInterval = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithBlurDelay sets the artificial per-pass delay in seconds.
func WithBlurDelay(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Blur.DelaySeconds = seconds
	}
}

// WithRequireCharging toggles the save stage charging precondition.
func WithRequireCharging(required bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Blur.RequireCharging = required
	}
}

// WithNtfyTopic points notifications at the given endpoint.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}
