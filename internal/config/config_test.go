package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"blurchain/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("BLURCHAIN_NTFY_TOPIC", "")
	t.Chdir(tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantStaging := filepath.Join(tempHome, ".local", "share", "blurchain", "blur_filter_outputs")
	if cfg.Paths.StagingDir != wantStaging {
		t.Fatalf("unexpected staging dir: got %q want %q", cfg.Paths.StagingDir, wantStaging)
	}
	if cfg.Paths.OutputDir != filepath.Join(tempHome, "Pictures", "blurchain") {
		t.Fatalf("unexpected output dir: %q", cfg.Paths.OutputDir)
	}
	if cfg.Blur.DefaultLevel != 1 {
		t.Fatalf("expected default blur level 1, got %d", cfg.Blur.DefaultLevel)
	}
	if !cfg.Blur.RequireCharging {
		t.Fatal("expected charging requirement enabled by default")
	}
	if cfg.Workflow.PipelineName != "image_manipulation_work" {
		t.Fatalf("unexpected pipeline name %q", cfg.Workflow.PipelineName)
	}
	if cfg.Notifications.NtfyTopic != "" {
		t.Fatalf("expected notifications disabled, got %q", cfg.Notifications.NtfyTopic)
	}
}

func TestLoadReadsTOMLFile(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	path := filepath.Join(tempHome, "config.toml")
	contents := `
[paths]
staging_dir = "~/tmp/staging"
output_dir = "~/out"

[blur]
default_level = 3
sigma = 4.5
delay_seconds = 0
require_charging = false

[logging]
format = "JSON"
level = "DEBUG"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected config %q to be used, got %q (exists=%v)", path, resolved, exists)
	}
	if cfg.Paths.StagingDir != filepath.Join(tempHome, "tmp", "staging") {
		t.Fatalf("unexpected staging dir %q", cfg.Paths.StagingDir)
	}
	if cfg.Blur.DefaultLevel != 3 || cfg.Blur.Sigma != 4.5 || cfg.Blur.DelaySeconds != 0 {
		t.Fatalf("unexpected blur config %+v", cfg.Blur)
	}
	if cfg.Blur.RequireCharging {
		t.Fatal("expected charging requirement disabled")
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("expected normalized logging values, got %+v", cfg.Logging)
	}
}

func TestLoadUsesEnvNtfyTopic(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("BLURCHAIN_NTFY_TOPIC", " https://ntfy.example/topic ")
	t.Chdir(tempHome)

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Notifications.NtfyTopic != "https://ntfy.example/topic" {
		t.Fatalf("expected topic from env, got %q", cfg.Notifications.NtfyTopic)
	}
}

func TestValidateRejectsOutOfRangeValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"level too high", func(c *config.Config) { c.Blur.DefaultLevel = 4 }, "blur.default_level"},
		{"level negative", func(c *config.Config) { c.Blur.DefaultLevel = -1 }, "blur.default_level"},
		{"sigma", func(c *config.Config) { c.Blur.Sigma = -1 }, "blur.sigma"},
		{"delay", func(c *config.Config) { c.Blur.DelaySeconds = -1 }, "blur.delay_seconds"},
		{"poll", func(c *config.Config) { c.Workflow.ConstraintPollInterval = 0 }, "workflow.constraint_poll_interval"},
		{"format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"level", func(c *config.Config) { c.Logging.Level = "trace" }, "logging.level"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in error %q", tc.want, err.Error())
			}
		})
	}
}

func TestSampleConfigParses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var cfg config.Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	if cfg.Workflow.PipelineName != "image_manipulation_work" {
		t.Fatalf("unexpected sample pipeline name %q", cfg.Workflow.PipelineName)
	}
}

func TestEncodeRoundTrips(t *testing.T) {
	cfg := config.Default()
	encoded, err := cfg.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var decoded config.Config
	if err := toml.Unmarshal([]byte(encoded), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Blur != cfg.Blur {
		t.Fatalf("blur section changed: %+v vs %+v", decoded.Blur, cfg.Blur)
	}
}
