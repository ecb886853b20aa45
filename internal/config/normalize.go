package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeBlur(); err != nil {
		return err
	}
	c.normalizeWorkflow()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = defaultStagingDir
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeBlur() error {
	c.Blur.DefaultImage = strings.TrimSpace(c.Blur.DefaultImage)
	if c.Blur.DefaultImage != "" && !strings.Contains(c.Blur.DefaultImage, "://") {
		expanded, err := expandPath(c.Blur.DefaultImage)
		if err != nil {
			return fmt.Errorf("blur.default_image: %w", err)
		}
		c.Blur.DefaultImage = expanded
	}
	if c.Blur.DefaultLevel == 0 {
		c.Blur.DefaultLevel = defaultBlurLevel
	}
	if c.Blur.Sigma == 0 {
		c.Blur.Sigma = defaultBlurSigma
	}
	return nil
}

func (c *Config) normalizeWorkflow() {
	c.Workflow.PipelineName = strings.TrimSpace(c.Workflow.PipelineName)
	if c.Workflow.PipelineName == "" {
		c.Workflow.PipelineName = defaultPipelineName
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("BLURCHAIN_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
