package config

import (
	"errors"
	"fmt"
	"sort"
)

// MaxBlurLevel is the highest blur intensity exposed to users.
const MaxBlurLevel = 3

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBlur(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateBlur() error {
	if c.Blur.DefaultLevel < 1 || c.Blur.DefaultLevel > MaxBlurLevel {
		return fmt.Errorf("blur.default_level must be between 1 and %d", MaxBlurLevel)
	}
	if c.Blur.Sigma <= 0 {
		return errors.New("blur.sigma must be positive")
	}
	if c.Blur.DelaySeconds < 0 {
		return errors.New("blur.delay_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	return ensurePositiveMap(map[string]int{
		"workflow.constraint_poll_interval": c.Workflow.ConstraintPollInterval,
		"workflow.history_limit":            c.Workflow.HistoryLimit,
		"notifications.request_timeout":     c.Notifications.RequestTimeout,
	})
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
