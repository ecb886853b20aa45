package config

const (
	defaultConfigPath             = "~/.config/blurchain/config.toml"
	defaultStagingDir             = "~/.local/share/blurchain/blur_filter_outputs"
	defaultOutputDir              = "~/Pictures/blurchain"
	defaultLogDir                 = "~/.local/share/blurchain/logs"
	defaultBlurLevel              = 1
	defaultBlurSigma              = 10.0
	defaultBlurDelaySeconds       = 3
	defaultPipelineName           = "image_manipulation_work"
	defaultConstraintPollInterval = 5
	defaultHistoryLimit           = 20
	defaultNotifyRequestTimeout   = 10
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			OutputDir:  defaultOutputDir,
			LogDir:     defaultLogDir,
		},
		Blur: Blur{
			DefaultLevel:    defaultBlurLevel,
			Sigma:           defaultBlurSigma,
			DelaySeconds:    defaultBlurDelaySeconds,
			RequireCharging: true,
		},
		Workflow: Workflow{
			PipelineName:           defaultPipelineName,
			ConstraintPollInterval: defaultConstraintPollInterval,
			HistoryLimit:           defaultHistoryLimit,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Status:         true,
			Completion:     true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
