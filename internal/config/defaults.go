package config

const (
	defaultConfigPath              = "~/.config/spacedub/config.toml"
	defaultStateDir                = "~/.local/share/spacedub"
	defaultLogDir                  = "~/.local/share/spacedub/logs"
	defaultWorkDir                 = "~/.local/share/spacedub/work"
	defaultDedupFileName           = "processed_mentions.json"
	defaultCookiesFile             = "~/.config/spacedub/cookies.json"
	defaultNavigationTimeout       = 45
	defaultElementTimeout          = 10
	defaultMentionsURL             = "https://x.com/notifications/mentions"
	defaultMentionPollInterval     = 60
	defaultMentionSettleDelay      = 3
	defaultCaptureDeadlineSeconds  = 25
	defaultCaptureLookbackSteps    = 3
	defaultFFmpegBinary            = "ffmpeg"
	defaultAudioFormat             = "mp3"
	defaultTranscodeTimeout        = 1800
	defaultUploadAttempts          = 3
	defaultUploadBackoffSeconds    = 2
	defaultStorageRegion           = "us-east-1"
	defaultStoragePresignSeconds   = 7 * 24 * 60 * 60
	defaultDubbingBaseURL          = "https://api.elevenlabs.io/v1"
	defaultDubbingLanguage         = "en"
	defaultDubbingRequestTimeout   = 30
	defaultDubbingPollInterval     = 15
	defaultDubbingPollBudget       = 240
	defaultLLMBaseURL              = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel                = "google/gemini-2.5-flash"
	defaultLLMReferer              = "https://github.com/spacedub/spacedub"
	defaultLLMTitle                = "spacedub summarizer"
	defaultLLMTimeoutSeconds       = 60
	defaultReplyMinIntervalSeconds = 30
	defaultReplyMaxLength          = 280
	defaultNotifyRequestTimeout    = 10
	defaultWorkflowErrorRetry      = 10
	defaultWorkflowShutdownGrace   = 120
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:    defaultStateDir,
			LogDir:      defaultLogDir,
			WorkDir:     defaultWorkDir,
			CookiesFile: defaultCookiesFile,
		},
		Browser: Browser{
			Headless:          true,
			NavigationTimeout: defaultNavigationTimeout,
			ElementTimeout:    defaultElementTimeout,
		},
		Mentions: Mentions{
			URL:          defaultMentionsURL,
			PollInterval: defaultMentionPollInterval,
			SettleDelay:  defaultMentionSettleDelay,
		},
		Capture: Capture{
			DeadlineSeconds: defaultCaptureDeadlineSeconds,
			LookbackSteps:   defaultCaptureLookbackSteps,
		},
		Media: Media{
			FFmpegBinary:         defaultFFmpegBinary,
			AudioFormat:          defaultAudioFormat,
			TranscodeTimeout:     defaultTranscodeTimeout,
			UploadAttempts:       defaultUploadAttempts,
			UploadBackoffSeconds: defaultUploadBackoffSeconds,
		},
		Storage: Storage{
			Region:         defaultStorageRegion,
			UseSSL:         true,
			PresignSeconds: defaultStoragePresignSeconds,
		},
		Dubbing: Dubbing{
			BaseURL:         defaultDubbingBaseURL,
			DefaultLanguage: defaultDubbingLanguage,
			RequestTimeout:  defaultDubbingRequestTimeout,
			PollInterval:    defaultDubbingPollInterval,
			PollBudget:      defaultDubbingPollBudget,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Reply: Reply{
			Enabled:            true,
			MinIntervalSeconds: defaultReplyMinIntervalSeconds,
			MaxLength:          defaultReplyMaxLength,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			JobFailures:    true,
			JobCompletions: true,
		},
		Workflow: Workflow{
			ErrorRetryInterval: defaultWorkflowErrorRetry,
			ShutdownGrace:      defaultWorkflowShutdownGrace,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
