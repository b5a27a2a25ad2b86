package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeBrowser(); err != nil {
		return err
	}
	c.normalizeMentions()
	c.normalizeCapture()
	c.normalizeMedia()
	c.normalizeStorage()
	c.normalizeDubbing()
	c.normalizeLLM()
	c.normalizeReply()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.StateDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = filepath.Join(c.Paths.StateDir, "work")
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DedupFile) == "" {
		c.Paths.DedupFile = filepath.Join(c.Paths.StateDir, defaultDedupFileName)
	}
	if c.Paths.DedupFile, err = expandPath(c.Paths.DedupFile); err != nil {
		return fmt.Errorf("paths.dedup_file: %w", err)
	}
	if c.Paths.CookiesFile, err = expandPath(strings.TrimSpace(c.Paths.CookiesFile)); err != nil {
		return fmt.Errorf("paths.cookies_file: %w", err)
	}
	return nil
}

func (c *Config) normalizeBrowser() error {
	var err error
	c.Browser.ExecPath = strings.TrimSpace(c.Browser.ExecPath)
	if c.Browser.ExecPath == "" {
		if value, ok := os.LookupEnv("CHROME_PATH"); ok {
			c.Browser.ExecPath = strings.TrimSpace(value)
		}
	}
	if c.Browser.UserDataDir, err = expandPath(strings.TrimSpace(c.Browser.UserDataDir)); err != nil {
		return fmt.Errorf("browser.user_data_dir: %w", err)
	}
	c.Browser.UserAgent = strings.TrimSpace(c.Browser.UserAgent)
	if c.Browser.NavigationTimeout <= 0 {
		c.Browser.NavigationTimeout = defaultNavigationTimeout
	}
	if c.Browser.ElementTimeout <= 0 {
		c.Browser.ElementTimeout = defaultElementTimeout
	}
	return nil
}

func (c *Config) normalizeMentions() {
	c.Mentions.URL = strings.TrimSpace(c.Mentions.URL)
	if c.Mentions.URL == "" {
		c.Mentions.URL = defaultMentionsURL
	}
	c.Mentions.Handle = strings.TrimPrefix(strings.TrimSpace(c.Mentions.Handle), "@")
	if c.Mentions.Handle == "" {
		if value, ok := os.LookupEnv("SPACEDUB_HANDLE"); ok {
			c.Mentions.Handle = strings.TrimPrefix(strings.TrimSpace(value), "@")
		}
	}
	if c.Mentions.PollInterval <= 0 {
		c.Mentions.PollInterval = defaultMentionPollInterval
	}
	if c.Mentions.SettleDelay < 0 {
		c.Mentions.SettleDelay = 0
	}
}

func (c *Config) normalizeCapture() {
	if c.Capture.DeadlineSeconds <= 0 {
		c.Capture.DeadlineSeconds = defaultCaptureDeadlineSeconds
	}
	if c.Capture.LookbackSteps < 0 {
		c.Capture.LookbackSteps = 0
	}
}

func (c *Config) normalizeMedia() {
	c.Media.FFmpegBinary = strings.TrimSpace(c.Media.FFmpegBinary)
	if c.Media.FFmpegBinary == "" {
		c.Media.FFmpegBinary = defaultFFmpegBinary
	}
	c.Media.AudioFormat = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c.Media.AudioFormat), "."))
	if c.Media.AudioFormat == "" {
		c.Media.AudioFormat = defaultAudioFormat
	}
	if c.Media.TranscodeTimeout <= 0 {
		c.Media.TranscodeTimeout = defaultTranscodeTimeout
	}
	if c.Media.UploadAttempts <= 0 {
		c.Media.UploadAttempts = defaultUploadAttempts
	}
	if c.Media.UploadBackoffSeconds < 0 {
		c.Media.UploadBackoffSeconds = 0
	}
}

func (c *Config) normalizeStorage() {
	c.Storage.Endpoint = strings.TrimSpace(c.Storage.Endpoint)
	if c.Storage.Endpoint == "" {
		if value, ok := os.LookupEnv("S3_ENDPOINT"); ok {
			c.Storage.Endpoint = strings.TrimSpace(value)
		}
	}
	c.Storage.Endpoint = strings.TrimPrefix(strings.TrimPrefix(c.Storage.Endpoint, "https://"), "http://")
	c.Storage.AccessKey = strings.TrimSpace(c.Storage.AccessKey)
	if c.Storage.AccessKey == "" {
		if value, ok := os.LookupEnv("S3_ACCESS_KEY"); ok {
			c.Storage.AccessKey = strings.TrimSpace(value)
		}
	}
	c.Storage.SecretKey = strings.TrimSpace(c.Storage.SecretKey)
	if c.Storage.SecretKey == "" {
		if value, ok := os.LookupEnv("S3_SECRET_KEY"); ok {
			c.Storage.SecretKey = strings.TrimSpace(value)
		}
	}
	c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket)
	c.Storage.Region = strings.TrimSpace(c.Storage.Region)
	if c.Storage.Region == "" {
		c.Storage.Region = defaultStorageRegion
	}
	if c.Storage.PresignSeconds <= 0 {
		c.Storage.PresignSeconds = defaultStoragePresignSeconds
	}
}

func (c *Config) normalizeDubbing() {
	c.Dubbing.BaseURL = strings.TrimRight(strings.TrimSpace(c.Dubbing.BaseURL), "/")
	if c.Dubbing.BaseURL == "" {
		c.Dubbing.BaseURL = defaultDubbingBaseURL
	}
	c.Dubbing.APIKey = strings.TrimSpace(c.Dubbing.APIKey)
	if c.Dubbing.APIKey == "" {
		if value, ok := os.LookupEnv("DUBBING_API_KEY"); ok {
			c.Dubbing.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("ELEVENLABS_API_KEY"); ok {
			c.Dubbing.APIKey = strings.TrimSpace(value)
		}
	}
	c.Dubbing.DefaultLanguage = strings.ToLower(strings.TrimSpace(c.Dubbing.DefaultLanguage))
	if c.Dubbing.DefaultLanguage == "" {
		c.Dubbing.DefaultLanguage = defaultDubbingLanguage
	}
	if c.Dubbing.RequestTimeout <= 0 {
		c.Dubbing.RequestTimeout = defaultDubbingRequestTimeout
	}
	if c.Dubbing.PollInterval <= 0 {
		c.Dubbing.PollInterval = defaultDubbingPollInterval
	}
	if c.Dubbing.PollBudget <= 0 {
		c.Dubbing.PollBudget = defaultDubbingPollBudget
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	if c.LLM.Referer == "" {
		c.LLM.Referer = defaultLLMReferer
	}
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.Title == "" {
		c.LLM.Title = defaultLLMTitle
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("LLM_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeReply() {
	if c.Reply.MinIntervalSeconds < 0 {
		c.Reply.MinIntervalSeconds = 0
	}
	if c.Reply.MaxLength <= 0 {
		c.Reply.MaxLength = defaultReplyMaxLength
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Metrics.Bind = strings.TrimSpace(c.Metrics.Bind)
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultWorkflowErrorRetry
	}
	if c.Workflow.ShutdownGrace <= 0 {
		c.Workflow.ShutdownGrace = defaultWorkflowShutdownGrace
	}
}
