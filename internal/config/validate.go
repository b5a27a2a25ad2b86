package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var supportedAudioFormats = map[string]struct{}{
	"mp3": {},
	"m4a": {},
	"aac": {},
	"wav": {},
}

// Validate ensures the configuration is structurally usable. Credentials for
// external services are checked separately by ValidateServices so read-only
// CLI commands work without them.
func (c *Config) Validate() error {
	if err := c.validateMentions(); err != nil {
		return err
	}
	if err := c.validateMedia(); err != nil {
		return err
	}
	if err := c.validateDubbing(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

// ValidateServices ensures every external collaborator the daemon needs is configured.
func (c *Config) ValidateServices() error {
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		defaultPath = defaultConfigPath
	}
	if c.Dubbing.APIKey == "" {
		return fmt.Errorf("dubbing.api_key is required. Set DUBBING_API_KEY env var or edit %s (create with 'spacedub config init')", defaultPath)
	}
	if c.Storage.Endpoint == "" {
		return errors.New("storage.endpoint is required (or set S3_ENDPOINT)")
	}
	if c.Storage.Bucket == "" {
		return errors.New("storage.bucket is required")
	}
	if c.Storage.AccessKey == "" || c.Storage.SecretKey == "" {
		return errors.New("storage.access_key and storage.secret_key are required (or set S3_ACCESS_KEY/S3_SECRET_KEY)")
	}
	return nil
}

func (c *Config) validateMentions() error {
	parsed, err := url.Parse(c.Mentions.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("mentions.url must be an absolute URL, got %q", c.Mentions.URL)
	}
	if c.Capture.LookbackSteps > 20 {
		return errors.New("capture.lookback_steps must be 20 or fewer")
	}
	return nil
}

func (c *Config) validateMedia() error {
	if _, ok := supportedAudioFormats[c.Media.AudioFormat]; !ok {
		return fmt.Errorf("media.audio_format %q is not supported", c.Media.AudioFormat)
	}
	if c.Media.UploadAttempts > 10 {
		return errors.New("media.upload_attempts must be 10 or fewer")
	}
	return nil
}

func (c *Config) validateDubbing() error {
	parsed, err := url.Parse(c.Dubbing.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("dubbing.base_url must be an absolute URL, got %q", c.Dubbing.BaseURL)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
}
