package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and state file configuration.
type Paths struct {
	StateDir    string `toml:"state_dir"`
	LogDir      string `toml:"log_dir"`
	WorkDir     string `toml:"work_dir"`
	DedupFile   string `toml:"dedup_file"`
	CookiesFile string `toml:"cookies_file"`
}

// Browser contains configuration for the automated browsing context.
type Browser struct {
	Headless          bool   `toml:"headless"`
	ExecPath          string `toml:"exec_path"`
	UserDataDir       string `toml:"user_data_dir"`
	UserAgent         string `toml:"user_agent"`
	NavigationTimeout int    `toml:"navigation_timeout"`
	ElementTimeout    int    `toml:"element_timeout"`
}

// Mentions contains configuration for the mention inbox poller.
type Mentions struct {
	URL          string `toml:"url"`
	Handle       string `toml:"handle"`
	PollInterval int    `toml:"poll_interval"`
	SettleDelay  int    `toml:"settle_delay"`
}

// Capture contains configuration for manifest capture sessions.
type Capture struct {
	DeadlineSeconds int `toml:"deadline_seconds"`
	LookbackSteps   int `toml:"lookback_steps"`
}

// Media contains configuration for the transcode and upload step.
type Media struct {
	FFmpegBinary         string `toml:"ffmpeg_binary"`
	AudioFormat          string `toml:"audio_format"`
	TranscodeTimeout     int    `toml:"transcode_timeout"`
	UploadAttempts       int    `toml:"upload_attempts"`
	UploadBackoffSeconds int    `toml:"upload_backoff_seconds"`
	KeepLocalFiles       bool   `toml:"keep_local_files"`
}

// Storage contains S3-compatible object storage settings.
type Storage struct {
	Endpoint       string `toml:"endpoint"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	Bucket         string `toml:"bucket"`
	Region         string `toml:"region"`
	UseSSL         bool   `toml:"use_ssl"`
	PresignSeconds int    `toml:"presign_seconds"`
}

// Dubbing contains configuration for the dubbing/transcription backend.
type Dubbing struct {
	BaseURL         string `toml:"base_url"`
	APIKey          string `toml:"api_key"`
	DefaultLanguage string `toml:"default_language"`
	RequestTimeout  int    `toml:"request_timeout"`
	PollInterval    int    `toml:"poll_interval"`
	PollBudget      int    `toml:"poll_budget"`
}

// LLM contains connection settings for the summarization backend.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Reply contains configuration for posting results back to mentions.
type Reply struct {
	Enabled            bool `toml:"enabled"`
	MinIntervalSeconds int  `toml:"min_interval_seconds"`
	MaxLength          int  `toml:"max_length"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	JobFailures    bool   `toml:"job_failures"`
	JobCompletions bool   `toml:"job_completions"`
}

// Workflow contains configuration for daemon timing.
type Workflow struct {
	ErrorRetryInterval int `toml:"error_retry_interval"`
	ShutdownGrace      int `toml:"shutdown_grace"`
}

// Metrics contains configuration for the Prometheus endpoint.
type Metrics struct {
	Bind string `toml:"bind"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for spacedub.
//
// Configuration sections by subsystem:
//   - Paths: state, logs, scratch space, dedup file, browser cookies
//   - Browser: headless Chrome settings and UI timeouts
//   - Mentions: inbox URL and poll cadence
//   - Capture: manifest capture deadline and thread lookback
//   - Media: ffmpeg transcode and upload retry policy
//   - Storage: S3-compatible bucket for prepared media
//   - Dubbing: dubbing/transcription backend and poll budget
//   - LLM: summarization backend
//   - Reply: reply posting and pacing
//   - Notifications: ntfy push notification settings
//   - Workflow: error backoff and shutdown grace
//   - Metrics: Prometheus listener
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Browser       Browser       `toml:"browser"`
	Mentions      Mentions      `toml:"mentions"`
	Capture       Capture       `toml:"capture"`
	Media         Media         `toml:"media"`
	Storage       Storage       `toml:"storage"`
	Dubbing       Dubbing       `toml:"dubbing"`
	LLM           LLM           `toml:"llm"`
	Reply         Reply         `toml:"reply"`
	Notifications Notifications `toml:"notifications"`
	Workflow      Workflow      `toml:"workflow"`
	Metrics       Metrics       `toml:"metrics"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. A .env file next to the resolved config path is
// loaded first so secrets can live outside the TOML file; it never overrides variables
// already present in the environment.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if err := loadDotEnv(filepath.Join(filepath.Dir(resolvedPath), ".env")); err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("spacedub.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir, c.Paths.WorkDir, filepath.Dir(c.Paths.DedupFile)} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// JobsDBPath returns the location of the job history database.
func (c *Config) JobsDBPath() string {
	return filepath.Join(c.Paths.StateDir, "jobs.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "spacedub.lock")
}

// PIDPath returns the daemon pid file.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "spacedub.pid")
}

// PollInterval returns the mention poll cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Mentions.PollInterval) * time.Second
}

// CaptureDeadline returns the hard deadline of one capture session.
func (c *Config) CaptureDeadline() time.Duration {
	return time.Duration(c.Capture.DeadlineSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
