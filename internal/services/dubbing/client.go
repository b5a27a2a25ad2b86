package dubbing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"spacedub/internal/config"
	"spacedub/internal/services"
	"spacedub/internal/services/retry"
)

const defaultHTTPTimeout = 30 * time.Second

// Status is the coarse state of a backend job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Job is the backend's view of a dubbing job.
type Job struct {
	ID              string
	Name            string
	Status          Status
	RawStatus       string
	TargetLanguages []string
	Error           string
}

// SubmitOptions control how a job is created.
type SubmitOptions struct {
	TargetLanguage string
	SourceLanguage string
	Name           string
}

// Publisher makes a local file reachable by URL.
type Publisher interface {
	Upload(ctx context.Context, localPath, key string) (string, error)
}

// Config captures the runtime settings for the backend.
type Config struct {
	APIKey         string
	BaseURL        string
	WorkDir        string
	TimeoutSeconds int
}

// FromConfig extracts the dubbing client settings from the application config.
func FromConfig(cfg *config.Config) Config {
	if cfg == nil {
		return Config{}
	}
	return Config{
		APIKey:         cfg.Dubbing.APIKey,
		BaseURL:        cfg.Dubbing.BaseURL,
		WorkDir:        cfg.Paths.WorkDir,
		TimeoutSeconds: cfg.Dubbing.RequestTimeout,
	}
}

// Client wraps the dubbing HTTP API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	publisher  Publisher
	retry      retry.Policy
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithPublisher re-hosts dubbed audio through p so result links outlive the
// backend's own retention.
func WithPublisher(p Publisher) Option {
	return func(c *Client) {
		c.publisher = p
	}
}

// WithRetryMaxAttempts lets backend calls be retried on 408/429/5xx and
// network timeouts. The default is a single attempt: a failing backend call
// fails its phase.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) { c.retry.Attempts = attempts }
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retry.BaseDelay = baseDelay
		c.retry.MaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) { c.retry.Sleeper = sleeper }
}

// NewClient constructs a dubbing client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			WorkDir:        strings.TrimSpace(cfg.WorkDir),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
		retry:      retry.Policy{Attempts: 1, BaseDelay: time.Second, MaxDelay: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = "https://api.elevenlabs.io/v1"
	}
	if client.cfg.WorkDir == "" {
		client.cfg.WorkDir = os.TempDir()
	}
	return client
}

// Submit creates a dubbing job for mediaRef. correlationID names the job on
// the backend so repeated submissions for one mention can be traced.
func (c *Client) Submit(ctx context.Context, mediaRef, correlationID string, opts SubmitOptions) (string, error) {
	mediaRef = strings.TrimSpace(mediaRef)
	if mediaRef == "" {
		return "", services.Wrap(services.ErrValidation, "submitting_job", "dubbing submit", "media reference required", nil)
	}
	target := strings.TrimSpace(opts.TargetLanguage)
	if target == "" {
		return "", services.Wrap(services.ErrValidation, "submitting_job", "dubbing submit", "target language required", nil)
	}
	source := strings.TrimSpace(opts.SourceLanguage)
	if source == "" {
		source = "auto"
	}
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = "spacedub-" + correlationID
	}

	fields := [][2]string{
		{"source_url", mediaRef},
		{"target_lang", target},
		{"source_lang", source},
		{"name", name},
	}
	var parsed struct {
		DubbingID        string  `json:"dubbing_id"`
		ExpectedDuration float64 `json:"expected_duration_sec"`
	}
	err := c.retry.Do(ctx, func() error {
		body, contentType, err := encodeForm(fields)
		if err != nil {
			return err
		}
		resp, err := c.do(ctx, http.MethodPost, c.endpoint("dubbing"), body, contentType, correlationID)
		if err != nil {
			return err
		}
		return json.Unmarshal(resp, &parsed)
	})
	if err != nil {
		return "", services.Wrap(services.ErrExternalService, "submitting_job", "dubbing submit", "", err)
	}
	if strings.TrimSpace(parsed.DubbingID) == "" {
		return "", services.Wrap(services.ErrExternalService, "submitting_job", "dubbing submit", "response missing dubbing_id", nil)
	}
	return parsed.DubbingID, nil
}

// Poll fetches the current status of jobID.
func (c *Client) Poll(ctx context.Context, jobID string) (Job, error) {
	var parsed struct {
		DubbingID       string   `json:"dubbing_id"`
		Name            string   `json:"name"`
		Status          string   `json:"status"`
		TargetLanguages []string `json:"target_languages"`
		Error           string   `json:"error"`
	}
	err := c.retry.Do(ctx, func() error {
		resp, err := c.do(ctx, http.MethodGet, c.endpoint("dubbing", jobID), nil, "", "")
		if err != nil {
			return err
		}
		return json.Unmarshal(resp, &parsed)
	})
	if err != nil {
		return Job{}, services.Wrap(services.ErrExternalService, "awaiting_completion", "dubbing poll", jobID, err)
	}
	id := parsed.DubbingID
	if id == "" {
		id = jobID
	}
	return Job{
		ID:              id,
		Name:            parsed.Name,
		Status:          mapStatus(parsed.Status),
		RawStatus:       parsed.Status,
		TargetLanguages: parsed.TargetLanguages,
		Error:           strings.TrimSpace(parsed.Error),
	}, nil
}

func mapStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "dubbed", "completed", "succeeded", "done":
		return StatusSucceeded
	case "failed", "error", "cancelled":
		return StatusFailed
	default:
		return StatusPending
	}
}

// AudioURL is the backend URL of the dubbed audio for language.
func (c *Client) AudioURL(jobID, language string) string {
	return c.endpoint("dubbing", jobID, "audio", language)
}

// ResultLink returns a link to the dubbed audio. With a publisher configured
// the audio is downloaded and re-hosted; otherwise the backend URL is used.
func (c *Client) ResultLink(ctx context.Context, jobID, language string) (string, error) {
	if c.publisher == nil {
		return c.AudioURL(jobID, language), nil
	}
	if err := os.MkdirAll(c.cfg.WorkDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "fetching_result", "prepare work dir", c.cfg.WorkDir, err)
	}
	local := filepath.Join(c.cfg.WorkDir, fmt.Sprintf("dub-%s-%s.mp3", jobID, language))
	defer func() { _ = os.Remove(local) }()

	err := c.retry.Do(ctx, func() error {
		return c.download(ctx, c.AudioURL(jobID, language), local)
	})
	if err != nil {
		return "", services.Wrap(services.ErrExternalService, "fetching_result", "download dubbed audio", jobID, err)
	}
	link, err := c.publisher.Upload(ctx, local, path.Join("dubs", jobID, filepath.Base(local)))
	if err != nil {
		return "", services.Wrap(services.ErrExternalService, "fetching_result", "publish dubbed audio", jobID, err)
	}
	return link, nil
}

// Transcript returns the job transcript for language as plain text.
func (c *Client) Transcript(ctx context.Context, jobID, language string) (string, error) {
	endpoint := c.endpoint("dubbing", jobID, "transcript", language) + "?format_type=srt"
	var raw []byte
	err := c.retry.Do(ctx, func() error {
		resp, err := c.do(ctx, http.MethodGet, endpoint, nil, "", "")
		if err != nil {
			return err
		}
		raw = resp
		return nil
	})
	if err != nil {
		return "", services.Wrap(services.ErrExternalService, "fetching_result", "dubbing transcript", jobID, err)
	}
	text := PlainTranscript(string(raw))
	if text == "" {
		return "", services.Wrap(services.ErrExternalService, "fetching_result", "dubbing transcript", "empty transcript", nil)
	}
	return text, nil
}

// PlainTranscript strips SRT cue numbers and timings, joining cue text with
// single spaces.
func PlainTranscript(srt string) string {
	var parts []string
	for _, line := range strings.Split(strings.ReplaceAll(srt, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.Contains(line, "-->") {
			continue
		}
		if _, err := strconv.Atoi(line); err == nil {
			continue
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, " ")
}

func (c *Client) endpoint(segments ...string) string {
	escaped := make([]string, 0, len(segments)+1)
	escaped = append(escaped, c.cfg.BaseURL)
	for _, s := range segments {
		escaped = append(escaped, url.PathEscape(s))
	}
	return strings.Join(escaped, "/")
}

func encodeForm(fields [][2]string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for _, field := range fields {
		if err := writer.WriteField(field[0], field[1]); err != nil {
			return nil, "", fmt.Errorf("dubbing request: encode %s: %w", field[0], err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("dubbing request: encode form: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	if c.cfg.APIKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "", "dubbing request", "api key required", nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("dubbing request: new request: %w", err)
	}
	req.Header.Set("xi-api-key", c.cfg.APIKey)
	return req, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, contentType, idempotencyKey string) ([]byte, error) {
	req, err := c.newRequest(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dubbing request: http error (timeout=%s): %w", c.httpClient.Timeout, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("dubbing request: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, retry.NewStatusError("dubbing", resp, data)
	}
	return data, nil
}

func (c *Client) download(ctx context.Context, endpoint, dest string) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("dubbing download: http error: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return retry.NewStatusError("dubbing", resp, data)
	}
	file, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("dubbing download: create %s: %w", dest, err)
	}
	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		return fmt.Errorf("dubbing download: write %s: %w", dest, err)
	}
	return file.Close()
}
