package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"spacedub/internal/config"
	"spacedub/internal/logging"
	"spacedub/internal/services"
	"spacedub/internal/textutil"
)

// Ref is a durable reference to prepared media.
type Ref struct {
	URL             string
	Key             string
	LocalPath       string
	DurationSeconds float64
}

// Pipeline implements prepare(manifestURL) for the state machine.
type Pipeline struct {
	transcoder Transcoder
	store      ObjectStore
	probe      func(ctx context.Context, path string) (Probe, error)
	attempts   int
	backoff    time.Duration
	keepLocal  bool
	logger     *slog.Logger
	sleeper    func(context.Context, time.Duration) error
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithCommandRunner replaces the ffmpeg runner.
func WithCommandRunner(run CommandRunner) Option {
	return func(p *Pipeline) { p.transcoder.Run = run }
}

// WithProbe replaces the ffprobe check.
func WithProbe(probe func(ctx context.Context, path string) (Probe, error)) Option {
	return func(p *Pipeline) { p.probe = probe }
}

// WithSleeper overrides backoff sleeping.
func WithSleeper(sleeper func(context.Context, time.Duration) error) Option {
	return func(p *Pipeline) {
		if sleeper != nil {
			p.sleeper = sleeper
		}
	}
}

// NewPipeline builds a Pipeline from the media section of cfg.
func NewPipeline(cfg *config.Config, store ObjectStore, logger *slog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		transcoder: Transcoder{
			Binary:  cfg.Media.FFmpegBinary,
			Format:  cfg.Media.AudioFormat,
			WorkDir: cfg.Paths.WorkDir,
			Timeout: time.Duration(cfg.Media.TranscodeTimeout) * time.Second,
		},
		store:     store,
		attempts:  cfg.Media.UploadAttempts,
		backoff:   time.Duration(cfg.Media.UploadBackoffSeconds) * time.Second,
		keepLocal: cfg.Media.KeepLocalFiles,
		logger:    logging.NewComponentLogger(logger, "media"),
		sleeper:   sleepWithContext,
	}
	probeBinary := ProbeBinary(cfg.Media.FFmpegBinary)
	p.probe = func(ctx context.Context, path string) (Probe, error) {
		return Inspect(ctx, probeBinary, path)
	}
	if p.attempts <= 0 {
		p.attempts = 1
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Prepare transcodes manifestURL and uploads the result under jobID.
func (p *Pipeline) Prepare(ctx context.Context, manifestURL, jobID string) (Ref, error) {
	logger := logging.WithContext(ctx, p.logger)

	token := textutil.SanitizeToken(jobID)
	local, err := p.transcoder.Transcode(ctx, manifestURL, "space-"+token)
	if err != nil {
		return Ref{}, services.Wrap(services.ErrExternalService, "preparing_media", "transcode", "", err)
	}
	if !p.keepLocal {
		defer func() { _ = os.Remove(local) }()
	}

	ref := Ref{LocalPath: local, Key: path.Join("spaces", token, filepath.Base(local))}
	if p.probe != nil {
		probe, err := p.probe(ctx, local)
		if err != nil {
			logging.WarnWithContext(logger, "ffprobe check failed", "media_probe_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "install ffprobe next to ffmpeg"),
				logging.String(logging.FieldImpact, "media duration is not recorded"))
		} else {
			if probe.AudioStreamCount() == 0 {
				return Ref{}, services.Wrap(services.ErrExternalService, "preparing_media", "probe", "transcoded file has no audio stream", nil)
			}
			ref.DurationSeconds = probe.DurationSeconds()
		}
	}
	logger.Info("media transcoded",
		logging.String(logging.FieldEventType, "media_transcoded"),
		logging.String("path", local),
		logging.Int64("duration_seconds", int64(ref.DurationSeconds)))

	url, err := p.uploadWithRetry(ctx, logger, local, ref.Key)
	if err != nil {
		return Ref{}, err
	}
	ref.URL = url
	return ref, nil
}

func (p *Pipeline) uploadWithRetry(ctx context.Context, logger *slog.Logger, local, key string) (string, error) {
	delay := p.backoff
	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		url, err := p.store.Upload(ctx, local, key)
		if err == nil {
			logger.Info("media uploaded",
				logging.String(logging.FieldEventType, "media_uploaded"),
				logging.String("key", key),
				logging.Int("attempt", attempt))
			return url, nil
		}
		lastErr = err
		if !services.Retryable(err) || attempt == p.attempts {
			break
		}
		logging.WarnWithContext(logger, "media upload failed; retrying", "media_upload_retry",
			logging.Error(err),
			logging.Int("attempt", attempt),
			logging.Duration("backoff", delay),
			logging.String(logging.FieldErrorHint, "check object storage reachability"),
			logging.String(logging.FieldImpact, "job is delayed"))
		if err := p.sleeper(ctx, delay); err != nil {
			return "", err
		}
		delay *= 2
	}
	if errors.Is(lastErr, services.ErrTransient) {
		return "", services.Wrap(services.ErrExternalService, "preparing_media", "upload",
			fmt.Sprintf("gave up after %d attempts", p.attempts), lastErr)
	}
	return "", lastErr
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
