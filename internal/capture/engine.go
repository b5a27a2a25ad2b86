package capture

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"spacedub/internal/browser"
	"spacedub/internal/logging"
	"spacedub/internal/services"
)

// PlayControls are the default strategies for starting playback of a Space
// recording, most specific first.
var PlayControls = []browser.Locator{
	{Name: "play recording button", Kind: browser.ByCSS, Value: `button[aria-label="Play recording"]`},
	{Name: "space card play", Kind: browser.ByCSS, Value: `div[data-testid="placementTracking"] button[data-testid="audioSpaceCardPlayButton"]`},
	{Name: "listen to recording text", Kind: browser.ByText, Value: "Play recording"},
	{Name: "start listening text", Kind: browser.ByText, Value: "Start listening"},
	{Name: "listen aria", Kind: browser.ByAria, Value: "Listen"},
	{Name: "tune in text", Kind: browser.ByText, Value: "Tune in"},
}

// Result is a resolved capture.
type Result struct {
	ManifestURL string
	Source      Source
	Control     string
	Elapsed     time.Duration
	Superseded  []string
}

// Engine runs capture attempts against a page.
type Engine struct {
	deadline time.Duration
	logger   *slog.Logger
}

// NewEngine returns an engine whose attempts fail after deadline.
func NewEngine(deadline time.Duration, logger *slog.Logger) *Engine {
	if deadline <= 0 {
		deadline = 25 * time.Second
	}
	return &Engine{deadline: deadline, logger: logging.NewComponentLogger(logger, "capture")}
}

// Deadline returns the per-attempt deadline.
func (e *Engine) Deadline() time.Duration { return e.deadline }

// Capture clicks the first visible control in controls and waits for a
// manifest URL to appear on the network. The page must already show the
// target. Observers are attached before the click and detached before
// Capture returns.
func (e *Engine) Capture(ctx context.Context, page browser.Page, controls []browser.Locator) (Result, error) {
	if len(controls) == 0 {
		controls = PlayControls
	}
	logger := logging.WithContext(ctx, e.logger)

	session := NewSession()
	attemptCtx, cancel := context.WithTimeout(ctx, e.deadline)
	defer cancel()

	detachRequests := page.ObserveRequests(func(req browser.Request) {
		if found := MatchRequest(req); found != "" {
			session.Offer(found, SourceRequest)
		}
	})
	defer detachRequests()
	detachResponses := page.ObserveResponses(func(resp browser.Response) {
		if found, source := MatchResponse(resp); found != "" {
			session.Offer(found, source)
		}
	})
	defer detachResponses()

	control, err := e.trigger(attemptCtx, page, controls)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, err
	}

	select {
	case <-session.Done():
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		if !resolvedBy(attemptCtx, session) {
			return Result{}, e.timeout(logger)
		}
	}

	url, source, _ := session.Result()
	result := Result{
		ManifestURL: url,
		Source:      source,
		Control:     control,
		Elapsed:     session.Elapsed(),
		Superseded:  session.Superseded(),
	}
	logger.Info("manifest captured",
		logging.String(logging.FieldEventType, "capture_resolved"),
		logging.String("manifest_url", url),
		logging.String("source", string(source)),
		logging.String("control", control),
		logging.Duration("elapsed", result.Elapsed))
	for _, other := range result.Superseded {
		logger.Info("superseded manifest ignored",
			logging.String(logging.FieldEventType, "capture_superseded"),
			logging.String("manifest_url", other))
	}
	return result, nil
}

// trigger tries each control in order until one is clicked. Running out of
// time before any control was clicked counts as not finding one.
func (e *Engine) trigger(ctx context.Context, page browser.Page, controls []browser.Locator) (string, error) {
	var lastErr error
	for _, loc := range controls {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		err := page.Click(ctx, loc)
		if err == nil {
			return loc.String(), nil
		}
		if !errors.Is(err, services.ErrElementNotFound) && ctx.Err() == nil {
			return "", err
		}
		lastErr = err
		e.logger.Debug("play control not found", logging.String("control", loc.String()))
	}
	return "", services.Wrap(services.ErrElementNotFound, "resolving_stream", "trigger playback",
		"no play control matched", lastErr)
}

func (e *Engine) timeout(logger *slog.Logger) error {
	logging.WarnWithContext(logger, "capture timed out", "capture_timeout",
		logging.Duration("deadline", e.deadline),
		logging.String(logging.FieldErrorHint, "the recording may be unavailable or the player did not start"),
		logging.String(logging.FieldImpact, "this surface yields no manifest"))
	return services.Wrap(services.ErrCaptureTimeout, "resolving_stream", "await manifest",
		"no manifest observed before deadline", nil)
}

// resolvedBy reports whether session accepted a URL no later than ctx's
// deadline. A URL accepted after the deadline is late and does not count.
func resolvedBy(ctx context.Context, session *Session) bool {
	at, ok := session.ResolvedAt()
	if !ok {
		return false
	}
	deadline, hasDeadline := ctx.Deadline()
	return !hasDeadline || !at.After(deadline)
}
