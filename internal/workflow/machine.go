package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"spacedub/internal/browser"
	"spacedub/internal/capture"
	"spacedub/internal/config"
	"spacedub/internal/jobs"
	"spacedub/internal/logging"
	"spacedub/internal/media"
	"spacedub/internal/mention"
	"spacedub/internal/metrics"
	"spacedub/internal/notifications"
	"spacedub/internal/services"
	"spacedub/internal/services/dubbing"
	"spacedub/internal/services/llm"
)

// ErrBusy is returned when Run is called while another job is in flight.
var ErrBusy = errors.New("workflow: a job is already running")

// PageRunner grants exclusive use of a browser page.
type PageRunner interface {
	Use(ctx context.Context, fn func(browser.Page) error) error
}

// Capturer resolves a manifest URL from the page's current surface.
type Capturer interface {
	Capture(ctx context.Context, page browser.Page, controls []browser.Locator) (capture.Result, error)
}

// MediaPreparer turns a manifest URL into a durable media reference.
type MediaPreparer interface {
	Prepare(ctx context.Context, manifestURL, jobID string) (media.Ref, error)
}

// Backend is the dubbing and transcription service.
type Backend interface {
	Submit(ctx context.Context, mediaRef, correlationID string, opts dubbing.SubmitOptions) (string, error)
	Poll(ctx context.Context, jobID string) (dubbing.Job, error)
	ResultLink(ctx context.Context, jobID, language string) (string, error)
	Transcript(ctx context.Context, jobID, language string) (string, error)
}

// Summarizer condenses a transcript.
type Summarizer interface {
	Summarize(ctx context.Context, transcript, language string) (llm.Summary, error)
}

// Replier posts text back to a post.
type Replier interface {
	Reply(ctx context.Context, origin, text string) error
}

// Ledger records terminal outcomes.
type Ledger interface {
	Record(ctx context.Context, rec jobs.Record) error
}

// Deps bundles the collaborators a Machine drives. Summarizer, Ledger,
// Notifier and Metrics are optional.
type Deps struct {
	Pages      PageRunner
	Capture    Capturer
	Media      MediaPreparer
	Backend    Backend
	Summarizer Summarizer
	Replies    Replier
	Ledger     Ledger
	Notifier   notifications.Service
	Metrics    *metrics.Metrics
}

// Machine drives one work unit at a time through the processing phases.
type Machine struct {
	deps Deps

	lookback        int
	pollInterval    time.Duration
	pollBudget      int
	defaultLanguage language.Tag
	replyMax        int

	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
	sleeper func(context.Context, time.Duration) error

	running atomic.Bool
}

// Option customizes a Machine.
type Option func(*Machine)

// WithSleeper overrides how poll waits are performed (useful for tests).
func WithSleeper(sleeper func(context.Context, time.Duration) error) Option {
	return func(m *Machine) {
		if sleeper != nil {
			m.sleeper = sleeper
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// New builds a Machine from cfg and its collaborators.
func New(cfg *config.Config, deps Deps, logger *slog.Logger, opts ...Option) *Machine {
	fallback, ok := mention.ParseLanguage(cfg.Dubbing.DefaultLanguage)
	if !ok {
		fallback = language.English
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewService(&config.Config{})
	}
	m := &Machine{
		deps:            deps,
		lookback:        cfg.Capture.LookbackSteps,
		pollInterval:    time.Duration(cfg.Dubbing.PollInterval) * time.Second,
		pollBudget:      cfg.Dubbing.PollBudget,
		defaultLanguage: fallback,
		replyMax:        cfg.Reply.MaxLength,
		logger:          logging.NewComponentLogger(logger, "workflow"),
		now:             time.Now,
		newID:           uuid.NewString,
		sleeper:         sleepWithContext,
	}
	if m.pollBudget <= 0 {
		m.pollBudget = 1
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handler adapts Run to the queue's drain callback. Process-level faults are
// passed to fatal; job-level failures are already recorded by Run.
func (m *Machine) Handler(fatal func(error)) func(context.Context, mention.WorkUnit) {
	return func(ctx context.Context, unit mention.WorkUnit) {
		if _, err := m.Run(ctx, unit); err != nil && fatal != nil {
			fatal(err)
		}
	}
}

type phaseStep struct {
	phase   Phase
	run     func(ctx context.Context, job *Job, logger *slog.Logger) error
	failure string
}

func (m *Machine) steps() []phaseStep {
	return []phaseStep{
		{phase: PhaseResolvingStream, run: m.resolveStream, failure: "could not find content"},
		{phase: PhasePreparingMedia, run: m.prepareMedia, failure: "processing error"},
		{phase: PhaseSubmittingJob, run: m.submitJob, failure: "processing error"},
		{phase: PhaseAwaitingCompletion, run: m.awaitCompletion, failure: "processing error"},
		{phase: PhaseFetchingResult, run: m.fetchResult, failure: "processing error"},
		{phase: PhasePostingReply, run: m.postReply},
	}
}

// Run processes unit to a terminal outcome. The returned error is non-nil
// only for process-level faults (closed browser, programming errors) that
// should stop the daemon; job failures are reported through the Job.
func (m *Machine) Run(ctx context.Context, unit mention.WorkUnit) (*Job, error) {
	if !m.running.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer m.running.Store(false)

	correlationID := m.newID()
	ctx = services.WithJobID(ctx, unit.ID)
	ctx = services.WithRequestID(ctx, correlationID)
	job := newJob(unit, mention.ParseRequest(unit.Text, m.defaultLanguage), correlationID, m.now())
	logger := logging.WithContext(ctx, m.logger)
	logger.Info("job started",
		logging.String(logging.FieldEventType, "job_start"),
		logging.String("origin", unit.Origin),
		logging.String("mode", string(job.Request.Mode)),
		logging.String("language", job.Request.Language.String()))

	fatal := m.execute(ctx, job)
	m.finish(ctx, job, logger)
	return job, fatal
}

func (m *Machine) execute(ctx context.Context, job *Job) error {
	for _, step := range m.steps() {
		if err := job.advance(step.phase); err != nil {
			job.fail("internal error", err)
			return err
		}
		phaseCtx := services.WithPhase(ctx, string(step.phase))
		logger := logging.WithContext(phaseCtx, m.logger)
		started := m.now()
		logger.Info("phase started", logging.String(logging.FieldEventType, "phase_start"))

		err := step.run(phaseCtx, job, logger)
		if err != nil && step.phase == PhasePostingReply {
			// The result already exists; a process fault while replying still
			// ends the job as undelivered and then stops the daemon.
			if advErr := job.advance(PhaseDone); advErr != nil {
				job.fail("internal error", advErr)
				return advErr
			}
			return err
		}
		if err != nil {
			job.fail(step.failure, err)
			if isProcessFault(err) {
				return err
			}
			return nil
		}
		logger.Info("phase completed",
			logging.String(logging.FieldEventType, "phase_complete"),
			logging.Duration("phase_duration", m.now().Sub(started)))
	}
	if err := job.advance(PhaseDone); err != nil {
		job.fail("internal error", err)
		return err
	}
	return nil
}

func isProcessFault(err error) bool {
	var transition *TransitionError
	return errors.Is(err, browser.ErrClosed) || errors.As(err, &transition)
}

func (m *Machine) prepareMedia(ctx context.Context, job *Job, logger *slog.Logger) error {
	ref, err := m.deps.Media.Prepare(ctx, job.ManifestURL, job.Unit.ID)
	if err != nil {
		return err
	}
	job.Media = ref
	logger.Info("media prepared",
		logging.String(logging.FieldEventType, "media_prepared"),
		logging.String("media_key", ref.Key),
		logging.Int64("duration_seconds", int64(ref.DurationSeconds)))
	return nil
}

func (m *Machine) submitJob(ctx context.Context, job *Job, logger *slog.Logger) error {
	id, err := m.deps.Backend.Submit(ctx, job.Media.URL, job.Unit.ID, dubbing.SubmitOptions{
		TargetLanguage: job.Request.Language.String(),
		Name:           "spacedub-" + job.Unit.ID,
	})
	if err != nil {
		return err
	}
	job.ExternalJobID = id
	logger.Info("backend job submitted",
		logging.String(logging.FieldEventType, "backend_job_submitted"),
		logging.String("external_job_id", id))
	return nil
}

// awaitCompletion polls the backend up to the configured budget.
func (m *Machine) awaitCompletion(ctx context.Context, job *Job, logger *slog.Logger) error {
	for attempt := 1; attempt <= m.pollBudget; attempt++ {
		status, err := m.deps.Backend.Poll(ctx, job.ExternalJobID)
		if err != nil {
			return err
		}
		switch status.Status {
		case dubbing.StatusSucceeded:
			logger.Info("backend job completed",
				logging.String(logging.FieldEventType, "backend_job_completed"),
				logging.Int("polls", attempt))
			return nil
		case dubbing.StatusFailed:
			reason := status.Error
			if reason == "" {
				reason = "backend reported failure"
			}
			return services.Wrap(services.ErrExternalService, string(PhaseAwaitingCompletion), "poll", reason, nil)
		}
		logger.Debug("backend job pending",
			logging.Int("poll", attempt),
			logging.String("backend_status", status.RawStatus))
		if attempt == m.pollBudget {
			break
		}
		if err := m.sleeper(ctx, m.pollInterval); err != nil {
			return err
		}
	}
	return services.WithHint(
		services.Wrap(services.ErrPollBudgetExceeded, string(PhaseAwaitingCompletion), "poll",
			"backend did not finish within poll budget", nil),
		"raise dubbing.poll_budget for long recordings")
}

func (m *Machine) fetchResult(ctx context.Context, job *Job, logger *slog.Logger) error {
	lang := job.Request.Language.String()
	link, err := m.deps.Backend.ResultLink(ctx, job.ExternalJobID, lang)
	if err != nil {
		return err
	}
	job.ResultLink = link

	if job.Request.Mode == mention.ModeSummary {
		if m.deps.Summarizer == nil {
			return services.Wrap(services.ErrConfiguration, string(PhaseFetchingResult), "summarize", "no summarizer configured", nil)
		}
		transcript, err := m.deps.Backend.Transcript(ctx, job.ExternalJobID, lang)
		if err != nil {
			return err
		}
		summary, err := m.deps.Summarizer.Summarize(ctx, transcript, job.Request.LanguageName())
		if err != nil {
			return err
		}
		job.Summary = summary.Text()
	}
	logger.Info("result fetched",
		logging.String(logging.FieldEventType, "result_fetched"),
		logging.String("result_link", link),
		logging.Bool("summarized", job.Summary != ""))
	return nil
}

// postReply never fails the job; an undelivered reply only changes the outcome.
func (m *Machine) postReply(ctx context.Context, job *Job, logger *slog.Logger) error {
	err := m.deps.Replies.Reply(ctx, job.Unit.Origin, successText(job, m.replyMax))
	if err == nil {
		job.Outcome = OutcomeSucceeded
		return nil
	}
	job.Outcome = OutcomeReplyUndelivered
	job.Reason = services.Details(err).Message
	if job.Reason == "" {
		job.Reason = err.Error()
	}
	job.Err = err
	if isProcessFault(err) {
		return err
	}
	logging.WarnWithContext(logger, "reply not delivered", "reply_undelivered",
		append(logging.ErrorAttrs(err),
			logging.String("result_link", job.ResultLink),
			logging.String(logging.FieldErrorHint, "check the browser session and reply locators"),
			logging.String(logging.FieldImpact, "result exists but the requester was not told"))...)
	return nil
}

func (m *Machine) finish(ctx context.Context, job *Job, logger *slog.Logger) {
	job.FinishedAt = m.now()
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "job_finished"),
		logging.String("outcome", string(job.Outcome)),
		logging.Duration("job_duration", job.Elapsed()),
	}
	if job.Outcome == OutcomeFailed {
		attrs = append(attrs,
			logging.String("failed_phase", string(job.FailedPhase)),
			logging.String("reason", job.Reason),
			logging.Alert("job_failure"))
		attrs = append(attrs, logging.ErrorAttrs(job.Err)...)
		logging.ErrorWithContext(logger, "job failed", "job_failed", attrs...)
	} else {
		attrs = append(attrs, logging.String("result_link", job.ResultLink))
		logger.Info("job finished", logging.Args(attrs...)...)
	}

	// Bookkeeping must survive shutdown of the drain context.
	bookCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if job.Outcome == OutcomeFailed && !isProcessFault(job.Err) && m.deps.Replies != nil && ctx.Err() == nil {
		if err := m.deps.Replies.Reply(ctx, job.Unit.Origin, failureText(job)); err != nil {
			logger.Debug("failure notice not delivered", logging.Error(err))
		}
	}

	if m.deps.Ledger != nil {
		if err := m.deps.Ledger.Record(bookCtx, job.Record()); err != nil {
			logging.WarnWithContext(logger, "job history write failed", "job_history_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the state directory"),
				logging.String(logging.FieldImpact, "job is missing from spacedub jobs list"))
		}
	}
	m.deps.Metrics.ObserveJob(string(job.Outcome), job.Elapsed())
	m.notify(bookCtx, job, logger)
}

func (m *Machine) notify(ctx context.Context, job *Job, logger *slog.Logger) {
	payload := notifications.Payload{
		"id":       job.Unit.ID,
		"origin":   job.Unit.Origin,
		"mode":     string(job.Request.Mode),
		"language": job.Request.LanguageName(),
		"link":     job.ResultLink,
		"reason":   job.Reason,
		"duration": job.Elapsed(),
	}
	event := notifications.EventJobCompleted
	switch job.Outcome {
	case OutcomeReplyUndelivered:
		event = notifications.EventReplyUndelivered
	case OutcomeFailed:
		event = notifications.EventJobFailed
		payload["phase"] = string(job.FailedPhase)
	}
	if err := m.deps.Notifier.Publish(ctx, event, payload); err != nil {
		logger.Debug("notification failed", logging.Error(err))
	}
}

func kindOf(err error) string {
	return services.Kind(err)
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
