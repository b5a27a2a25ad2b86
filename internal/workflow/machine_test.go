package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"spacedub/internal/browser"
	"spacedub/internal/capture"
	"spacedub/internal/config"
	"spacedub/internal/jobs"
	"spacedub/internal/logging"
	"spacedub/internal/media"
	"spacedub/internal/mention"
	"spacedub/internal/notifications"
	"spacedub/internal/queue"
	"spacedub/internal/services"
	"spacedub/internal/services/dubbing"
	"spacedub/internal/services/llm"
	"spacedub/internal/testsupport"
)

const manifest = "https://prod-fastly.video.pscp.tv/Transcoding/v1/hls/abc/playlist_123.m3u8"

// fakeCapturer resolves or fails per surface URL.
type fakeCapturer struct {
	mu       sync.Mutex
	results  map[string]string
	errs     map[string]error
	surfaces []string
	block    chan struct{}
}

func (c *fakeCapturer) Capture(ctx context.Context, page browser.Page, _ []browser.Locator) (capture.Result, error) {
	if c.block != nil {
		<-c.block
	}
	current := page.(*testsupport.FakePage).Current
	c.mu.Lock()
	defer c.mu.Unlock()
	c.surfaces = append(c.surfaces, current)
	if err := c.errs[current]; err != nil {
		return capture.Result{}, err
	}
	if url, ok := c.results[current]; ok {
		return capture.Result{ManifestURL: url, Source: capture.SourceRequest, Elapsed: time.Second}, nil
	}
	return capture.Result{}, services.Wrap(services.ErrElementNotFound, "", "capture", "no control", nil)
}

type fakeMedia struct {
	calls int
	err   error
}

func (m *fakeMedia) Prepare(_ context.Context, manifestURL, jobID string) (media.Ref, error) {
	m.calls++
	if m.err != nil {
		return media.Ref{}, m.err
	}
	return media.Ref{URL: "https://media.example/" + jobID + ".mp3", Key: "spaces/" + jobID}, nil
}

type fakeBackend struct {
	mu          sync.Mutex
	statuses    []dubbing.Status
	polls       int
	submitted   []string
	submitOpts  []dubbing.SubmitOptions
	transcripts int
	pollErr     error
}

func (b *fakeBackend) Submit(_ context.Context, mediaRef, correlationID string, opts dubbing.SubmitOptions) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submitted = append(b.submitted, correlationID)
	b.submitOpts = append(b.submitOpts, opts)
	return "dub-" + correlationID, nil
}

func (b *fakeBackend) Poll(_ context.Context, jobID string) (dubbing.Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.polls++
	if b.pollErr != nil {
		return dubbing.Job{}, b.pollErr
	}
	status := dubbing.StatusSucceeded
	if len(b.statuses) > 0 {
		status = b.statuses[0]
		if len(b.statuses) > 1 {
			b.statuses = b.statuses[1:]
		}
	}
	job := dubbing.Job{ID: jobID, Status: status}
	if status == dubbing.StatusFailed {
		job.Error = "voice model unavailable"
	}
	return job, nil
}

func (b *fakeBackend) ResultLink(_ context.Context, jobID, language string) (string, error) {
	return "https://cdn.example/" + jobID + "/" + language + ".mp3", nil
}

func (b *fakeBackend) Transcript(_ context.Context, jobID, language string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transcripts++
	return "we talked about go", nil
}

type fakeSummarizer struct{ language string }

func (s *fakeSummarizer) Summarize(_ context.Context, transcript, language string) (llm.Summary, error) {
	s.language = language
	return llm.Summary{Headline: "Go chat", Points: []string{"generics"}}, nil
}

type fakeReplier struct {
	mu      sync.Mutex
	err     error
	origins []string
	texts   []string
}

func (r *fakeReplier) Reply(_ context.Context, origin, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.origins = append(r.origins, origin)
	r.texts = append(r.texts, text)
	return r.err
}

type fakeLedger struct {
	mu      sync.Mutex
	records []jobs.Record
}

func (l *fakeLedger) Record(_ context.Context, rec jobs.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (n *fakeNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

type harness struct {
	cfg      *config.Config
	page     *testsupport.FakePage
	runner   *testsupport.PageRunner
	capturer *fakeCapturer
	media    *fakeMedia
	backend  *fakeBackend
	summary  *fakeSummarizer
	replies  *fakeReplier
	ledger   *fakeLedger
	notifier *fakeNotifier
	sleeps   []time.Duration
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Dubbing.PollBudget = 5
	cfg.Dubbing.PollInterval = 15
	cfg.Capture.LookbackSteps = 3
	page := testsupport.NewFakePage()
	return &harness{
		cfg:      cfg,
		page:     page,
		runner:   testsupport.NewPageRunner(page),
		capturer: &fakeCapturer{results: map[string]string{}, errs: map[string]error{}},
		media:    &fakeMedia{},
		backend:  &fakeBackend{},
		summary:  &fakeSummarizer{},
		replies:  &fakeReplier{},
		ledger:   &fakeLedger{},
		notifier: &fakeNotifier{},
	}
}

func (h *harness) machine() *Machine {
	return New(h.cfg, Deps{
		Pages:      h.runner,
		Capture:    h.capturer,
		Media:      h.media,
		Backend:    h.backend,
		Summarizer: h.summary,
		Replies:    h.replies,
		Ledger:     h.ledger,
		Notifier:   h.notifier,
	}, logging.NewNop(), WithSleeper(func(_ context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return nil
	}))
}

func unit(id, text string) mention.WorkUnit {
	return mention.WorkUnit{
		ID:           id,
		Origin:       "https://x.com/alice/status/" + id,
		Author:       "alice",
		Text:         text,
		DiscoveredAt: time.Now(),
	}
}

func TestRunDubHappyPath(t *testing.T) {
	h := newHarness(t)
	u := unit("30", "@spacedubbot dub to spanish")
	h.capturer.results[u.Origin] = manifest

	job, err := h.machine().Run(context.Background(), u)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if job.Phase != PhaseDone || job.Outcome != OutcomeSucceeded {
		t.Fatalf("expected done/succeeded, got %s/%s (%s)", job.Phase, job.Outcome, job.Reason)
	}
	if job.ManifestURL != manifest {
		t.Fatalf("unexpected manifest %q", job.ManifestURL)
	}
	if len(h.backend.submitted) != 1 || h.backend.submitted[0] != "30" {
		t.Fatalf("expected submission correlated by unit id, got %v", h.backend.submitted)
	}
	if h.backend.submitOpts[0].TargetLanguage != "es" {
		t.Fatalf("expected target language es, got %q", h.backend.submitOpts[0].TargetLanguage)
	}
	if len(h.replies.texts) != 1 || !strings.Contains(h.replies.texts[0], "Spanish") || !strings.HasSuffix(h.replies.texts[0], "https://cdn.example/dub-30/es.mp3") {
		t.Fatalf("unexpected reply %v", h.replies.texts)
	}
	if h.replies.origins[0] != u.Origin {
		t.Fatalf("reply went to %q", h.replies.origins[0])
	}
	if len(h.ledger.records) != 1 {
		t.Fatalf("expected one ledger record, got %d", len(h.ledger.records))
	}
	rec := h.ledger.records[0]
	if rec.Outcome != "succeeded" || rec.Phase != "done" || rec.ResultLink == "" || rec.CorrelationID == "" {
		t.Fatalf("unexpected ledger record %+v", rec)
	}
	if len(h.notifier.events) != 1 || h.notifier.events[0] != notifications.EventJobCompleted {
		t.Fatalf("unexpected notifications %v", h.notifier.events)
	}
}

func TestReplyFailureIsolation(t *testing.T) {
	h := newHarness(t)
	u := unit("31", "@spacedubbot dub")
	h.capturer.results[u.Origin] = manifest
	h.replies.err = services.Wrap(services.ErrReplyDelivery, "posting_reply", "reply", "composer missing", nil)

	job, err := h.machine().Run(context.Background(), u)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if job.Outcome != OutcomeReplyUndelivered || !job.Outcome.Succeeded() {
		t.Fatalf("expected succeeded_reply_undelivered, got %s", job.Outcome)
	}
	if job.Phase != PhaseDone {
		t.Fatalf("expected job to reach done, got %s", job.Phase)
	}
	if job.ResultLink == "" {
		t.Fatal("expected result link to survive reply failure")
	}
	if h.ledger.records[0].Outcome != "succeeded_reply_undelivered" || h.ledger.records[0].ErrorKind != "reply_delivery" {
		t.Fatalf("unexpected ledger record %+v", h.ledger.records[0])
	}
	if h.notifier.events[0] != notifications.EventReplyUndelivered {
		t.Fatalf("unexpected notification %v", h.notifier.events)
	}
}

func TestReplyFaultKeepsResultButStopsDaemon(t *testing.T) {
	h := newHarness(t)
	u := unit("33", "@spacedubbot dub")
	h.capturer.results[u.Origin] = manifest
	h.replies.err = services.Wrap(services.ErrReplyDelivery, "posting_reply", "reply", "browser went away",
		errors.Join(browser.ErrClosed, errors.New("websocket closed")))

	job, err := h.machine().Run(context.Background(), u)
	if !errors.Is(err, browser.ErrClosed) {
		t.Fatalf("expected closed browser to escalate, got %v", err)
	}
	if job.Outcome != OutcomeReplyUndelivered || job.Phase != PhaseDone {
		t.Fatalf("expected undelivered job at done, got %s/%s", job.Outcome, job.Phase)
	}
	if job.FailedPhase != "" || job.Reason != "browser went away" {
		t.Fatalf("unexpected failure bookkeeping phase=%q reason=%q", job.FailedPhase, job.Reason)
	}
	if job.ResultLink == "" {
		t.Fatal("expected result link to survive reply fault")
	}
	if got := h.ledger.records[0].Outcome; got != "succeeded_reply_undelivered" {
		t.Fatalf("expected ledger outcome succeeded_reply_undelivered, got %s", got)
	}
	if h.notifier.events[0] != notifications.EventReplyUndelivered {
		t.Fatalf("unexpected notification %v", h.notifier.events)
	}
	if len(h.replies.texts) != 1 {
		t.Fatalf("expected no failure notice after the reply fault, got %d replies", len(h.replies.texts))
	}
}

func TestPollBudgetExceeded(t *testing.T) {
	h := newHarness(t)
	h.cfg.Dubbing.PollBudget = 3
	u := unit("32", "dub")
	h.capturer.results[u.Origin] = manifest
	h.backend.statuses = []dubbing.Status{dubbing.StatusPending}

	job, err := h.machine().Run(context.Background(), u)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if job.Outcome != OutcomeFailed || job.FailedPhase != PhaseAwaitingCompletion {
		t.Fatalf("expected failure in awaiting_completion, got %s/%s", job.Outcome, job.FailedPhase)
	}
	if !errors.Is(job.Err, services.ErrPollBudgetExceeded) {
		t.Fatalf("expected poll budget error, got %v", job.Err)
	}
	if h.backend.polls != 3 {
		t.Fatalf("expected exactly 3 polls, got %d", h.backend.polls)
	}
	if len(h.sleeps) != 2 || h.sleeps[0] != 15*time.Second {
		t.Fatalf("expected 2 waits of 15s between polls, got %v", h.sleeps)
	}
	if h.ledger.records[0].ErrorKind != "poll_budget_exceeded" {
		t.Fatalf("unexpected error kind %q", h.ledger.records[0].ErrorKind)
	}
}

func TestPollCompletesAfterPending(t *testing.T) {
	h := newHarness(t)
	u := unit("33", "dub")
	h.capturer.results[u.Origin] = manifest
	h.backend.statuses = []dubbing.Status{dubbing.StatusPending, dubbing.StatusPending, dubbing.StatusSucceeded}

	job, _ := h.machine().Run(context.Background(), u)
	if job.Outcome != OutcomeSucceeded || h.backend.polls != 3 {
		t.Fatalf("expected success after 3 polls, got %s after %d", job.Outcome, h.backend.polls)
	}
}

func TestBackendFailureIsExternalServiceError(t *testing.T) {
	h := newHarness(t)
	u := unit("34", "dub")
	h.capturer.results[u.Origin] = manifest
	h.backend.statuses = []dubbing.Status{dubbing.StatusFailed}

	job, _ := h.machine().Run(context.Background(), u)
	if job.FailedPhase != PhaseAwaitingCompletion || !errors.Is(job.Err, services.ErrExternalService) {
		t.Fatalf("expected external service failure, got %s %v", job.FailedPhase, job.Err)
	}
	if !strings.Contains(job.Err.Error(), "voice model unavailable") {
		t.Fatalf("expected backend reason in error, got %v", job.Err)
	}
}

func TestResolveWalksThreadAncestors(t *testing.T) {
	h := newHarness(t)
	u := unit("30", "@spacedubbot dub")
	h.page.Pages[u.Origin] = conversationHTML
	h.capturer.results["https://x.com/host/status/10"] = manifest

	job, err := h.machine().Run(context.Background(), u)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if job.Outcome != OutcomeSucceeded {
		t.Fatalf("expected success, got %s (%v)", job.Outcome, job.Err)
	}
	want := []string{u.Origin, "https://x.com/bob/status/20", "https://x.com/host/status/10"}
	if strings.Join(h.capturer.surfaces, ",") != strings.Join(want, ",") {
		t.Fatalf("surfaces tried = %v, want %v", h.capturer.surfaces, want)
	}
}

func TestResolvePrefersLinkedSpace(t *testing.T) {
	h := newHarness(t)
	space := "https://x.com/i/spaces/1YqKDqWqdPLJV"
	u := unit("35", "@spacedubbot dub this "+space)
	h.capturer.results[space] = manifest

	job, _ := h.machine().Run(context.Background(), u)
	if job.Outcome != OutcomeSucceeded {
		t.Fatalf("expected success, got %s (%v)", job.Outcome, job.Err)
	}
	if len(h.capturer.surfaces) != 1 || h.capturer.surfaces[0] != space {
		t.Fatalf("expected only the linked space to be tried, got %v", h.capturer.surfaces)
	}
}

func TestResolveExhaustionIsTerminal(t *testing.T) {
	h := newHarness(t)
	u := unit("30", "dub")
	h.page.Pages[u.Origin] = conversationHTML

	job, err := h.machine().Run(context.Background(), u)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if job.Outcome != OutcomeFailed || job.FailedPhase != PhaseResolvingStream || job.Reason != "could not find content" {
		t.Fatalf("unexpected terminal state %s/%s/%q", job.Outcome, job.FailedPhase, job.Reason)
	}
	if !errors.Is(job.Err, services.ErrElementNotFound) {
		t.Fatalf("expected element-not-found, got %v", job.Err)
	}
	if h.media.calls != 0 || len(h.backend.submitted) != 0 {
		t.Fatal("no later phase may run after a resolve failure")
	}
	if len(h.capturer.surfaces) != 3 {
		t.Fatalf("expected origin plus two ancestors, got %v", h.capturer.surfaces)
	}
	if len(h.replies.texts) != 1 || !strings.Contains(h.replies.texts[0], "could not find") {
		t.Fatalf("expected a could-not-find notice, got %v", h.replies.texts)
	}
	if h.notifier.events[0] != notifications.EventJobFailed {
		t.Fatalf("unexpected notification %v", h.notifier.events)
	}
}

func TestCaptureTimeoutDoesNotWalkThread(t *testing.T) {
	h := newHarness(t)
	u := unit("30", "dub")
	h.page.Pages[u.Origin] = conversationHTML
	h.capturer.errs[u.Origin] = services.Wrap(services.ErrCaptureTimeout, "", "capture", "no manifest", nil)

	job, _ := h.machine().Run(context.Background(), u)
	if job.FailedPhase != PhaseResolvingStream || !errors.Is(job.Err, services.ErrCaptureTimeout) {
		t.Fatalf("expected capture timeout failure, got %s %v", job.FailedPhase, job.Err)
	}
	if len(h.capturer.surfaces) != 1 {
		t.Fatalf("expected only the origin to be tried, got %v", h.capturer.surfaces)
	}
}

func TestPrepareFailureIsProcessingError(t *testing.T) {
	h := newHarness(t)
	u := unit("36", "dub")
	h.capturer.results[u.Origin] = manifest
	h.media.err = services.Wrap(services.ErrExternalService, "preparing_media", "upload", "gave up after 3 attempts", nil)

	job, _ := h.machine().Run(context.Background(), u)
	if job.FailedPhase != PhasePreparingMedia || job.Reason != "processing error" {
		t.Fatalf("unexpected failure %s/%q", job.FailedPhase, job.Reason)
	}
	if len(h.backend.submitted) != 0 {
		t.Fatal("submit must not run after a media failure")
	}
}

func TestSummaryMode(t *testing.T) {
	h := newHarness(t)
	u := unit("37", "@spacedubbot tldr please")
	h.capturer.results[u.Origin] = manifest

	job, _ := h.machine().Run(context.Background(), u)
	if job.Outcome != OutcomeSucceeded {
		t.Fatalf("expected success, got %s (%v)", job.Outcome, job.Err)
	}
	if h.backend.transcripts != 1 || h.summary.language != "English" {
		t.Fatalf("expected one English transcript summary, got %d %q", h.backend.transcripts, h.summary.language)
	}
	if !strings.HasPrefix(h.replies.texts[0], "Go chat\n- generics") {
		t.Fatalf("unexpected summary reply %q", h.replies.texts[0])
	}
}

func TestBrowserClosedIsProcessFault(t *testing.T) {
	h := newHarness(t)
	h.runner.Err = browser.ErrClosed
	u := unit("38", "dub")

	var fatal error
	h.machine().Handler(func(err error) { fatal = err })(context.Background(), u)
	if !errors.Is(fatal, browser.ErrClosed) {
		t.Fatalf("expected closed browser to be escalated, got %v", fatal)
	}
	if len(h.replies.texts) != 0 {
		t.Fatalf("no failure notice may be posted through a dead browser, got %v", h.replies.texts)
	}
	if len(h.ledger.records) != 1 || h.ledger.records[0].Outcome != "failed" {
		t.Fatalf("expected failed ledger record, got %+v", h.ledger.records)
	}
}

func TestRunIsNotReentrant(t *testing.T) {
	h := newHarness(t)
	h.capturer.block = make(chan struct{})
	first := unit("40", "dub")
	h.capturer.results[first.Origin] = manifest
	m := h.machine()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = m.Run(context.Background(), first)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for !m.running.Load() {
		if time.Now().After(deadline) {
			t.Fatal("first job never started")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := m.Run(context.Background(), unit("41", "dub")); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy for concurrent run, got %v", err)
	}
	close(h.capturer.block)
	<-done
}

func TestJobPhasesAreStrictlyOrdered(t *testing.T) {
	job := newJob(unit("1", ""), mention.Request{}, "c", time.Now())
	if err := job.advance(PhasePreparingMedia); err == nil {
		t.Fatal("skipping resolving_stream must be rejected")
	}
	if err := job.advance(PhaseResolvingStream); err != nil {
		t.Fatalf("advance to resolving_stream: %v", err)
	}
	if err := job.advance(PhaseResolvingStream); err == nil {
		t.Fatal("re-entering a phase must be rejected")
	}
	job.fail("could not find content", nil)
	if err := job.advance(PhasePreparingMedia); err == nil {
		t.Fatal("a failed job must not advance")
	}
	if job.FailedPhase != PhaseResolvingStream {
		t.Fatalf("failed phase = %s", job.FailedPhase)
	}
}

func TestQueuedUnitsRunInOrder(t *testing.T) {
	h := newHarness(t)
	a := unit("50", "dub")
	b := unit("51", "dub")
	h.capturer.results[a.Origin] = manifest
	h.capturer.results[b.Origin] = manifest
	m := h.machine()

	q := queue.New()
	q.Push(a)
	q.Push(b)
	if !q.StartDrain(context.Background(), m.Handler(func(err error) { t.Errorf("unexpected fault: %v", err) })) {
		t.Fatal("drain did not start")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Wait(ctx); err != nil {
		t.Fatalf("drain did not finish: %v", err)
	}

	if len(h.ledger.records) != 2 {
		t.Fatalf("expected two records, got %d", len(h.ledger.records))
	}
	first, second := h.ledger.records[0], h.ledger.records[1]
	if first.ID != "50" || second.ID != "51" {
		t.Fatalf("expected A before B, got %s then %s", first.ID, second.ID)
	}
	if second.StartedAt.Before(first.FinishedAt) {
		t.Fatalf("B started at %v before A finished at %v", second.StartedAt, first.FinishedAt)
	}
}

const conversationHTML = `<html><body>
<article data-testid="tweet"><a href="/host/status/10"><time>1h</time></a><div data-testid="tweetText">Live now</div></article>
<article data-testid="tweet"><a href="/bob/status/20"><time>50m</time></a><div data-testid="tweetText">great space</div></article>
<article data-testid="tweet"><a href="/alice/status/30"><time>40m</time></a><div data-testid="tweetText">@spacedubbot dub</div></article>
</body></html>`
