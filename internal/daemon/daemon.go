package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"spacedub/internal/browser"
	"spacedub/internal/config"
	"spacedub/internal/logging"
	"spacedub/internal/mention"
	"spacedub/internal/metrics"
	"spacedub/internal/notifications"
	"spacedub/internal/queue"
)

// Poller produces candidate work units.
type Poller interface {
	Poll(ctx context.Context) ([]mention.WorkUnit, error)
}

// Processor supplies the drain callback. Faults that should stop the daemon
// are reported through fatal.
type Processor interface {
	Handler(fatal func(error)) func(context.Context, mention.WorkUnit)
}

// Deps bundles the daemon's collaborators. Notifier and Metrics are optional.
type Deps struct {
	Source    Poller
	Seen      queue.SeenSet
	Processor Processor
	Notifier  notifications.Service
	Metrics   *metrics.Metrics
}

// Daemon polls for mentions, admits new ones, and keeps a single drain loop
// running over the queue. It enforces single-instance execution with a file
// lock.
type Daemon struct {
	cfg    *config.Config
	deps   Deps
	logger *slog.Logger

	queue   *queue.Queue
	intake  *queue.Intake
	process func(context.Context, mention.WorkUnit)

	pollInterval  time.Duration
	retryInterval time.Duration
	shutdownGrace time.Duration

	lockPath string
	pidPath  string
	lock     *flock.Flock

	running atomic.Bool
	faults  chan error
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithPollInterval overrides the mention poll cadence.
func WithPollInterval(interval time.Duration) Option {
	return func(d *Daemon) {
		if interval > 0 {
			d.pollInterval = interval
		}
	}
}

// WithRetryInterval overrides the wait after a failed poll.
func WithRetryInterval(interval time.Duration) Option {
	return func(d *Daemon) {
		if interval > 0 {
			d.retryInterval = interval
		}
	}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Deps, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || deps.Source == nil || deps.Seen == nil || deps.Processor == nil {
		return nil, errors.New("daemon requires config, mention source, dedup store, and processor")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewService(&config.Config{})
	}
	q := queue.New()
	d := &Daemon{
		cfg:           cfg,
		deps:          deps,
		logger:        logging.NewComponentLogger(logger, "daemon"),
		queue:         q,
		intake:        queue.NewIntake(deps.Seen, q, logger),
		pollInterval:  cfg.PollInterval(),
		retryInterval: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		shutdownGrace: time.Duration(cfg.Workflow.ShutdownGrace) * time.Second,
		lockPath:      cfg.LockPath(),
		pidPath:       cfg.PIDPath(),
		lock:          flock.New(cfg.LockPath()),
		faults:        make(chan error, 1),
	}
	d.process = deps.Processor.Handler(d.fault)
	if d.pollInterval <= 0 {
		d.pollInterval = time.Minute
	}
	if d.retryInterval <= 0 {
		d.retryInterval = d.pollInterval
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Queue exposes the work queue for status reporting.
func (d *Daemon) Queue() *queue.Queue {
	return d.queue
}

// Run holds the instance lock and polls until ctx is done or a process-level
// fault occurs. On the way out it stops admitting work, lets the in-flight job
// finish within the shutdown grace, and abandons the rest of the queue.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("daemon already running")
	}
	defer d.running.Store(false)

	if err := d.acquire(); err != nil {
		return err
	}
	defer d.release()

	d.logger.Info("spacedub daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.Duration("poll_interval", d.pollInterval))
	d.publish(ctx, notifications.EventDaemonStarted, notifications.Payload{"handle": d.cfg.Mentions.Handle})

	runCtx, cancel := context.WithCancel(ctx)
	err := d.loop(runCtx)
	cancel()
	d.awaitDrain()

	payload := notifications.Payload{}
	if err != nil {
		payload["reason"] = err.Error()
		logging.ErrorWithContext(d.logger, "daemon stopping on fault", "daemon_fault",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the browser session and state directory, then restart"),
			logging.String(logging.FieldImpact, "mentions are not processed until the daemon restarts"),
			logging.Alert("daemon_fault"))
	}
	d.publish(ctx, notifications.EventDaemonStopped, payload)
	d.logger.Info("spacedub daemon stopped",
		logging.String(logging.FieldEventType, "daemon_stopped"),
		logging.Int("abandoned", d.queue.Len()))
	return err
}

func (d *Daemon) loop(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-d.faults:
			return err
		case <-timer.C:
			next, err := d.pollOnce(ctx)
			if err != nil {
				return err
			}
			timer.Reset(next)
		}
	}
}

// pollOnce runs one poll and admission pass and returns the wait before the
// next one. A returned error is process-level.
func (d *Daemon) pollOnce(ctx context.Context) (time.Duration, error) {
	units, err := d.deps.Source.Poll(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return d.pollInterval, nil
		}
		if errors.Is(err, browser.ErrClosed) {
			return 0, err
		}
		d.deps.Metrics.PollFailed()
		logging.WarnWithContext(d.logger, "mention poll failed", "mention_poll_failed",
			logging.Error(err),
			logging.Duration("retry_in", d.retryInterval),
			logging.String(logging.FieldErrorHint, "check the session cookies and mentions URL"),
			logging.String(logging.FieldImpact, "new mentions are picked up on the next successful poll"))
		return d.retryInterval, nil
	}

	admitted, err := d.intake.Admit(units)
	d.deps.Metrics.MentionsAdmitted(len(admitted))
	d.deps.Metrics.SetQueueDepth(d.queue.Len())
	if err != nil {
		return 0, fmt.Errorf("persist dedup record: %w", err)
	}
	d.logger.Debug("mention poll complete",
		logging.String(logging.FieldEventType, "mention_poll_complete"),
		logging.Int("candidates", len(units)),
		logging.Int("admitted", len(admitted)),
		logging.Int("queue_depth", d.queue.Len()))

	if d.queue.Len() > 0 && d.queue.StartDrain(ctx, d.handle) {
		d.logger.Info("drain started",
			logging.String(logging.FieldEventType, "drain_started"),
			logging.Int("queue_depth", d.queue.Len()))
	}
	return d.pollInterval, nil
}

// handle runs one unit to completion. Cancellation of the drain only stops
// further units from being popped; the current job keeps its own deadlines.
func (d *Daemon) handle(ctx context.Context, unit mention.WorkUnit) {
	d.deps.Metrics.SetQueueDepth(d.queue.Len())
	d.process(context.WithoutCancel(ctx), unit)
	d.deps.Metrics.SetQueueDepth(d.queue.Len())
}

func (d *Daemon) fault(err error) {
	if err == nil {
		return
	}
	select {
	case d.faults <- err:
	default:
	}
}

func (d *Daemon) awaitDrain() {
	graceCtx, cancel := context.WithTimeout(context.Background(), d.shutdownGrace)
	defer cancel()
	if err := d.queue.Wait(graceCtx); err != nil {
		logging.WarnWithContext(d.logger, "in-flight job did not finish within shutdown grace", "shutdown_grace_exceeded",
			logging.Duration("shutdown_grace", d.shutdownGrace),
			logging.String(logging.FieldErrorHint, "raise workflow.shutdown_grace"),
			logging.String(logging.FieldImpact, "the job is abandoned and its mention will not be retried"))
	}
}

func (d *Daemon) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := d.deps.Notifier.Publish(notifyCtx, event, payload); err != nil {
		d.logger.Debug("notification failed", logging.Error(err))
	}
}

func (d *Daemon) acquire() error {
	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		if pid, err := ReadPID(d.pidPath); err == nil && ProcessAlive(pid) {
			return fmt.Errorf("another spacedub daemon is already running (pid %d)", pid)
		}
		return errors.New("another spacedub daemon instance is already running")
	}
	if err := WritePID(d.pidPath, os.Getpid()); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

func (d *Daemon) release() {
	if err := os.Remove(d.pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		d.logger.Warn("failed to remove pid file", logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}
