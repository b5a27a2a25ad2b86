package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"spacedub/internal/browser"
	"spacedub/internal/capture"
	"spacedub/internal/config"
	"spacedub/internal/daemon"
	"spacedub/internal/dedup"
	"spacedub/internal/deps"
	"spacedub/internal/jobs"
	"spacedub/internal/logging"
	"spacedub/internal/media"
	"spacedub/internal/mention"
	"spacedub/internal/metrics"
	"spacedub/internal/notifications"
	"spacedub/internal/reply"
	"spacedub/internal/services/dubbing"
	"spacedub/internal/services/llm"
	"spacedub/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the spacedub daemon runtime loop and blocks until SIGINT,
// SIGTERM, or a process-level fault.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.ValidateServices(); err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := newLogger(cfg, opts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logDependencySnapshot(logger, cfg)

	seen, err := dedup.Open(cfg.Paths.DedupFile, logger)
	if err != nil {
		logger.Error("open dedup store", logging.Error(err))
		return err
	}
	ledger, err := jobs.Open(cfg.JobsDBPath())
	if err != nil {
		logger.Error("open job history", logging.Error(err))
		return err
	}
	defer ledger.Close()

	objects, err := media.NewS3Store(cfg)
	if err != nil {
		return err
	}

	session, err := browser.NewSession(signalCtx, cfg, logger)
	if err != nil {
		logging.ErrorWithContext(logger, "browser session failed to start", "browser_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check browser.exec_path and the cookies file"),
			logging.String(logging.FieldImpact, "daemon cannot poll mentions"))
		return err
	}
	defer session.Close()

	collector := metrics.New()
	go func() {
		if err := collector.Serve(signalCtx, cfg.Metrics.Bind, logger); err != nil {
			logging.WarnWithContext(logger, "metrics endpoint failed", "metrics_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check metrics.bind"),
				logging.String(logging.FieldImpact, "metrics are not exported"))
		}
	}()

	notifier := notifications.NewService(cfg)
	machine := workflow.New(cfg, workflow.Deps{
		Pages:      session,
		Capture:    capture.NewEngine(cfg.CaptureDeadline(), logger),
		Media:      media.NewPipeline(cfg, objects, logger),
		Backend:    dubbing.NewClient(dubbing.FromConfig(cfg), dubbing.WithPublisher(objects)),
		Summarizer: newSummarizer(cfg, logger),
		Replies:    reply.NewGateway(cfg, session, logger),
		Ledger:     ledger,
		Notifier:   notifier,
		Metrics:    collector,
	}, logger)

	d, err := daemon.New(cfg, daemon.Deps{
		Source:    mention.NewSource(cfg, session, logger),
		Seen:      seen,
		Processor: machine,
		Notifier:  notifier,
		Metrics:   collector,
	}, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}

	err = d.Run(signalCtx)
	logger.Info("spacedub daemon shutting down")
	return err
}

func newLogger(cfg *config.Config, opts Options) (*slog.Logger, error) {
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}
	if !opts.Development {
		return logging.NewFromConfig(cfg)
	}
	return logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout"},
		Development: true,
	})
}

// newSummarizer returns nil when no LLM key is configured; summary requests
// then fail with a configuration error instead of calling out.
func newSummarizer(cfg *config.Config, logger *slog.Logger) workflow.Summarizer {
	if strings.TrimSpace(cfg.LLM.APIKey) == "" {
		logger.Info("summaries disabled",
			logging.String(logging.FieldEventType, "summaries_disabled"),
			logging.String("reason", "llm.api_key not set"))
		return nil
	}
	return llm.NewClient(llm.FromConfig(cfg))
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("llm_key_present", strings.TrimSpace(cfg.LLM.APIKey) != ""),
		logging.Bool("notifications_configured", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.Bool("replies_enabled", cfg.Reply.Enabled),
		logging.String("storage_endpoint", cfg.Storage.Endpoint),
	}
	missing := 0
	for _, status := range deps.Check(cfg) {
		key := strings.ToLower(status.Name)
		attrs = append(attrs,
			logging.Bool(key+"_available", status.Available),
			logging.String(key+"_binary", status.Command))
		if !status.Available && !status.Optional {
			missing++
		}
	}
	if _, err := os.Stat(cfg.Paths.CookiesFile); err != nil {
		attrs = append(attrs, logging.Bool("cookies_present", false))
	} else {
		attrs = append(attrs, logging.Bool("cookies_present", true))
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
	if missing > 0 {
		logging.WarnWithContext(logger, "required binaries missing", "dependency_missing",
			logging.Int("missing", missing),
			logging.String(logging.FieldErrorHint, "install ffmpeg and Chromium or set their paths in the config"),
			logging.String(logging.FieldImpact, "jobs fail at capture or media preparation"))
	}
}
