package mention

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"spacedub/internal/browser"
	"spacedub/internal/config"
	"spacedub/internal/logging"
	"spacedub/internal/services"
)

// PageRunner grants exclusive use of a browser page.
type PageRunner interface {
	Use(ctx context.Context, fn func(browser.Page) error) error
}

// Source polls the mentions surface for work units.
type Source struct {
	pages  PageRunner
	url    string
	handle string
	settle time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewSource builds a Source from the mentions section of cfg.
func NewSource(cfg *config.Config, pages PageRunner, logger *slog.Logger) *Source {
	return &Source{
		pages:  pages,
		url:    cfg.Mentions.URL,
		handle: cfg.Mentions.Handle,
		settle: time.Duration(cfg.Mentions.SettleDelay) * time.Second,
		logger: logging.NewComponentLogger(logger, "mentions"),
		now:    time.Now,
	}
}

// Poll returns the mentions visible right now, oldest first. An empty page is
// not an error; malformed posts are dropped and logged.
func (s *Source) Poll(ctx context.Context) ([]WorkUnit, error) {
	if s.pages == nil {
		return nil, errors.New("mention source has no browser")
	}
	var html string
	err := s.pages.Use(ctx, func(page browser.Page) error {
		if err := page.Navigate(ctx, s.url); err != nil {
			return err
		}
		if err := sleep(ctx, s.settle); err != nil {
			return err
		}
		var err error
		html, err = page.HTML(ctx)
		return err
	})
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "polling", "load mentions", s.url, err)
	}

	units, skipped, err := ExtractMentions(html, s.url, s.handle, s.now())
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "polling", "extract mentions", "", err)
	}
	for _, skip := range skipped {
		logging.WarnWithContext(s.logger, "dropped malformed mention", "mention_malformed",
			logging.Int("index", skip.Index),
			logging.String("reason", skip.Reason),
			logging.String(logging.FieldErrorHint, "mentions page layout may have changed"),
			logging.String(logging.FieldImpact, "this post will not be processed"))
	}
	s.logger.Debug("mentions polled",
		logging.String(logging.FieldEventType, "mentions_polled"),
		logging.Int("candidate_count", len(units)),
		logging.Int("skipped_count", len(skipped)))
	return units, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
