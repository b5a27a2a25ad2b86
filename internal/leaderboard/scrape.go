package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"spacedub/internal/browser"
	"spacedub/internal/logging"
)

const (
	// DefaultURL is the seven-day English leaderboard.
	DefaultURL   = "https://spacesdashboard.com/leaderboard?lang=en&mode=7d"
	DefaultLimit = 50
)

// PageRunner grants exclusive use of a browser page.
type PageRunner interface {
	Use(ctx context.Context, fn func(browser.Page) error) error
}

// Scraper loads the leaderboard in the browser and parses its rows.
type Scraper struct {
	pages  PageRunner
	url    string
	settle time.Duration
	logger *slog.Logger
}

// NewScraper returns a Scraper for url. settle is how long the page is given
// to render client-side rows after navigation.
func NewScraper(pages PageRunner, url string, settle time.Duration, logger *slog.Logger) *Scraper {
	if url == "" {
		url = DefaultURL
	}
	return &Scraper{
		pages:  pages,
		url:    url,
		settle: settle,
		logger: logging.NewComponentLogger(logger, "leaderboard"),
	}
}

// Scrape returns up to limit unique entries.
func (s *Scraper) Scrape(ctx context.Context, limit int) (Result, error) {
	if s.pages == nil {
		return Result{}, errors.New("leaderboard scraper has no browser")
	}
	var html string
	err := s.pages.Use(ctx, func(page browser.Page) error {
		if err := page.Navigate(ctx, s.url); err != nil {
			return err
		}
		if s.settle > 0 {
			timer := time.NewTimer(s.settle)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
		var err error
		html, err = page.HTML(ctx)
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("load leaderboard: %w", err)
	}
	return s.parse(html, limit)
}

// ScrapeFile parses a saved copy of the leaderboard page.
func (s *Scraper) ScrapeFile(path string, limit int) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read leaderboard snapshot: %w", err)
	}
	return s.parse(string(data), limit)
}

func (s *Scraper) parse(html string, limit int) (Result, error) {
	result, err := Parse(html, s.url, limit)
	if err != nil {
		return Result{}, err
	}
	for _, skipped := range result.Skipped {
		s.logger.Debug("leaderboard row skipped",
			logging.String(logging.FieldEventType, "leaderboard_row_skipped"),
			logging.Int("row", skipped.Row),
			logging.String("reason", skipped.Reason))
	}
	s.logger.Info("leaderboard parsed",
		logging.String(logging.FieldEventType, "leaderboard_parsed"),
		logging.String("strategy", result.Strategy),
		logging.Int("rows", result.Rows),
		logging.Int("entries", len(result.Entries)),
		logging.Int("skipped", len(result.Skipped)))
	return result, nil
}

// Save writes entries to path as indented JSON, replacing any previous file.
func Save(path string, entries []Entry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".leaderboard-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if entries == nil {
		entries = []Entry{}
	}
	enc := json.NewEncoder(tmp)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encode leaderboard: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
