package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"spacedub/internal/browser"
	"spacedub/internal/capture"
	"spacedub/internal/logging"
	"spacedub/internal/mention"
	"spacedub/internal/services"
)

// resolveStream tries each candidate surface in order: a Space linked in the
// mention, the mention itself, then up to lookback ancestors in its thread.
// Only a missing playback control moves on to the next surface.
func (m *Machine) resolveStream(ctx context.Context, job *Job, logger *slog.Logger) error {
	var surfaces []string
	if job.Request.SpaceURL != "" {
		surfaces = append(surfaces, job.Request.SpaceURL)
	}
	surfaces = append(surfaces, job.Unit.Origin)

	seen := make(map[string]struct{}, len(surfaces)+m.lookback)
	var lastErr error
	tried := 0
	for i := 0; i < len(surfaces); i++ {
		surface := surfaces[i]
		if _, ok := seen[surface]; ok {
			continue
		}
		seen[surface] = struct{}{}
		tried++

		result, ancestors, err := m.captureSurface(ctx, job, surface)
		if err == nil {
			job.ManifestURL = result.ManifestURL
			logger.Info("stream resolved",
				logging.String(logging.FieldEventType, "stream_resolved"),
				logging.String("surface", surface),
				logging.String("manifest_url", result.ManifestURL),
				logging.String("capture_source", string(result.Source)),
				logging.Int("superseded", len(result.Superseded)))
			return nil
		}
		lastErr = err
		if !errors.Is(err, services.ErrElementNotFound) {
			return err
		}
		logger.Info("no playback control on surface",
			logging.String(logging.FieldEventType, "surface_skipped"),
			logging.String("surface", surface),
			logging.Int("ancestors_found", len(ancestors)))
		surfaces = append(surfaces, ancestors...)
	}
	return services.Wrap(services.ErrElementNotFound, string(PhaseResolvingStream), "resolve stream",
		fmt.Sprintf("no playable recording on %d surfaces", tried), lastErr)
}

// captureSurface navigates to surface and runs one capture. When the origin
// post has no playback control, its thread ancestors are returned so the
// caller can walk backward.
func (m *Machine) captureSurface(ctx context.Context, job *Job, surface string) (capture.Result, []string, error) {
	var (
		result    capture.Result
		ancestors []string
	)
	started := m.now()
	err := m.deps.Pages.Use(ctx, func(page browser.Page) error {
		if err := page.Navigate(ctx, surface); err != nil {
			return err
		}
		res, err := m.deps.Capture.Capture(ctx, page, capture.PlayControls)
		if err == nil {
			result = res
			return nil
		}
		if surface == job.Unit.Origin && m.lookback > 0 && errors.Is(err, services.ErrElementNotFound) {
			ancestors = m.threadAncestors(ctx, page, job)
		}
		return err
	})

	outcome := "resolved"
	elapsed := m.now().Sub(started)
	if err != nil {
		outcome = services.Kind(err)
	} else if result.Elapsed > 0 {
		elapsed = result.Elapsed
	}
	m.deps.Metrics.ObserveCapture(outcome, elapsed)
	return result, ancestors, err
}

func (m *Machine) threadAncestors(ctx context.Context, page browser.Page, job *Job) []string {
	logger := logging.WithContext(ctx, m.logger)
	html, err := page.HTML(ctx)
	if err != nil {
		logger.Debug("thread html unavailable", logging.Error(err))
		return nil
	}
	links, err := mention.AncestorLinks(html, job.Unit.Origin, job.Unit.ID, m.lookback)
	if err != nil {
		logger.Debug("thread ancestors unreadable", logging.Error(err))
		return nil
	}
	return links
}
