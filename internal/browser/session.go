package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"spacedub/internal/config"
	"spacedub/internal/logging"
	"spacedub/internal/services"
)

// Session owns a Chromium process with a single tab.
type Session struct {
	logger *slog.Logger

	mu   sync.Mutex
	page *chromePage

	cancelAlloc   context.CancelFunc
	cancelBrowser context.CancelFunc
}

// NewSession launches the browser, enables network events, and installs the
// cookie export found at cfg.Paths.CookiesFile.
func NewSession(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Session, error) {
	if cfg == nil {
		return nil, errors.New("browser session requires config")
	}
	logger = logging.NewComponentLogger(logger, "browser")

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.Flag("headless", cfg.Browser.Headless))
	if cfg.Browser.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.Browser.ExecPath))
	}
	if cfg.Browser.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.Browser.UserDataDir))
	}
	if cfg.Browser.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.Browser.UserAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	tabCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		logger.Debug(fmt.Sprintf(format, args...))
	}))

	cookies, err := LoadCookies(cfg.Paths.CookiesFile)
	if err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, err
	}

	startCtx, cancelStart := context.WithTimeout(tabCtx, time.Duration(cfg.Browser.NavigationTimeout)*time.Second)
	defer cancelStart()
	actions := []chromedp.Action{network.Enable()}
	if len(cookies) > 0 {
		params := cookieParams(cookies)
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			return network.SetCookies(params).Do(ctx)
		}))
	}
	if err := chromedp.Run(startCtx, actions...); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	page := &chromePage{
		tabCtx:         tabCtx,
		navTimeout:     time.Duration(cfg.Browser.NavigationTimeout) * time.Second,
		elementTimeout: time.Duration(cfg.Browser.ElementTimeout) * time.Second,
		logger:         logger,
	}
	page.events = newDispatcher(page.responseBody)
	chromedp.ListenTarget(tabCtx, page.events.handle)

	logger.Info("browser session started",
		logging.String(logging.FieldEventType, "browser_started"),
		logging.Bool("headless", cfg.Browser.Headless),
		logging.Int("cookie_count", len(cookies)))

	return &Session{
		logger:        logger,
		page:          page,
		cancelAlloc:   cancelAlloc,
		cancelBrowser: cancelBrowser,
	}, nil
}

// Use runs fn with exclusive access to the tab.
func (s *Session) Use(ctx context.Context, fn func(Page) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.page == nil || s.page.tabCtx.Err() != nil {
		return ErrClosed
	}
	err := fn(s.page)
	if s.page.tabCtx.Err() != nil {
		return errors.Join(ErrClosed, err)
	}
	return err
}

// Close shuts the browser down.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelBrowser != nil {
		s.cancelBrowser()
		s.cancelBrowser = nil
	}
	if s.cancelAlloc != nil {
		s.cancelAlloc()
		s.cancelAlloc = nil
	}
	s.logger.Info("browser session closed", logging.String(logging.FieldEventType, "browser_closed"))
}

type chromePage struct {
	tabCtx         context.Context
	navTimeout     time.Duration
	elementTimeout time.Duration
	events         *dispatcher
	logger         *slog.Logger
}

// run executes actions on the tab, bounded by timeout and by the caller's ctx.
func (p *chromePage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(p.tabCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx, p.navTimeout, chromedp.Navigate(url)); err != nil {
		return services.Wrap(services.ErrTimeout, "", "navigate", url, err)
	}
	return nil
}

func (p *chromePage) Click(ctx context.Context, loc Locator) error {
	sel, by := p.selector(loc)
	if err := p.run(ctx, p.elementTimeout, chromedp.WaitVisible(sel, by)); err != nil {
		return services.Wrap(services.ErrElementNotFound, "", "locate", loc.String(), err)
	}
	if err := p.run(ctx, p.elementTimeout, chromedp.Click(sel, by, chromedp.NodeVisible)); err != nil {
		return services.Wrap(services.ErrElementNotFound, "", "click", loc.String(), err)
	}
	return nil
}

func (p *chromePage) Type(ctx context.Context, loc Locator, text string) error {
	sel, by := p.selector(loc)
	if err := p.run(ctx, p.elementTimeout, chromedp.WaitVisible(sel, by), chromedp.Focus(sel, by)); err != nil {
		return services.Wrap(services.ErrElementNotFound, "", "focus", loc.String(), err)
	}
	if err := p.run(ctx, p.elementTimeout, chromedp.SendKeys(sel, text, by)); err != nil {
		return services.Wrap(services.ErrTransient, "", "type", loc.String(), err)
	}
	return nil
}

func (p *chromePage) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, p.elementTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read page html: %w", err)
	}
	return html, nil
}

func (p *chromePage) ObserveRequests(fn func(Request)) func() {
	return p.events.subscribeRequests(fn)
}

func (p *chromePage) ObserveResponses(fn func(Response)) func() {
	return p.events.subscribeResponses(fn)
}

func (p *chromePage) responseBody(id network.RequestID) ([]byte, error) {
	ctx, cancel := context.WithTimeout(p.tabCtx, p.elementTimeout)
	defer cancel()
	c := chromedp.FromContext(p.tabCtx)
	if c == nil || c.Target == nil {
		return nil, ErrClosed
	}
	return network.GetResponseBody(id).Do(cdp.WithExecutor(ctx, c.Target))
}

func (p *chromePage) selector(loc Locator) (string, chromedp.QueryOption) {
	sel, xpath := loc.query()
	if xpath {
		return sel, chromedp.BySearch
	}
	return sel, chromedp.ByQuery
}
