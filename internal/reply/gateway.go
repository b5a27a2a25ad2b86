package reply

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"spacedub/internal/browser"
	"spacedub/internal/config"
	"spacedub/internal/logging"
	"spacedub/internal/services"
)

// PageRunner grants exclusive use of a browser page.
type PageRunner interface {
	Use(ctx context.Context, fn func(browser.Page) error) error
}

// Composer is one way of reaching a reply box: an optional control that
// opens it, the text input, and the submit control.
type Composer struct {
	Name   string
	Open   []browser.Locator
	Input  []browser.Locator
	Submit []browser.Locator
}

// DefaultComposers tries the inline reply box on the post page, then the
// reply dialog.
var DefaultComposers = []Composer{
	{
		Name: "inline",
		Input: []browser.Locator{
			{Name: "inline textarea", Kind: browser.ByCSS, Value: `div[data-testid="tweetTextarea_0"]`},
		},
		Submit: []browser.Locator{
			{Name: "inline reply button", Kind: browser.ByCSS, Value: `button[data-testid="tweetButtonInline"]`},
		},
	},
	{
		Name: "dialog",
		Open: []browser.Locator{
			{Name: "reply icon", Kind: browser.ByCSS, Value: `article[data-testid="tweet"] button[data-testid="reply"]`},
			{Name: "reply aria", Kind: browser.ByAria, Value: "Reply"},
		},
		Input: []browser.Locator{
			{Name: "dialog textarea", Kind: browser.ByCSS, Value: `div[role="dialog"] div[data-testid="tweetTextarea_0"]`},
			{Name: "dialog textbox", Kind: browser.ByCSS, Value: `div[role="dialog"] div[role="textbox"]`},
		},
		Submit: []browser.Locator{
			{Name: "dialog reply button", Kind: browser.ByCSS, Value: `div[role="dialog"] button[data-testid="tweetButton"]`},
			{Name: "dialog reply text", Kind: browser.ByText, Value: "Reply"},
		},
	},
}

const ellipsis = "…"

// Gateway posts replies through a browser session.
type Gateway struct {
	pages     PageRunner
	composers []Composer
	limiter   *rate.Limiter
	maxLength int
	enabled   bool
	logger    *slog.Logger
}

// NewGateway builds a Gateway from the reply section of cfg.
func NewGateway(cfg *config.Config, pages PageRunner, logger *slog.Logger) *Gateway {
	limit := rate.Inf
	if cfg.Reply.MinIntervalSeconds > 0 {
		limit = rate.Every(time.Duration(cfg.Reply.MinIntervalSeconds) * time.Second)
	}
	return &Gateway{
		pages:     pages,
		composers: DefaultComposers,
		limiter:   rate.NewLimiter(limit, 1),
		maxLength: cfg.Reply.MaxLength,
		enabled:   cfg.Reply.Enabled,
		logger:    logging.NewComponentLogger(logger, "reply"),
	}
}

// WithComposers replaces the composer strategies.
func (g *Gateway) WithComposers(composers []Composer) *Gateway {
	g.composers = composers
	return g
}

// Reply posts text as a reply to the post at origin.
func (g *Gateway) Reply(ctx context.Context, origin, text string) error {
	logger := logging.WithContext(ctx, g.logger)
	if !g.enabled {
		return services.Wrap(services.ErrReplyDelivery, "posting_reply", "reply", "replies are disabled", nil)
	}
	text = Truncate(strings.TrimSpace(text), g.maxLength)
	if text == "" {
		return services.Wrap(services.ErrReplyDelivery, "posting_reply", "reply", "empty reply text", nil)
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return services.Wrap(services.ErrReplyDelivery, "posting_reply", "pace", origin, err)
	}

	var used string
	err := g.pages.Use(ctx, func(page browser.Page) error {
		if err := page.Navigate(ctx, origin); err != nil {
			return err
		}
		var lastErr error
		for _, composer := range g.composers {
			err := post(ctx, page, composer, text)
			if err == nil {
				used = composer.Name
				return nil
			}
			lastErr = err
			if !errors.Is(err, services.ErrElementNotFound) {
				return err
			}
		}
		if lastErr == nil {
			lastErr = errors.New("no reply composers configured")
		}
		return lastErr
	})
	if err != nil {
		return services.Wrap(services.ErrReplyDelivery, "posting_reply", "reply", origin, err)
	}
	logger.Info("reply posted",
		logging.String(logging.FieldEventType, "reply_posted"),
		logging.String("origin", origin),
		logging.String("composer", used),
		logging.Int("length", len([]rune(text))))
	return nil
}

func post(ctx context.Context, page browser.Page, composer Composer, text string) error {
	if len(composer.Open) > 0 {
		if err := clickFirst(ctx, page, composer.Open); err != nil {
			return err
		}
	}
	if err := typeFirst(ctx, page, composer.Input, text); err != nil {
		return err
	}
	return clickFirst(ctx, page, composer.Submit)
}

func clickFirst(ctx context.Context, page browser.Page, locators []browser.Locator) error {
	var lastErr error
	for _, loc := range locators {
		err := page.Click(ctx, loc)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return notFound(lastErr)
}

func typeFirst(ctx context.Context, page browser.Page, locators []browser.Locator, text string) error {
	var lastErr error
	for _, loc := range locators {
		err := page.Type(ctx, loc, text)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return notFound(lastErr)
}

func notFound(err error) error {
	if err == nil || errors.Is(err, services.ErrElementNotFound) {
		return services.Wrap(services.ErrElementNotFound, "posting_reply", "locate", "no locator matched", err)
	}
	return err
}

// Truncate limits text to max runes, ending with an ellipsis when cut.
// A non-positive max leaves text unchanged.
func Truncate(text string, max int) string {
	runes := []rune(text)
	if max <= 0 || len(runes) <= max {
		return text
	}
	if max == 1 {
		return ellipsis
	}
	return strings.TrimSpace(string(runes[:max-1])) + ellipsis
}

// Compose joins message and link, shortening message so the link always fits
// within max runes.
func Compose(message, link string, max int) string {
	message = strings.TrimSpace(message)
	link = strings.TrimSpace(link)
	if link == "" {
		return Truncate(message, max)
	}
	if message == "" {
		return link
	}
	if max <= 0 {
		return message + " " + link
	}
	room := max - len([]rune(link)) - 1
	if room <= 0 {
		return link
	}
	return Truncate(message, room) + " " + link
}
