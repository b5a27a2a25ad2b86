package testsupport

import (
	"context"
	"sync"

	"spacedub/internal/browser"
	"spacedub/internal/services"
)

// FakePage is an in-memory browser.Page. Pages maps URLs to the HTML served
// after navigation; Visible lists locator values that can be clicked.
type FakePage struct {
	mu sync.Mutex

	Pages       map[string]string
	NavigateErr map[string]error
	Visible     map[string]bool
	// OnClick runs after a successful click, typically to emit network events.
	OnClick func(url string, loc browser.Locator)

	Current   string
	Navigated []string
	Clicks    []browser.Locator
	Typed     []string
	nextSubID int
	requests  map[int]func(browser.Request)
	responses map[int]func(browser.Response)
}

// NewFakePage returns an empty page.
func NewFakePage() *FakePage {
	return &FakePage{
		Pages:       make(map[string]string),
		NavigateErr: make(map[string]error),
		Visible:     make(map[string]bool),
		requests:    make(map[int]func(browser.Request)),
		responses:   make(map[int]func(browser.Response)),
	}
}

func (p *FakePage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Navigated = append(p.Navigated, url)
	if err := p.NavigateErr[url]; err != nil {
		return err
	}
	p.Current = url
	return nil
}

func (p *FakePage) Click(ctx context.Context, loc browser.Locator) error {
	p.mu.Lock()
	current := p.Current
	visible := p.Visible[loc.Value]
	if visible {
		p.Clicks = append(p.Clicks, loc)
	}
	hook := p.OnClick
	p.mu.Unlock()

	if !visible {
		return services.Wrap(services.ErrElementNotFound, "", "locate", loc.String(), nil)
	}
	if hook != nil {
		hook(current, loc)
	}
	return nil
}

func (p *FakePage) Type(ctx context.Context, loc browser.Locator, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.Visible[loc.Value] {
		return services.Wrap(services.ErrElementNotFound, "", "focus", loc.String(), nil)
	}
	p.Typed = append(p.Typed, text)
	return nil
}

func (p *FakePage) HTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Pages[p.Current], nil
}

func (p *FakePage) ObserveRequests(fn func(browser.Request)) func() {
	p.mu.Lock()
	id := p.nextSubID
	p.nextSubID++
	p.requests[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.requests, id)
		p.mu.Unlock()
	}
}

func (p *FakePage) ObserveResponses(fn func(browser.Response)) func() {
	p.mu.Lock()
	id := p.nextSubID
	p.nextSubID++
	p.responses[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.responses, id)
		p.mu.Unlock()
	}
}

// EmitRequest delivers req to every attached request observer.
func (p *FakePage) EmitRequest(req browser.Request) {
	p.mu.Lock()
	handlers := make([]func(browser.Request), 0, len(p.requests))
	for _, fn := range p.requests {
		handlers = append(handlers, fn)
	}
	p.mu.Unlock()
	for _, fn := range handlers {
		fn(req)
	}
}

// EmitResponse delivers resp to every attached response observer.
func (p *FakePage) EmitResponse(resp browser.Response) {
	p.mu.Lock()
	handlers := make([]func(browser.Response), 0, len(p.responses))
	for _, fn := range p.responses {
		handlers = append(handlers, fn)
	}
	p.mu.Unlock()
	for _, fn := range handlers {
		fn(resp)
	}
}

// Observers reports how many request and response observers are attached.
func (p *FakePage) Observers() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests), len(p.responses)
}

// PageRunner hands FakePage to one caller at a time.
type PageRunner struct {
	Page *FakePage
	Err  error

	mu   sync.Mutex
	uses int
}

// NewPageRunner wraps page.
func NewPageRunner(page *FakePage) *PageRunner {
	return &PageRunner{Page: page}
}

func (r *PageRunner) Use(ctx context.Context, fn func(browser.Page) error) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uses++
	return fn(r.Page)
}

// Uses returns how many times Use ran.
func (r *PageRunner) Uses() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.uses
}
