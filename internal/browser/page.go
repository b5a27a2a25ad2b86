package browser

import (
	"context"
	"errors"
)

// ErrClosed reports that the underlying browser tab is gone. Callers treat it
// as a process-level failure.
var ErrClosed = errors.New("browser context closed")

// Request is an outgoing network request observed on the page.
type Request struct {
	URL    string
	Method string
}

// Response is a network response observed on the page. Body is populated only
// for JSON payloads, after the response finished loading.
type Response struct {
	URL      string
	MIMEType string
	Status   int64
	Body     []byte
}

// Page is the capability surface of one browser tab.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// Click waits for loc to become visible and clicks it. A locator that
	// never becomes visible yields an error marked services.ErrElementNotFound.
	Click(ctx context.Context, loc Locator) error
	// Type focuses loc and sends text to it.
	Type(ctx context.Context, loc Locator, text string) error
	HTML(ctx context.Context) (string, error)
	// ObserveRequests registers fn for every outgoing request until the
	// returned detach func is called. Detach is idempotent.
	ObserveRequests(fn func(Request)) (detach func())
	// ObserveResponses registers fn for every response until detached.
	ObserveResponses(fn func(Response)) (detach func())
}
