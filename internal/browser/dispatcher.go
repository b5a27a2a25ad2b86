package browser

import (
	"strings"
	"sync"

	"github.com/chromedp/cdproto/network"
)

// dispatcher fans DevTools network events out to removable subscribers.
// chromedp listeners cannot be unregistered, so the tab installs exactly one
// listener that forwards into a dispatcher.
type dispatcher struct {
	mu        sync.Mutex
	next      int
	requests  map[int]func(Request)
	responses map[int]func(Response)
	pending   map[network.RequestID]Response

	// fetch retrieves a finished response body. It is called on its own
	// goroutine because DevTools calls cannot be made from the event loop.
	fetch func(network.RequestID) ([]byte, error)
}

func newDispatcher(fetch func(network.RequestID) ([]byte, error)) *dispatcher {
	return &dispatcher{
		requests:  make(map[int]func(Request)),
		responses: make(map[int]func(Response)),
		pending:   make(map[network.RequestID]Response),
		fetch:     fetch,
	}
}

func (d *dispatcher) subscribeRequests(fn func(Request)) func() {
	d.mu.Lock()
	id := d.next
	d.next++
	d.requests[id] = fn
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.requests, id)
			d.mu.Unlock()
		})
	}
}

func (d *dispatcher) subscribeResponses(fn func(Response)) func() {
	d.mu.Lock()
	id := d.next
	d.next++
	d.responses[id] = fn
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.responses, id)
			if len(d.responses) == 0 {
				clear(d.pending)
			}
			d.mu.Unlock()
		})
	}
}

func (d *dispatcher) handle(ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		if e.Request == nil {
			return
		}
		d.emitRequest(Request{URL: e.Request.URL, Method: e.Request.Method})
	case *network.EventResponseReceived:
		if e.Response == nil {
			return
		}
		resp := Response{URL: e.Response.URL, MIMEType: e.Response.MimeType, Status: e.Response.Status}
		if isJSON(resp.MIMEType) && d.fetch != nil {
			d.mu.Lock()
			if len(d.responses) > 0 {
				d.pending[e.RequestID] = resp
			}
			d.mu.Unlock()
			return
		}
		d.emitResponse(resp)
	case *network.EventLoadingFinished:
		d.mu.Lock()
		resp, ok := d.pending[e.RequestID]
		delete(d.pending, e.RequestID)
		d.mu.Unlock()
		if !ok {
			return
		}
		go func(id network.RequestID, resp Response) {
			if body, err := d.fetch(id); err == nil {
				resp.Body = body
			}
			d.emitResponse(resp)
		}(e.RequestID, resp)
	case *network.EventLoadingFailed:
		d.mu.Lock()
		delete(d.pending, e.RequestID)
		d.mu.Unlock()
	}
}

func (d *dispatcher) emitRequest(req Request) {
	d.mu.Lock()
	handlers := make([]func(Request), 0, len(d.requests))
	for _, fn := range d.requests {
		handlers = append(handlers, fn)
	}
	d.mu.Unlock()
	for _, fn := range handlers {
		fn(req)
	}
}

func (d *dispatcher) emitResponse(resp Response) {
	d.mu.Lock()
	handlers := make([]func(Response), 0, len(d.responses))
	for _, fn := range d.responses {
		handlers = append(handlers, fn)
	}
	d.mu.Unlock()
	for _, fn := range handlers {
		fn(resp)
	}
}

func isJSON(mime string) bool {
	mime = strings.ToLower(mime)
	return strings.Contains(mime, "json")
}
