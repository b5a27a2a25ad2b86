package capture

import (
	"sync"
	"time"
)

// Source names the event kind that produced a manifest URL.
type Source string

const (
	SourceRequest      Source = "request"
	SourceResponse     Source = "response"
	SourceResponseBody Source = "response_body"
)

// Session accepts at most one manifest URL. It is safe for concurrent use by
// any number of producers.
type Session struct {
	opened time.Time

	mu         sync.Mutex
	url        string
	source     string
	resolvedAt time.Time
	superseded []string
	done       chan struct{}
}

// NewSession opens an empty session.
func NewSession() *Session {
	return &Session{opened: time.Now(), done: make(chan struct{})}
}

// Offer proposes url. It returns true when url became the session result.
// Offers after the first accepted one, including repeats of a different URL,
// are recorded as superseded.
func (s *Session) Offer(url string, source Source) bool {
	if url == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.url != "" {
		if url != s.url {
			s.superseded = append(s.superseded, url)
		}
		return false
	}
	s.url = url
	s.source = string(source)
	s.resolvedAt = time.Now()
	close(s.done)
	return true
}

// Done is closed once a URL has been accepted.
func (s *Session) Done() <-chan struct{} { return s.done }

// Result returns the accepted URL and its source, if any.
func (s *Session) Result() (string, Source, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url, Source(s.source), s.url != ""
}

// ResolvedAt returns when the URL was accepted.
func (s *Session) ResolvedAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolvedAt, s.url != ""
}

// Superseded returns the distinct URLs offered after resolution.
func (s *Session) Superseded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.superseded...)
}

// Elapsed reports the time from open to resolution, or to now if unresolved.
func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.url == "" {
		return time.Since(s.opened)
	}
	return s.resolvedAt.Sub(s.opened)
}
