package dubbing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"spacedub/internal/services"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	opts = append([]Option{WithSleeper(func(time.Duration) {})}, opts...)
	return NewClient(Config{APIKey: "test-key", BaseURL: server.URL, WorkDir: t.TempDir()}, opts...)
}

func TestSubmitSendsFormAndReturnsID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/dubbing" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("xi-api-key"); got != "test-key" {
			t.Fatalf("api key header = %q", got)
		}
		if got := r.Header.Get("Idempotency-Key"); got != "1800" {
			t.Fatalf("idempotency key = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.FormValue("source_url"); got != "https://media.example/a.mp3" {
			t.Fatalf("source_url = %q", got)
		}
		if got := r.FormValue("target_lang"); got != "es" {
			t.Fatalf("target_lang = %q", got)
		}
		if got := r.FormValue("source_lang"); got != "auto" {
			t.Fatalf("source_lang = %q", got)
		}
		if got := r.FormValue("name"); got != "spacedub-1800" {
			t.Fatalf("name = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"dubbing_id": "dub-1", "expected_duration_sec": 30})
	})

	id, err := client.Submit(context.Background(), "https://media.example/a.mp3", "1800", SubmitOptions{TargetLanguage: "es"})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if id != "dub-1" {
		t.Fatalf("expected dub-1, got %q", id)
	}
}

func TestSubmitFailsFastOnServerError(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.Submit(context.Background(), "https://media.example/a.mp3", "1", SubmitOptions{TargetLanguage: "fr"})
	if !errors.Is(err, services.ErrExternalService) {
		t.Fatalf("expected external service error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt by default, got %d calls", calls.Load())
	}
}

func TestPollFailsFastOnServerError(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	if _, err := client.Poll(context.Background(), "dub-1"); !errors.Is(err, services.ErrExternalService) {
		t.Fatalf("expected external service error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt by default, got %d calls", calls.Load())
	}
}

func TestSubmitRetriesServerErrorsWhenEnabled(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"dubbing_id": "dub-2"})
	}, WithRetryMaxAttempts(4))

	id, err := client.Submit(context.Background(), "https://media.example/a.mp3", "1", SubmitOptions{TargetLanguage: "fr"})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if id != "dub-2" || calls.Load() != 3 {
		t.Fatalf("expected dub-2 after 3 calls, got %q after %d", id, calls.Load())
	}
}

func TestSubmitPermanentFailureIsExternalService(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":"bad source"}`))
	})

	_, err := client.Submit(context.Background(), "https://media.example/a.mp3", "1", SubmitOptions{TargetLanguage: "fr"})
	if !errors.Is(err, services.ErrExternalService) {
		t.Fatalf("expected external service error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected no retries on 422, got %d calls", calls.Load())
	}
}

func TestSubmitValidatesInput(t *testing.T) {
	client := NewClient(Config{APIKey: "k"})
	if _, err := client.Submit(context.Background(), "", "1", SubmitOptions{TargetLanguage: "es"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty media ref, got %v", err)
	}
	if _, err := client.Submit(context.Background(), "https://x", "1", SubmitOptions{}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty language, got %v", err)
	}
}

func TestPollMapsStatuses(t *testing.T) {
	statuses := map[string]Status{
		"dub-a": StatusPending,
		"dub-b": StatusSucceeded,
		"dub-c": StatusFailed,
	}
	raw := map[string]string{"dub-a": "dubbing", "dub-b": "dubbed", "dub-c": "failed"}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/dubbing/")
		payload := map[string]any{"dubbing_id": id, "status": raw[id], "target_languages": []string{"es"}}
		if id == "dub-c" {
			payload["error"] = "voice model unavailable"
		}
		_ = json.NewEncoder(w).Encode(payload)
	})

	for id, want := range statuses {
		job, err := client.Poll(context.Background(), id)
		if err != nil {
			t.Fatalf("Poll(%s) returned error: %v", id, err)
		}
		if job.Status != want {
			t.Fatalf("Poll(%s) status = %s, want %s", id, job.Status, want)
		}
		if id == "dub-c" && job.Error != "voice model unavailable" {
			t.Fatalf("expected backend error to be surfaced, got %q", job.Error)
		}
	}
}

func TestTranscriptStripsSRT(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/dubbing/dub-1/transcript/en" || r.URL.Query().Get("format_type") != "srt" {
			t.Fatalf("unexpected request %s", r.URL.String())
		}
		_, _ = w.Write([]byte("1\n00:00:00,000 --> 00:00:02,000\nWelcome to the space.\n\n2\n00:00:02,000 --> 00:00:04,000\nToday we talk Go.\n"))
	})

	text, err := client.Transcript(context.Background(), "dub-1", "en")
	if err != nil {
		t.Fatalf("Transcript returned error: %v", err)
	}
	if text != "Welcome to the space. Today we talk Go." {
		t.Fatalf("unexpected transcript %q", text)
	}
}

type recordingPublisher struct {
	key     string
	content string
}

func (p *recordingPublisher) Upload(_ context.Context, localPath, key string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", err
	}
	p.key = key
	p.content = string(data)
	return "https://cdn.example/" + key, nil
}

func TestResultLinkPublishesDownloadedAudio(t *testing.T) {
	publisher := &recordingPublisher{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/dubbing/dub-1/audio/es" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte("ID3-audio"))
	}, WithPublisher(publisher))

	link, err := client.ResultLink(context.Background(), "dub-1", "es")
	if err != nil {
		t.Fatalf("ResultLink returned error: %v", err)
	}
	if link != "https://cdn.example/dubs/dub-1/dub-dub-1-es.mp3" {
		t.Fatalf("unexpected link %q", link)
	}
	if publisher.content != "ID3-audio" {
		t.Fatalf("publisher received %q", publisher.content)
	}
}

func TestResultLinkWithoutPublisherUsesBackendURL(t *testing.T) {
	client := NewClient(Config{APIKey: "k", BaseURL: "https://dub.example/v1/"})
	link, err := client.ResultLink(context.Background(), "dub-9", "de")
	if err != nil {
		t.Fatalf("ResultLink returned error: %v", err)
	}
	if link != "https://dub.example/v1/dubbing/dub-9/audio/de" {
		t.Fatalf("unexpected link %q", link)
	}
}

func TestPlainTranscriptHandlesCRLF(t *testing.T) {
	got := PlainTranscript("1\r\n00:00:00,000 --> 00:00:01,000\r\nHello\r\n\r\n")
	if got != "Hello" {
		t.Fatalf("expected Hello, got %q", got)
	}
}
