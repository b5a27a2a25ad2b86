package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveJobCountsByOutcome(t *testing.T) {
	m := New()
	m.ObserveJob("succeeded", 2*time.Minute)
	m.ObserveJob("succeeded", time.Minute)
	m.ObserveJob("failed", time.Second)

	if got := testutil.ToFloat64(m.jobs.WithLabelValues("succeeded")); got != 2 {
		t.Fatalf("succeeded jobs = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.jobs.WithLabelValues("failed")); got != 1 {
		t.Fatalf("failed jobs = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.jobDuration); got != 2 {
		t.Fatalf("expected two duration series, got %d", got)
	}
}

func TestGaugesAndCounters(t *testing.T) {
	m := New()
	m.MentionsAdmitted(3)
	m.MentionsAdmitted(0)
	m.PollFailed()
	m.SetQueueDepth(4)
	m.ObserveCapture("resolved", 1500*time.Millisecond)

	if got := testutil.ToFloat64(m.mentionsAdmitted); got != 3 {
		t.Fatalf("admitted = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.pollFailures); got != 1 {
		t.Fatalf("poll failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.queueDepth); got != 4 {
		t.Fatalf("queue depth = %v, want 4", got)
	}
	if got := testutil.CollectAndCount(m.captureDuration); got != 1 {
		t.Fatalf("expected one capture series, got %d", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveJob("failed", time.Second)
	m.ObserveCapture("resolved", time.Second)
	m.MentionsAdmitted(1)
	m.PollFailed()
	m.SetQueueDepth(1)
}

func TestHandlerExposesSpacedubMetrics(t *testing.T) {
	m := New()
	m.ObserveJob("succeeded_reply_undelivered", time.Minute)

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	resp, err := server.Client().Get(server.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), `spacedub_jobs_total{outcome="succeeded_reply_undelivered"} 1`) {
		t.Fatalf("metrics output missing job counter:\n%s", body)
	}
}
