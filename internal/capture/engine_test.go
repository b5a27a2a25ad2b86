package capture_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"spacedub/internal/browser"
	"spacedub/internal/capture"
	"spacedub/internal/services"
	"spacedub/internal/testsupport"
)

var playButton = browser.Locator{Name: "play", Kind: browser.ByCSS, Value: "button.play"}

func assertDetached(t *testing.T, page *testsupport.FakePage) {
	t.Helper()
	if reqs, resps := page.Observers(); reqs != 0 || resps != 0 {
		t.Fatalf("observers left attached: requests=%d responses=%d", reqs, resps)
	}
}

func TestCaptureFirstMatchWins(t *testing.T) {
	page := testsupport.NewFakePage()
	page.Visible[playButton.Value] = true
	page.OnClick = func(string, browser.Locator) {
		page.EmitRequest(browser.Request{URL: "https://cdn.example/logo.png"})
		page.EmitRequest(browser.Request{URL: "https://cdn.example/U1/playlist.m3u8"})
		page.EmitResponse(browser.Response{URL: "https://cdn.example/U2/playlist.m3u8", MIMEType: "application/x-mpegURL"})
	}

	engine := capture.NewEngine(2*time.Second, nil)
	result, err := engine.Capture(context.Background(), page, []browser.Locator{playButton})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if result.ManifestURL != "https://cdn.example/U1/playlist.m3u8" || result.Source != capture.SourceRequest {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(result.Superseded) != 1 || result.Superseded[0] != "https://cdn.example/U2/playlist.m3u8" {
		t.Fatalf("unexpected superseded %v", result.Superseded)
	}
	assertDetached(t, page)
}

func TestCaptureFallsBackThroughLocators(t *testing.T) {
	page := testsupport.NewFakePage()
	second := browser.Locator{Name: "tune in", Kind: browser.ByText, Value: "Tune in"}
	page.Visible[second.Value] = true
	page.OnClick = func(string, browser.Locator) {
		go func() {
			time.Sleep(20 * time.Millisecond)
			page.EmitResponse(browser.Response{
				URL:      "https://x.com/i/api/1.1/live_video_stream/status/1",
				MIMEType: "application/json",
				Body:     []byte(`{"source":{"location":"https://cdn.example/replay.m3u8?type=replay"}}`),
			})
		}()
	}

	engine := capture.NewEngine(2*time.Second, nil)
	result, err := engine.Capture(context.Background(), page, []browser.Locator{playButton, second})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if result.Control != "tune in" || result.Source != capture.SourceResponseBody {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(page.Clicks) != 1 || page.Clicks[0] != second {
		t.Fatalf("unexpected clicks %v", page.Clicks)
	}
}

func TestCaptureDeadlineDiscardsLateEvent(t *testing.T) {
	const deadline = 150 * time.Millisecond
	page := testsupport.NewFakePage()
	page.Visible[playButton.Value] = true
	lateSent := make(chan struct{})
	page.OnClick = func(string, browser.Locator) {
		go func() {
			defer close(lateSent)
			time.Sleep(2 * deadline)
			page.EmitRequest(browser.Request{URL: "https://cdn.example/late.m3u8"})
		}()
	}

	engine := capture.NewEngine(deadline, nil)
	start := time.Now()
	_, err := engine.Capture(context.Background(), page, []browser.Locator{playButton})
	elapsed := time.Since(start)
	if !errors.Is(err, services.ErrCaptureTimeout) {
		t.Fatalf("expected capture timeout, got %v", err)
	}
	if elapsed < deadline || elapsed > deadline+500*time.Millisecond {
		t.Fatalf("capture returned after %s, want about %s", elapsed, deadline)
	}
	assertDetached(t, page)
	<-lateSent
}

func TestCaptureResolvedAtDeadlineIsKept(t *testing.T) {
	const deadline = 20 * time.Millisecond
	for i := 0; i < 20; i++ {
		page := testsupport.NewFakePage()
		page.Visible[playButton.Value] = true
		page.OnClick = func(string, browser.Locator) {
			page.EmitRequest(browser.Request{URL: "https://cdn.example/edge/playlist.m3u8"})
			// Both the session and the deadline are ready once Click returns.
			time.Sleep(2 * deadline)
		}

		result, err := capture.NewEngine(deadline, nil).Capture(context.Background(), page, []browser.Locator{playButton})
		if err != nil {
			t.Fatalf("run %d: expected the accepted URL, got %v", i, err)
		}
		if result.ManifestURL != "https://cdn.example/edge/playlist.m3u8" {
			t.Fatalf("run %d: unexpected result %+v", i, result)
		}
		assertDetached(t, page)
	}
}

func TestCaptureElementNotFound(t *testing.T) {
	page := testsupport.NewFakePage()
	engine := capture.NewEngine(time.Second, nil)
	_, err := engine.Capture(context.Background(), page, []browser.Locator{playButton})
	if !errors.Is(err, services.ErrElementNotFound) {
		t.Fatalf("expected element not found, got %v", err)
	}
	assertDetached(t, page)
}

func TestCaptureHonoursCallerCancellation(t *testing.T) {
	page := testsupport.NewFakePage()
	page.Visible[playButton.Value] = true
	ctx, cancel := context.WithCancel(context.Background())
	page.OnClick = func(string, browser.Locator) {
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()
	}
	engine := capture.NewEngine(5*time.Second, nil)
	_, err := engine.Capture(ctx, page, []browser.Locator{playButton})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	assertDetached(t, page)
}
