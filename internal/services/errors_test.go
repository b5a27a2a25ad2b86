package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"spacedub/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalService, "submitting_job", "submit", "dubbing rejected", base)
	if !errors.Is(err, services.ErrExternalService) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"submitting_job", "submit", "dubbing rejected", "boom"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err.Error())
	}
	if !services.Retryable(err) {
		t.Fatal("expected transient error to be retryable")
	}
}

func TestDetailsSurvivesOuterWrapping(t *testing.T) {
	inner := services.Wrap(services.ErrCaptureTimeout, "resolving_stream", "capture", "no manifest observed", nil)
	inner = services.WithHint(inner, "check that the Space is live")
	outer := fmt.Errorf("surface origin: %w", inner)

	details := services.Details(outer)
	if details.Kind != "capture_timeout" {
		t.Fatalf("unexpected kind %q", details.Kind)
	}
	if details.Phase != "resolving_stream" || details.Operation != "capture" {
		t.Fatalf("unexpected details %+v", details)
	}
	if details.Hint != "check that the Space is live" {
		t.Fatalf("unexpected hint %q", details.Hint)
	}
	if services.Retryable(outer) {
		t.Fatal("capture timeout should not be retryable")
	}
}

func TestDetailsForPlainErrors(t *testing.T) {
	details := services.Details(errors.New("plain"))
	if details.Kind != "unknown" || details.Message != "plain" {
		t.Fatalf("unexpected details %+v", details)
	}
	if services.Details(nil) != (services.ErrorDetails{}) {
		t.Fatal("expected zero details for nil")
	}
	if kind := services.Kind(fmt.Errorf("x: %w", services.ErrElementNotFound)); kind != "element_not_found" {
		t.Fatalf("unexpected kind for bare marker %q", kind)
	}
}
