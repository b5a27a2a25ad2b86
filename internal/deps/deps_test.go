package deps

import (
	"os"
	"path/filepath"
	"testing"

	"spacedub/internal/testsupport"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Empty", Command: "  "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Detail != "" {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("unexpected result for empty command: %#v", results[2])
	}
}

func TestRequirementsFollowFFmpegLocation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Media.FFmpegBinary = "/opt/ffmpeg/bin/ffmpeg"
	reqs := Requirements(cfg)
	if len(reqs) != 2 {
		t.Fatalf("expected ffmpeg and ffprobe, got %#v", reqs)
	}
	if reqs[1].Command != "/opt/ffmpeg/bin/ffprobe" {
		t.Fatalf("expected sibling ffprobe, got %q", reqs[1].Command)
	}
}

func TestCheckBrowserFromPath(t *testing.T) {
	binDir := t.TempDir()
	chromium := filepath.Join(binDir, "chromium")
	if err := os.WriteFile(chromium, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	t.Setenv("PATH", binDir)

	status := CheckBrowser("")
	if !status.Available || status.Command != chromium {
		t.Fatalf("expected chromium from PATH, got %#v", status)
	}
}

func TestCheckBrowserExplicitMissing(t *testing.T) {
	t.Setenv("PATH", "")
	status := CheckBrowser("/nonexistent/chrome")
	if status.Available || status.Detail == "" {
		t.Fatalf("expected missing explicit browser, got %#v", status)
	}
	if none := CheckBrowser(""); none.Available {
		t.Fatalf("expected no browser on empty PATH, got %#v", none)
	}
}
