package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"spacedub/internal/config"
	"spacedub/internal/media"
)

// chromiumCandidates are the binary names chromedp looks for when no
// explicit path is configured.
var chromiumCandidates = []string{
	"headless_shell",
	"headless-shell",
	"chromium",
	"chromium-browser",
	"google-chrome",
	"google-chrome-stable",
}

// Requirements lists the external binaries the daemon needs for cfg.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{Name: "FFmpeg", Command: cfg.Media.FFmpegBinary, Description: "Transcodes captured streams"},
		{Name: "FFprobe", Command: media.ProbeBinary(cfg.Media.FFmpegBinary), Description: "Validates transcoded audio"},
	}
}

// CheckBrowser reports the Chromium binary the browser session will launch.
// An explicit path wins; otherwise the first candidate on PATH is used.
func CheckBrowser(execPath string) Status {
	result := Status{
		Name:        "Chromium",
		Description: "Drives the mentions, capture and reply surfaces",
	}
	if explicit := strings.TrimSpace(execPath); explicit != "" {
		result.Command = explicit
		if _, err := exec.LookPath(explicit); err != nil {
			result.Detail = fmt.Sprintf("binary %q not found", explicit)
			return result
		}
		result.Available = true
		return result
	}
	for _, name := range chromiumCandidates {
		if resolved, err := exec.LookPath(name); err == nil {
			result.Command = resolved
			result.Available = true
			return result
		}
	}
	result.Command = chromiumCandidates[0]
	result.Detail = "no Chromium binary found on PATH"
	return result
}

// Check evaluates every requirement for cfg, browser included.
func Check(cfg *config.Config) []Status {
	statuses := CheckBinaries(Requirements(cfg))
	return append(statuses, CheckBrowser(cfg.Browser.ExecPath))
}
