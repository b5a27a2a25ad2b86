package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// CommandRunner executes an external command and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	return cmd.CombinedOutput()
}

var audioCodecs = map[string][]string{
	"mp3": {"-c:a", "libmp3lame", "-b:a", "128k"},
	"m4a": {"-c:a", "aac", "-b:a", "128k"},
	"aac": {"-c:a", "aac", "-b:a", "128k"},
	"wav": {"-c:a", "pcm_s16le"},
}

var contentTypes = map[string]string{
	"mp3": "audio/mpeg",
	"m4a": "audio/mp4",
	"aac": "audio/aac",
	"wav": "audio/wav",
}

// Transcoder downloads an HLS stream with ffmpeg and writes an audio file.
type Transcoder struct {
	Binary  string
	Format  string
	WorkDir string
	Timeout time.Duration
	Run     CommandRunner
}

// Transcode writes the audio of manifestURL to WorkDir/<name>.<format>.
func (t Transcoder) Transcode(ctx context.Context, manifestURL, name string) (string, error) {
	format := strings.ToLower(strings.TrimSpace(t.Format))
	codec, ok := audioCodecs[format]
	if !ok {
		return "", fmt.Errorf("unsupported audio format %q", t.Format)
	}
	if err := os.MkdirAll(t.WorkDir, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	output := filepath.Join(t.WorkDir, name+"."+format)

	binary := t.Binary
	if binary == "" {
		binary = "ffmpeg"
	}
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-protocol_whitelist", "file,http,https,tcp,tls,crypto",
		"-i", manifestURL,
		"-vn",
	}
	args = append(args, codec...)
	args = append(args, output)

	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}
	run := t.Run
	if run == nil {
		run = execRunner
	}
	out, err := run(ctx, binary, args...)
	if err != nil {
		_ = os.Remove(output)
		return "", fmt.Errorf("ffmpeg: %w: %s", err, lastLine(out))
	}
	info, err := os.Stat(output)
	if err != nil {
		return "", fmt.Errorf("ffmpeg produced no output: %w", err)
	}
	if info.Size() == 0 {
		_ = os.Remove(output)
		return "", fmt.Errorf("ffmpeg produced an empty file")
	}
	return output, nil
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
