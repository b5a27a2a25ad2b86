package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"spacedub/internal/jobs"
)

type cliTestEnv struct {
	baseDir    string
	stateDir   string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	home := filepath.Join(base, "home")
	if err := os.MkdirAll(home, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", home)
	for _, key := range []string{"DUBBING_API_KEY", "ELEVENLABS_API_KEY", "S3_ENDPOINT", "S3_ACCESS_KEY", "S3_SECRET_KEY", "OPENROUTER_API_KEY"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	env := &cliTestEnv{
		baseDir:    base,
		stateDir:   filepath.Join(base, "state"),
		configPath: filepath.Join(base, "config.toml"),
	}
	content := fmt.Sprintf(`[paths]
state_dir = %q
cookies_file = %q

[storage]
endpoint = "127.0.0.1:9000"
bucket = "spaces"
access_key = "minio-access"
secret_key = "minio-secret"

[dubbing]
api_key = "dub-secret-key"
`, env.stateDir, filepath.Join(base, "cookies.json"))
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	env := setupCLITestEnv(t)
	target := filepath.Join(env.baseDir, "generated", "config.toml")

	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected second init without --overwrite to fail")
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigValidateAndShow(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	out, _, err = runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "[dubbing]")
	requireContains(t, out, env.stateDir)
	if strings.Contains(out, "dub-secret-key") || strings.Contains(out, "minio-secret") {
		t.Fatalf("expected secrets to be masked:\n%s", out)
	}

	out, _, err = runCLI(t, []string{"config", "show", "--reveal"}, env.configPath)
	if err != nil {
		t.Fatalf("config show --reveal: %v", err)
	}
	requireContains(t, out, "dub-secret-key")
}

func TestConfigValidateReportsMissingCredentials(t *testing.T) {
	env := setupCLITestEnv(t)
	bare := filepath.Join(env.baseDir, "bare.toml")
	content := fmt.Sprintf("[paths]\nstate_dir = %q\n", env.stateDir)
	if err := os.WriteFile(bare, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, _, err := runCLI(t, []string{"config", "validate"}, bare)
	if err == nil || !strings.Contains(err.Error(), "dubbing.api_key") {
		t.Fatalf("expected missing dubbing key error, got %v", err)
	}
}

func TestDedupCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"dedup", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("dedup list: %v", err)
	}
	requireContains(t, out, "No mentions admitted yet")

	out, _, err = runCLI(t, []string{"dedup", "mark", "1001", "1002", "1001"}, env.configPath)
	if err != nil {
		t.Fatalf("dedup mark: %v", err)
	}
	requireContains(t, out, "1001: marked")
	requireContains(t, out, "1001: already admitted")

	out, _, err = runCLI(t, []string{"dedup", "check", "1002"}, env.configPath)
	if err != nil {
		t.Fatalf("dedup check: %v", err)
	}
	requireContains(t, out, "1002: admitted")

	out, _, err = runCLI(t, []string{"dedup", "check", "9999"}, env.configPath)
	if err != nil {
		t.Fatalf("dedup check: %v", err)
	}
	requireContains(t, out, "9999: not seen")

	out, _, err = runCLI(t, []string{"dedup", "list", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("dedup list --json: %v", err)
	}
	var ids []string
	if err := json.Unmarshal([]byte(out), &ids); err != nil {
		t.Fatalf("decode ids: %v", err)
	}
	if len(ids) != 2 || ids[0] != "1001" || ids[1] != "1002" {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestJobsListAndShow(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"jobs", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	requireContains(t, out, "No jobs recorded")

	ledger, err := jobs.Open(filepath.Join(env.stateDir, "jobs.db"))
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []jobs.Record{
		{
			ID: "2001", Origin: "https://x.com/alice/status/2001", Mode: "dub", Language: "es",
			Phase: "reply", Outcome: "succeeded", ResultLink: "https://cdn.example/job-1/es.mp3",
			StartedAt: started, FinishedAt: started.Add(4 * time.Minute),
		},
		{
			ID: "2002", Origin: "https://x.com/bob/status/2002", Mode: "summary",
			Phase: "resolve", Outcome: "failed", Reason: "no space found", ErrorKind: "element_not_found",
			StartedAt: started.Add(time.Hour), FinishedAt: started.Add(time.Hour + time.Minute),
		},
	}
	for _, rec := range records {
		if err := ledger.Record(context.Background(), rec); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := ledger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	out, _, err = runCLI(t, []string{"jobs", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	requireContains(t, out, "2001")
	requireContains(t, out, "no space found")
	if strings.Index(out, "2002") > strings.Index(out, "2001") {
		t.Fatalf("expected newest job first:\n%s", out)
	}

	out, _, err = runCLI(t, []string{"jobs", "list", "--outcome", "failed", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs list --json: %v", err)
	}
	var decoded []jobs.Record
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("decode jobs: %v", err)
	}
	if len(decoded) != 1 || decoded[0].ID != "2002" {
		t.Fatalf("unexpected filtered jobs %+v", decoded)
	}

	out, _, err = runCLI(t, []string{"jobs", "show", "2001"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs show: %v", err)
	}
	requireContains(t, out, "https://x.com/alice/status/2001")
	requireContains(t, out, "4m0s")

	if _, _, err := runCLI(t, []string{"jobs", "show", "missing"}, env.configPath); err == nil {
		t.Fatal("expected error for unknown job")
	}
}

func TestDaemonStatusAndStopWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"daemon", "status"}, env.configPath)
	if err != nil {
		t.Fatalf("daemon status: %v", err)
	}
	requireContains(t, out, "not running")
	requireContains(t, out, "0 admitted")
	requireContains(t, out, "No jobs recorded")

	out, _, err = runCLI(t, []string{"daemon", "stop"}, env.configPath)
	if err != nil {
		t.Fatalf("daemon stop: %v", err)
	}
	requireContains(t, out, "Daemon is not running")
}

func TestLeaderboardFromFile(t *testing.T) {
	env := setupCLITestEnv(t)
	snapshot := filepath.Join(env.baseDir, "leaderboard.html")
	page := `<table><tbody class="bg-white divide-y">
<tr class="hidden md:table-row">
<td><div class="ml-4"><div class="text-sm text-gray-500"><a href="https://x.com/carol">@carol</a></div></div></td>
<td><div class="text-md"><a href="/space/abc">Weekly infra</a></div></td>
<td><span>1.5k</span></td><td></td><td></td>
</tr>
</tbody></table>`
	if err := os.WriteFile(snapshot, []byte(page), 0o644); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	out, _, err := runCLI(t, []string{"leaderboard", "--from-file", snapshot}, env.configPath)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	requireContains(t, out, "Weekly infra")
	requireContains(t, out, "1500")

	target := filepath.Join(env.baseDir, "out", "leaderboard.json")
	out, _, err = runCLI(t, []string{"leaderboard", "--from-file", snapshot, "--output", target}, env.configPath)
	if err != nil {
		t.Fatalf("leaderboard --output: %v", err)
	}
	requireContains(t, out, "Wrote 1 entries")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected output file: %v", err)
	}
}
