package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"

	"handout/internal/api"
	"handout/internal/config"
	"handout/internal/daemon"
	"handout/internal/logging"
	"handout/internal/progress"
	"handout/internal/queue"
	"handout/internal/runspec"
	"handout/internal/stage"
	"handout/internal/taskrunner"
	"handout/internal/workflow"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *queue.Store
	server     *httptest.Server
	configPath string
	baseDir    string
}

func writeTestConfig(t *testing.T, base, secret string) string {
	t.Helper()
	path := filepath.Join(base, "config.toml")
	body := fmt.Sprintf(`[paths]
work_dir = %q
output_dir = %q
log_dir = %q
state_dir = %q

[llm]
api_key = "test"

[transcription]
api_key = "test"

[api]
bind = "127.0.0.1:0"
token_secret = %q
`, filepath.Join(base, "work"), filepath.Join(base, "output"), filepath.Join(base, "logs"), filepath.Join(base, "state"), secret)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func setupCLITestEnv(t *testing.T, secret string) *cliTestEnv {
	t.Helper()
	base := t.TempDir()
	configPath := writeTestConfig(t, base, secret)
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	noop := stage.HandlerFunc(func(context.Context, runspec.Run, stage.Reporter) (runspec.Patch, error) {
		return runspec.Patch{}, nil
	})
	runner := taskrunner.NewGroup(1)
	o, err := workflow.New(store, workflow.Stages{
		Acquire: noop, Captions: noop, Frames: noop, Refine: noop,
		Render: noop, Compress: noop, Artifacts: noop,
	}, runner, workflow.WithLogger(logging.NewNop()))
	if err != nil {
		t.Fatalf("workflow.New: %v", err)
	}
	d, err := daemon.New(cfg, store, o, progress.NewSSEPublisher(), logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	srv := httptest.NewServer(d.Handler())

	t.Cleanup(func() {
		srv.Close()
		_ = runner.Close()
		store.Close()
	})
	return &cliTestEnv{cfg: cfg, store: store, server: srv, configPath: configPath, baseDir: base}
}

func runCLI(t *testing.T, args []string, apiURL, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--config", configPath}
	if apiURL != "" {
		flags = append(flags, "--api", apiURL)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestCLISubmitListShowCancelClear(t *testing.T) {
	env := setupCLITestEnv(t, "cli-secret")
	video := filepath.Join(env.baseDir, "lecture.mp4")
	if err := os.WriteFile(video, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, _, err := runCLI(t, []string{"submit", video, "--quiz", "--prompt", "title=Name it"}, env.server.URL, env.configPath)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !strings.Contains(out, "Queued job") {
		t.Fatalf("unexpected submit output %q", out)
	}
	jobs, err := env.store.List(context.Background())
	if err != nil || len(jobs) != 1 {
		t.Fatalf("expected one stored job, got %d %v", len(jobs), err)
	}
	id := jobs[0].ID
	run, err := jobs[0].Run()
	if err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if !run.Features.Quiz || run.Params.Prompts["title"] != "Name it" {
		t.Fatalf("flags not applied: %+v", run)
	}

	out, _, err = runCLI(t, []string{"jobs", "list"}, env.server.URL, env.configPath)
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	if !strings.Contains(out, id[:8]) || !strings.Contains(out, "pending") {
		t.Fatalf("list output missing job: %q", out)
	}

	out, _, err = runCLI(t, []string{"jobs", "show", id[:8]}, env.server.URL, env.configPath)
	if err != nil {
		t.Fatalf("jobs show: %v", err)
	}
	if !strings.Contains(out, id) || !strings.Contains(out, "lecture.mp4") {
		t.Fatalf("show output missing details: %q", out)
	}

	out, _, err = runCLI(t, []string{"cancel", id}, env.server.URL, env.configPath)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !strings.Contains(out, "cancelled") {
		t.Fatalf("unexpected cancel output %q", out)
	}

	out, _, err = runCLI(t, []string{"jobs", "clear"}, env.server.URL, env.configPath)
	if err != nil {
		t.Fatalf("jobs clear: %v", err)
	}
	if !strings.Contains(out, "Removed 1") {
		t.Fatalf("unexpected clear output %q", out)
	}
}

func TestCLIJobsFallBackToDatabase(t *testing.T) {
	env := setupCLITestEnv(t, "")
	job, err := env.store.Submit(context.Background(), runspec.New("", runspec.DirectFile("/videos/a.mp4"), runspec.Features{}, runspec.Params{}))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	// Nothing listens on port 1.
	out, _, err := runCLI(t, []string{"jobs", "list"}, "http://127.0.0.1:1", env.configPath)
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	if !strings.Contains(out, job.ID[:8]) || !strings.Contains(out, "daemon not running") {
		t.Fatalf("unexpected offline output %q", out)
	}

	if _, _, err := runCLI(t, []string{"jobs", "watch", job.ID}, "http://127.0.0.1:1", env.configPath); err == nil {
		t.Fatal("watch should require a daemon")
	}
}

func TestCLIRejectsUnknownJob(t *testing.T) {
	env := setupCLITestEnv(t, "")
	if _, _, err := runCLI(t, []string{"jobs", "show", "nope"}, env.server.URL, env.configPath); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTokenCommandMintsVerifiableToken(t *testing.T) {
	env := setupCLITestEnv(t, "mint-secret")
	out, _, err := runCLI(t, []string{"token", "--subject", "ops", "--ttl", "1h"}, "", env.configPath)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	claims, err := api.ParseToken("mint-secret", strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Subject != "ops" {
		t.Fatalf("subject = %q", claims.Subject)
	}
}

func TestRunRefusesWhileDaemonHoldsLock(t *testing.T) {
	env := setupCLITestEnv(t, "")
	lock := flock.New(env.cfg.LockPath())
	if ok, err := lock.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock: %v %v", ok, err)
	}
	defer lock.Unlock()

	_, _, err := runCLI(t, []string{"run", filepath.Join(env.baseDir, "x.mp4")}, "", env.configPath)
	if err == nil || !strings.Contains(err.Error(), "handout submit") {
		t.Fatalf("expected daemon-running error, got %v", err)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "nested", "config.toml")
	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "", "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("unexpected init output %q", out)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, "", ""); err == nil {
		t.Fatal("expected error when config exists")
	}

	configPath := writeTestConfig(t, base, "")
	out, _, err = runCLI(t, []string{"config", "validate"}, "", configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") {
		t.Fatalf("unexpected validate output %q", out)
	}
}

func TestParsePrompts(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "quiz.txt")
	if err := os.WriteFile(file, []byte("from file"), 0o644); err != nil {
		t.Fatal(err)
	}
	prompts, err := parsePrompts([]string{"title=inline", "quiz=@" + file})
	if err != nil {
		t.Fatalf("parsePrompts: %v", err)
	}
	if prompts["title"] != "inline" || prompts["quiz"] != "from file" {
		t.Fatalf("unexpected prompts %v", prompts)
	}
	if _, err := parsePrompts([]string{"missing-separator"}); err == nil {
		t.Fatal("expected error for malformed prompt")
	}
}

func TestLogsCommandFiltersByJob(t *testing.T) {
	env := setupCLITestEnv(t, "")
	logPath := filepath.Join(env.cfg.Paths.LogDir, "handoutd.log")
	body := "{\"msg\":\"queued\",\"job_id\":\"job-a\"}\n{\"msg\":\"queued\",\"job_id\":\"job-b\"}\n"
	if err := os.WriteFile(logPath, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	out, _, err := runCLI(t, []string{"logs", "--job", "job-b"}, "", env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if strings.Contains(out, "job-a") || !strings.Contains(out, "job-b") {
		t.Fatalf("unexpected logs output %q", out)
	}
}

func TestStatusReportsUnreachableDaemonAndWorkDir(t *testing.T) {
	env := setupCLITestEnv(t, "")
	if err := os.MkdirAll(filepath.Join(env.cfg.Paths.WorkDir, "job-1"), 0o755); err != nil {
		t.Fatal(err)
	}
	out, _, err := runCLI(t, []string{"status", "--skip-checks"}, "http://127.0.0.1:1", env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "not reachable") || !strings.Contains(out, "1 jobs") {
		t.Fatalf("unexpected status output %q", out)
	}

	out, _, err = runCLI(t, []string{"status", "--skip-checks"}, env.server.URL, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "running (pid") {
		t.Fatalf("expected daemon section, got %q", out)
	}
}
