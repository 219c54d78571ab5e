package logging_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"handout/internal/config"
	"handout/internal/logging"
	"handout/internal/services"
)

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")

	logger, err := logging.New(logging.Options{
		Format:  "console",
		Level:   "info",
		Outputs: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")

	logger, err := logging.New(logging.Options{
		Format:  "console",
		Level:   "debug",
		Outputs: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message with caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "logger_test.go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestJSONLoggerIncludesContextFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")

	logger, err := logging.New(logging.Options{
		Format:  "json",
		Level:   "info",
		Outputs: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithJobID(context.Background(), "job-42")
	ctx = services.WithStage(ctx, "acquire")
	ctx = services.WithRequestID(ctx, "req-1")
	ctx = services.WithSourceID(ctx, "delivery-9")
	logging.WithContext(ctx, logger).Info("stage started", logging.String(logging.FieldEventType, "stage_start"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(content))), &entry); err != nil {
		t.Fatalf("decode json log: %v (%q)", err, content)
	}
	for key, want := range map[string]string{
		"job_id":         "job-42",
		"stage":          "acquire",
		"correlation_id": "req-1",
		"source_id":      "delivery-9",
		"event_type":     "stage_start",
		"level":          "info",
	} {
		if got, _ := entry[key].(string); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "warn.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Outputs: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.WarnWithContext(logger, "cache write failed", "cache_degraded")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	text := string(content)
	for _, want := range []string{"event_type=cache_degraded", "error_hint=", "impact="} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in %q", want, text)
		}
	}
}

func TestForStageAppliesOverride(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "stage.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", Outputs: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	cfg := config.Default()
	cfg.Logging.StageOverrides = map[string]string{"deduplicate-frames": "warn"}

	quiet := logging.ForStage(logger, &cfg, "deduplicate-frames")
	quiet.Info("suppressed")
	logging.ForStage(logger, &cfg, "acquire").Info("visible")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), "suppressed") {
		t.Fatalf("expected override to suppress info, got %q", content)
	}
	if !strings.Contains(string(content), "visible") {
		t.Fatalf("expected other stages unaffected, got %q", content)
	}
}

func TestPruneLogsRemovesExpiredRunLogs(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, age time.Duration) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		stamp := time.Now().Add(-age)
		if err := os.Chtimes(path, stamp, stamp); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
		return path
	}
	oldDaemon := write("handoutd-20260101.log", 240*time.Hour)
	oldRun := write("handout-run-20260101.log", 240*time.Hour)
	current := write("handoutd-20260102.log", 240*time.Hour)
	fresh := write("handoutd-20260110.log", time.Hour)
	other := write("notes.txt", 240*time.Hour)

	patterns := []string{"handoutd-*.log", "handout-run-*.log"}
	if n := logging.PruneLogs(logging.NewNop(), dir, 0, patterns); n != 0 {
		t.Fatalf("zero retention must not prune, removed %d", n)
	}
	if n := logging.PruneLogs(logging.NewNop(), dir, 5, patterns, current); n != 2 {
		t.Fatalf("expected 2 removed, got %d", n)
	}
	for _, gone := range []string{oldDaemon, oldRun} {
		if _, err := os.Stat(gone); !os.IsNotExist(err) {
			t.Fatalf("expected %s removed, stat err=%v", gone, err)
		}
	}
	for _, kept := range []string{current, fresh, other} {
		if _, err := os.Stat(kept); err != nil {
			t.Fatalf("expected %s kept: %v", kept, err)
		}
	}
}

func TestConsoleLoggerPrefixesJobAndStage(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "prefix.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Outputs: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := services.WithStage(services.WithJobID(context.Background(), "job-7"), "render-document")
	logging.WithContext(ctx, logging.NewComponentLogger(logger, "workflow")).Info("stage started", logging.Int("slides", 3))
	logging.NewComponentLogger(logger, "daemon").Info("listening")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", content)
	}
	if !strings.Contains(lines[0], "INFO workflow [job-7/render-document]: stage started slides=3") {
		t.Fatalf("unexpected prefixed line %q", lines[0])
	}
	if strings.Contains(lines[0], "job_id=") {
		t.Fatalf("job id should only appear in the prefix: %q", lines[0])
	}
	if !strings.Contains(lines[1], "INFO daemon: listening") {
		t.Fatalf("unexpected plain line %q", lines[1])
	}
}

func TestConsoleLoggerFlattensGroupsAndQuotes(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "groups.log")
	logger, err := logging.New(logging.Options{Level: "info", Outputs: []string{logPath, logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.WithGroup("http").With(logging.String("method", "POST")).Info("request",
		logging.String("path", "/api/jobs"), logging.String("title", "renal physiology"), logging.String("empty", ""))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := strings.TrimSpace(string(content))
	if strings.Count(line, "\n") != 0 {
		t.Fatalf("duplicate outputs should be written once, got %q", content)
	}
	for _, want := range []string{`http.method=POST`, `http.path=/api/jobs`, `http.title="renal physiology"`, `http.empty=""`} {
		if !strings.Contains(line, want) {
			t.Errorf("expected %q in %q", want, line)
		}
	}
}
