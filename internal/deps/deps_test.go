package deps

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"handout/internal/config"
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
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}

	if results[1].Available {
		t.Fatalf("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatalf("expected detail message for missing binary")
	}

	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}

	if results[0].Detail != present {
		t.Fatalf("expected resolved path for available dependency, got %q", results[0].Detail)
	}
}

func TestRequirementsAreOptional(t *testing.T) {
	cfg := config.Default()
	reqs := Requirements(&cfg)
	if len(reqs) != 3 {
		t.Fatalf("expected 3 requirements, got %d", len(reqs))
	}
	for _, req := range reqs {
		if !req.Optional {
			t.Fatalf("%s should be optional", req.Name)
		}
	}
	if Requirements(nil) != nil {
		t.Fatal("nil config should yield no requirements")
	}
}

func TestExecRunnerCapturesStdoutAndStderr(t *testing.T) {
	dir := t.TempDir()
	ok := filepath.Join(dir, "ok")
	if err := os.WriteFile(ok, []byte("#!/bin/sh\necho out\necho noise >&2\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	fail := filepath.Join(dir, "fail")
	if err := os.WriteFile(fail, []byte("#!/bin/sh\necho broken pipe >&2\nexit 3\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}

	out, err := ExecRunner{}.Run(context.Background(), ok)
	if err != nil {
		t.Fatalf("run ok: %v", err)
	}
	if strings.TrimSpace(string(out)) != "out" {
		t.Fatalf("stdout should exclude stderr, got %q", out)
	}

	_, err = ExecRunner{}.Run(context.Background(), fail)
	if err == nil || !strings.Contains(err.Error(), "broken pipe") {
		t.Fatalf("expected stderr in error, got %v", err)
	}

	_, err = ExecRunner{}.Run(context.Background(), "clearly-not-present-binary")
	if !IsMissing(err) {
		t.Fatalf("expected missing binary error, got %v", err)
	}
	if Available("clearly-not-present-binary") || !Available(ok) {
		t.Fatal("Available misreports")
	}
}
