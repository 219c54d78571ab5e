package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"handout/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.API.Bind = "127.0.0.1:0"
	cfgVal.LLM.APIKey = "test"
	cfgVal.Transcription.APIKey = "test"
	cfgVal.Workers.PollIntervalSeconds = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithThreshold overrides the slide similarity threshold.
func WithThreshold(threshold float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.SimilarityThreshold = threshold
	}
}

// WithArtifacts enables the optional artifact kinds on the test config.
func WithArtifacts(studyTable, quiz, conceptMap bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Artifacts.StudyTable = studyTable
		b.cfg.Artifacts.Quiz = quiz
		b.cfg.Artifacts.ConceptMap = conceptMap
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg, ffprobe and gs are
// stubbed. Each stub exits with the supplied script body (exit 0 when blank).
func WithStubbedBinaries(names ...string) ConfigOption {
	return WithStubScript("exit 0", names...)
}

// WithStubScript is WithStubbedBinaries with a custom shell body.
func WithStubScript(body string, names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe", "gs"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\n" + body + "\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// WithMissingTools points every external tool at a name that cannot resolve.
func WithMissingTools() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Tools.FFmpeg = filepath.Join(b.baseDir, "missing", "ffmpeg")
		b.cfg.Tools.FFprobe = filepath.Join(b.baseDir, "missing", "ffprobe")
		b.cfg.Tools.Ghostscript = filepath.Join(b.baseDir, "missing", "gs")
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkDir)
}
