package preflight

import (
	"context"
	"strings"

	"handout/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// MinFreeBytes is the free space the work directory needs for a typical
// lecture download plus its frames.
const MinFreeBytes = 2 << 30

// RunAll executes the preflight checks that apply to cfg.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckFreeSpace("Work directory space", cfg.Paths.WorkDir, MinFreeBytes),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	}
	if strings.EqualFold(strings.TrimSpace(cfg.Storage.Backend), "local") || strings.TrimSpace(cfg.Storage.Backend) == "" {
		results = append(results, CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir))
	}

	results = append(results, CheckLLM(ctx, "LLM", cfg.GetLLM()))
	if strings.TrimSpace(cfg.Transcription.APIKey) == "" {
		results = append(results, Result{Name: "Transcription", Detail: "API key missing"})
	} else {
		results = append(results, Result{Name: "Transcription", Passed: true, Detail: "API key configured"})
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
