package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"handout/internal/config"
)

// Requirement names an external binary and what the pipeline uses it for.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is a Requirement after a PATH lookup. Detail holds the resolved
// location when Available, otherwise the reason it is not.
type Status struct {
	Requirement
	Available bool
	Detail    string
}

// Requirements lists the binaries the pipeline shells out to. Every stage
// has a degraded path without its tool, so all are optional.
func Requirements(cfg *config.Config) []Requirement {
	if cfg == nil {
		return nil
	}
	return []Requirement{
		{"FFmpeg", cfg.FFmpegBinary(), "Frame grabs, audio extraction and segment concatenation", true},
		{"FFprobe", cfg.FFprobeBinary(), "Validates acquired video", true},
		{"Ghostscript", cfg.GhostscriptBinary(), "Handout compression", true},
	}
}

// CheckBinaries resolves each requirement on PATH.
func CheckBinaries(requirements []Requirement) []Status {
	statuses := make([]Status, len(requirements))
	for i, req := range requirements {
		req.Command = strings.TrimSpace(req.Command)
		req.Description = strings.TrimSpace(req.Description)
		statuses[i] = Status{Requirement: req}
		if req.Command == "" {
			statuses[i].Detail = "command not configured"
			continue
		}
		resolved, err := exec.LookPath(req.Command)
		if err != nil {
			statuses[i].Detail = fmt.Sprintf("binary %q not found", req.Command)
			continue
		}
		statuses[i].Available = true
		statuses[i].Detail = resolved
	}
	return statuses
}

// Available reports whether a command resolves on PATH.
func Available(command string) bool {
	if command = strings.TrimSpace(command); command == "" {
		return false
	}
	_, err := exec.LookPath(command)
	return err == nil
}
