package logging

import "strings"

// DefaultProgressStep logs every 5% of a stage.
const DefaultProgressStep = 0.05

// ProgressSampler picks which progress updates deserve a log line: the first
// update of each stage and each crossing of a step boundary. Progress is a
// fraction in [0,1]; a negative fraction means unknown and only stage
// changes are logged. Not safe for concurrent use.
type ProgressSampler struct {
	step     float64
	stage    string
	lastStep int
}

// NewProgressSampler returns a sampler with the given step. Steps outside
// (0,1] fall back to DefaultProgressStep.
func NewProgressSampler(step float64) *ProgressSampler {
	if step <= 0 || step > 1 {
		step = DefaultProgressStep
	}
	return &ProgressSampler{step: step, lastStep: -1}
}

// ShouldLog reports whether this update crosses into a new stage or step.
// A nil sampler logs everything.
func (s *ProgressSampler) ShouldLog(stage string, fraction float64) bool {
	if s == nil {
		return true
	}
	emit := false
	if stage = strings.TrimSpace(stage); stage != "" && stage != s.stage {
		s.stage = stage
		s.lastStep = -1
		emit = true
	}
	if fraction < 0 {
		return emit
	}
	if fraction > 1 {
		fraction = 1
	}
	// The epsilon keeps 0.15/0.05 from landing in step 2.
	step := int(fraction/s.step + 1e-9)
	if step > s.lastStep {
		s.lastStep = step
		emit = true
	}
	return emit
}
