package logging

import "testing"

func TestNewProgressSamplerDefaultsStep(t *testing.T) {
	for _, step := range []float64{0, -1, 1.5} {
		if got := NewProgressSampler(step).step; got != DefaultProgressStep {
			t.Errorf("NewProgressSampler(%v).step = %v, want default", step, got)
		}
	}
	if got := NewProgressSampler(0.25).step; got != 0.25 {
		t.Errorf("custom step = %v", got)
	}
}

func TestNilSamplerLogsEverything(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog("acquire", 0.5) {
		t.Fatal("nil sampler should log")
	}
}

func TestSamplerLogsStepCrossings(t *testing.T) {
	s := NewProgressSampler(0.1)
	steps := []struct {
		stage    string
		fraction float64
		want     bool
	}{
		{"deduplicate-frames", 0, true},
		{"deduplicate-frames", 0.05, false},
		{"deduplicate-frames", 0.1, true},
		{"deduplicate-frames", 0.19, false},
		{"deduplicate-frames", 0.35, true},
		{"deduplicate-frames", 0.2, false},
		{"deduplicate-frames", 1.2, true},
		{"deduplicate-frames", 1, false},
		{"render-document", 0.01, true},
		{"render-document", -1, false},
	}
	for i, step := range steps {
		if got := s.ShouldLog(step.stage, step.fraction); got != step.want {
			t.Fatalf("step %d (%s %.2f): ShouldLog = %v, want %v", i, step.stage, step.fraction, got, step.want)
		}
	}
}

func TestSamplerUnknownProgressOnlyLogsStageChange(t *testing.T) {
	s := NewProgressSampler(DefaultProgressStep)
	if !s.ShouldLog("acquire", -1) {
		t.Fatal("new stage should log")
	}
	if s.ShouldLog("acquire", -1) {
		t.Fatal("unknown progress in same stage should not log")
	}
	if !s.ShouldLog("acquire", 0) {
		t.Fatal("first known fraction should log")
	}
}
