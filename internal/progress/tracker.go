package progress

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"handout/internal/logging"
	"handout/internal/stage"
)

// beforeCompletion caps overall progress until finalize completes.
const beforeCompletion = 0.999

// Store persists the latest progress of a job.
type Store interface {
	UpdateProgress(ctx context.Context, id, stage string, fraction float64, message string) error
}

// Tracker aggregates weighted stage progress for one job.
type Tracker struct {
	jobID     string
	store     Store
	publisher Publisher
	logger    *slog.Logger

	mu        sync.Mutex
	completed map[string]bool
	done      float64
	last      float64
	stage     string
}

// NewTracker builds a tracker. store and publisher may be nil.
func NewTracker(jobID string, store Store, publisher Publisher, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = logging.NewNop()
	}
	if publisher == nil {
		publisher = Discard{}
	}
	return &Tracker{
		jobID:     jobID,
		store:     store,
		publisher: publisher,
		logger:    logger,
		completed: make(map[string]bool),
	}
}

// Value returns the last reported overall fraction.
func (t *Tracker) Value() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Begin marks a stage as active.
func (t *Tracker) Begin(ctx context.Context, name string) float64 {
	return t.Report(ctx, name, 0, name+" started")
}

// Report records local progress for the active stage and returns the overall
// fraction. Values never go backwards.
func (t *Tracker) Report(ctx context.Context, name string, local float64, message string) float64 {
	t.mu.Lock()
	t.stage = name
	overall := t.done
	if !t.completed[name] {
		overall += Weight(name) * clamp(local)
	}
	overall = clamp(overall)
	if overall > beforeCompletion {
		overall = beforeCompletion
	}
	if overall < t.last {
		overall = t.last
	}
	t.last = overall
	t.mu.Unlock()

	t.emit(ctx, name, overall, message, "running")
	return overall
}

// Complete adds the full weight of a stage. Completing finalize pins the
// overall fraction to exactly 1.0.
func (t *Tracker) Complete(ctx context.Context, name string) float64 {
	t.mu.Lock()
	if !t.completed[name] {
		t.completed[name] = true
		t.done += Weight(name)
	}
	overall := clamp(t.done)
	if name == stage.Finalize {
		overall = 1
	} else if overall > beforeCompletion {
		overall = beforeCompletion
	}
	if overall < t.last {
		overall = t.last
	}
	t.last = overall
	t.mu.Unlock()

	t.emit(ctx, name, overall, name+" completed", "running")
	return overall
}

// Reporter adapts the tracker to a stage-local reporter for one stage.
func (t *Tracker) Reporter(name string) stage.Reporter {
	return func(ctx context.Context, fraction float64, message string) {
		t.Report(ctx, name, fraction, message)
	}
}

// Finish publishes the terminal status. The job store records terminal
// state itself, so only publishers are notified.
func (t *Tracker) Finish(ctx context.Context, status, message string) {
	t.mu.Lock()
	name := t.stage
	value := t.last
	t.mu.Unlock()
	t.publish(ctx, Event{
		JobID:    t.jobID,
		Stage:    name,
		Progress: value,
		Message:  strings.TrimSpace(message),
		Status:   status,
		Time:     time.Now().UTC(),
	})
}

func (t *Tracker) emit(ctx context.Context, name string, overall float64, message, status string) {
	message = strings.TrimSpace(message)
	if t.store != nil {
		if err := t.store.UpdateProgress(ctx, t.jobID, name, overall, message); err != nil {
			logging.WarnWithContext(t.logger, "progress update not persisted", "progress_persist_failed",
				logging.String(logging.FieldJobID, t.jobID),
				logging.String(logging.FieldStage, name),
				logging.Error(err),
				logging.String(logging.FieldImpact, "job status may show stale progress"),
			)
		}
	}
	t.publish(ctx, Event{
		JobID:    t.jobID,
		Stage:    name,
		Progress: overall,
		Message:  message,
		Status:   status,
		Time:     time.Now().UTC(),
	})
}

func (t *Tracker) publish(ctx context.Context, event Event) {
	if err := t.publisher.Publish(ctx, t.jobID, event); err != nil {
		t.logger.Debug("progress publish failed",
			logging.String(logging.FieldJobID, t.jobID),
			logging.Error(err),
		)
	}
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
