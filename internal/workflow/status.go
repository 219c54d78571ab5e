package workflow

import (
	"context"
	"slices"

	"handout/internal/logging"
	"handout/internal/queue"
	"handout/internal/stage"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	ActiveJobs  []string
	Capacity    int
	LastJobID   string
	LastError   string
	JobStats    map[queue.Status]int
	StageHealth map[string]stage.Health
}

type statsReader interface {
	Stats(ctx context.Context) (map[queue.Status]int, error)
}

// Status returns the latest workflow information. Stage health is collected
// from handlers that implement stage.HealthReporter.
func (o *Orchestrator) Status(ctx context.Context) StatusSummary {
	o.mu.Lock()
	lastErr := o.lastErr
	summary := StatusSummary{LastJobID: o.lastJob}
	o.mu.Unlock()

	summary.ActiveJobs = o.Active()
	slices.Sort(summary.ActiveJobs)
	if o.runner != nil {
		summary.Capacity = o.runner.Capacity()
	}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}

	if reader, ok := o.store.(statsReader); ok {
		stats, err := reader.Stats(ctx)
		if err != nil {
			o.logger.Warn("failed to read job stats",
				logging.String(logging.FieldEventType, "job_stats_failed"),
				logging.String(logging.FieldErrorHint, "check job database access"),
				logging.Error(err),
			)
		}
		summary.JobStats = stats
	}

	summary.StageHealth = make(map[string]stage.Health)
	for _, name := range stage.Ordered() {
		if reporter, ok := o.stages.handler(name).(stage.HealthReporter); ok {
			summary.StageHealth[name] = reporter.HealthCheck(ctx)
		}
	}
	return summary
}
