package api

import (
	"maps"
	"slices"
	"sort"
	"time"

	"handout/internal/deps"
	"handout/internal/queue"
	"handout/internal/runspec"
	"handout/internal/stage"
	"handout/internal/workflow"
)

// FromJob converts a job record to its API representation.
func FromJob(job *queue.Job) Job {
	if job == nil {
		return Job{}
	}
	dto := Job{
		ID:         job.ID,
		Title:      job.Title,
		SourceKind: string(job.SourceKind),
		Source:     job.SourceDisplay,
		SourceID:   job.SourceID,
		Status:     string(job.Status),
		Progress: JobProgress{
			Stage:   job.ProgressStage,
			Percent: job.ProgressPercent * 100,
			Message: job.ProgressMessage,
		},
		ErrorMessage: job.ErrorMessage,
		Outputs:      maps.Clone(job.Outputs),
		CreatedAt:    formatTime(job.CreatedAt),
		UpdatedAt:    formatTime(job.UpdatedAt),
	}
	if job.StartedAt != nil {
		dto.StartedAt = formatTime(*job.StartedAt)
	}
	if job.FinishedAt != nil {
		dto.FinishedAt = formatTime(*job.FinishedAt)
	}
	if dto.Progress.Stage == "" && job.Status == queue.StatusPending {
		dto.Progress.Stage = stage.Acquire
		dto.Progress.Message = "Waiting for a worker"
	}
	if run, err := job.Run(); err == nil {
		dto.Features = run.Features.Enabled()
		if run.Features.Refine {
			dto.Features = append(dto.Features, runspec.FeatureRefine)
		}
		dto.SlideCount = len(run.Slides)
		dto.CaptionCount = len(run.Captions)
		dto.DocumentPages = run.PageCount
	}
	return dto
}

// FromJobs converts job records into API DTOs.
func FromJobs(jobs []*queue.Job) []Job {
	if len(jobs) == 0 {
		return nil
	}
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

// SortJobsNewestFirst orders jobs by CreatedAt descending, breaking ties by ID.
func SortJobsNewestFirst(jobs []Job) []Job {
	if len(jobs) == 0 {
		return nil
	}
	sorted := slices.Clone(jobs)
	sort.SliceStable(sorted, func(i, j int) bool {
		ti, tj := ParseTime(sorted[i].CreatedAt), ParseTime(sorted[j].CreatedAt)
		if ti.Equal(tj) {
			return sorted[i].ID > sorted[j].ID
		}
		return ti.After(tj)
	})
	return sorted
}

// ParseTime parses an API timestamp. Unparseable values yield the zero time.
func ParseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{dateTimeFormat, time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// MergeJobStats returns counts for every known status, including zeros.
func MergeJobStats(stats map[queue.Status]int) map[string]int {
	out := make(map[string]int, len(queue.AllStatuses()))
	for _, status := range queue.AllStatuses() {
		out[string(status)] = stats[status]
	}
	return out
}

// FromStatusSummary converts the orchestrator summary.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	active := slices.Clone(summary.ActiveJobs)
	if active == nil {
		active = []string{}
	}
	return WorkflowStatus{
		ActiveJobs:  active,
		Capacity:    summary.Capacity,
		JobStats:    MergeJobStats(summary.JobStats),
		LastJobID:   summary.LastJobID,
		LastError:   summary.LastError,
		StageHealth: StageHealthSlice(summary.StageHealth),
	}
}

// StageHealthSlice orders stage health by pipeline position.
func StageHealthSlice(health map[string]stage.Health) []StageHealth {
	out := make([]StageHealth, 0, len(health))
	for _, name := range stage.Ordered() {
		h, ok := health[name]
		if !ok {
			continue
		}
		out = append(out, StageHealth{Name: name, Ready: h.Ready, Detail: h.Detail})
	}
	return out
}

// FromDependencies converts binary availability checks.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, 0, len(statuses))
	for _, dep := range statuses {
		out = append(out, DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		})
	}
	return out
}
