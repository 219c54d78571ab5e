package queue

import (
	"strings"
	"time"

	"handout/internal/runspec"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusRunning    Status = "running"
	StatusCancelling Status = "cancelling"
	StatusCancelled  Status = "cancelled"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// DaemonStopReason is the error message set on jobs that were running when
// the daemon went away.
const DaemonStopReason = "Daemon stopped while the job was running"

var allStatuses = []Status{
	StatusPending,
	StatusRunning,
	StatusCancelling,
	StatusCancelled,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var terminalStatuses = map[Status]struct{}{
	StatusCancelled: {},
	StatusCompleted: {},
	StatusFailed:    {},
}

// DatabaseHealth captures diagnostic information about the jobs database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalJobs        int
	Error            string
}

// HealthSummary describes aggregated job counts per lifecycle group.
type HealthSummary struct {
	Total     int
	Pending   int
	Active    int
	Failed    int
	Cancelled int
	Completed int
}

// Job represents a persisted pipeline run.
type Job struct {
	ID              string
	Title           string
	SourceKind      runspec.SourceKind
	SourceDisplay   string
	SourceID        string
	Status          Status
	ProgressStage   string
	ProgressPercent float64 // fraction in [0,1]
	ProgressMessage string
	ErrorMessage    string
	Outputs         map[string]string
	RunData         string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StartedAt       *time.Time
	FinishedAt      *time.Time
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether no further transitions are expected.
func (s Status) IsTerminal() bool {
	_, ok := terminalStatuses[s]
	return ok
}

// IsActive reports whether the job currently occupies a worker.
func (s Status) IsActive() bool {
	return s == StatusRunning || s == StatusCancelling
}

// Run decodes the persisted run envelope.
func (j Job) Run() (runspec.Run, error) {
	return runspec.Parse(j.RunData)
}
