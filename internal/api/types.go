package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a job in a transport-friendly format.
type Job struct {
	ID            string            `json:"id"`
	Title         string            `json:"title,omitempty"`
	SourceKind    string            `json:"sourceKind"`
	Source        string            `json:"source"`
	SourceID      string            `json:"sourceId,omitempty"`
	Status        string            `json:"status"`
	Progress      JobProgress       `json:"progress"`
	ErrorMessage  string            `json:"errorMessage,omitempty"`
	Outputs       map[string]string `json:"outputs,omitempty"`
	Features      []string          `json:"features,omitempty"`
	CreatedAt     string            `json:"createdAt,omitempty"`
	UpdatedAt     string            `json:"updatedAt,omitempty"`
	StartedAt     string            `json:"startedAt,omitempty"`
	FinishedAt    string            `json:"finishedAt,omitempty"`
	SlideCount    int               `json:"slideCount,omitempty"`
	CaptionCount  int               `json:"captionCount,omitempty"`
	DocumentPages int               `json:"documentPages,omitempty"`
}

// JobProgress captures the overall progress of a job.
type JobProgress struct {
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// SubmitRequest is the body of a job submission. Nil feature toggles use the
// daemon's configured defaults.
type SubmitRequest struct {
	Source            SubmitSource      `json:"source"`
	StudyTable        *bool             `json:"studyTable,omitempty"`
	Quiz              *bool             `json:"quiz,omitempty"`
	ConceptMap        *bool             `json:"conceptMap,omitempty"`
	Refine            *bool             `json:"refine,omitempty"`
	Prompts           map[string]string `json:"prompts,omitempty"`
	StudyTableColumns []string          `json:"studyTableColumns,omitempty"`
}

// SubmitSource selects where the video comes from. Kind is one of
// direct_file, remote_url, segmented_stream or authenticated_stream; when it
// is empty the kind is inferred from Path or URL.
type SubmitSource struct {
	Kind       string `json:"kind,omitempty"`
	Path       string `json:"path,omitempty"`
	URL        string `json:"url,omitempty"`
	BaseURL    string `json:"baseUrl,omitempty"`
	Credential string `json:"credential,omitempty"`
	DeliveryID string `json:"deliveryId,omitempty"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// CancelResponse reports the status a job moved to after a cancel request.
type CancelResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ClearResponse reports how many finished jobs were removed.
type ClearResponse struct {
	Removed int64 `json:"removed"`
}

// WorkflowStatus summarizes orchestrator state.
type WorkflowStatus struct {
	ActiveJobs  []string       `json:"activeJobs"`
	Capacity    int            `json:"capacity"`
	JobStats    map[string]int `json:"jobStats"`
	LastJobID   string         `json:"lastJobId,omitempty"`
	LastError   string         `json:"lastError,omitempty"`
	StageHealth []StageHealth  `json:"stageHealth"`
}

// StageHealth mirrors readiness reporting for workflow stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	StartedAt    string             `json:"startedAt,omitempty"`
	JobsDBPath   string             `json:"jobsDbPath"`
	LockFilePath string             `json:"lockFilePath"`
	Workflow     WorkflowStatus     `json:"workflow"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// HealthResponse is the unauthenticated liveness payload.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
