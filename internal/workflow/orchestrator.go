package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"handout/internal/logging"
	"handout/internal/notifications"
	"handout/internal/progress"
	"handout/internal/queue"
	"handout/internal/runspec"
	"handout/internal/services"
	"handout/internal/stage"
	"handout/internal/stagecache"
	"handout/internal/taskrunner"
)

var (
	// ErrCancelled is the outcome of a run stopped by a cancellation request.
	ErrCancelled = errors.New("job cancelled")
	// ErrShutdown is the cancellation cause the dispatcher uses when the
	// daemon stops. Interrupted jobs are left running for ResetStuck.
	ErrShutdown = errors.New("daemon shutting down")
)

// PipelineFailure reports the stage that stopped a run.
type PipelineFailure struct {
	Stage   string
	Message string
	Err     error
}

func (f *PipelineFailure) Error() string {
	if f.Stage == "" {
		return f.Message
	}
	return fmt.Sprintf("%s: %s", f.Stage, f.Message)
}

func (f *PipelineFailure) Unwrap() error { return f.Err }

// JobStore records job progress and terminal state.
type JobStore interface {
	IsCancelling(ctx context.Context, id string) (bool, error)
	UpdateProgress(ctx context.Context, id, stage string, fraction float64, message string) error
	MarkCompleted(ctx context.Context, id string, outputs map[string]string) error
	MarkFailed(ctx context.Context, id, message string) error
	MarkCancelled(ctx context.Context, id string) error
}

// RunSaver is implemented by stores that persist the run between stages.
type RunSaver interface {
	SaveRun(ctx context.Context, run runspec.Run) error
}

// CancelRequester is implemented by stores that track cancellation requests.
type CancelRequester interface {
	RequestCancel(ctx context.Context, id string) (queue.Status, error)
}

// Stages bundles the handlers the orchestrator runs.
type Stages struct {
	Acquire   stage.Handler
	Captions  stage.Handler
	Frames    stage.Handler
	Refine    stage.Handler
	Render    stage.Handler
	Compress  stage.Handler
	Artifacts stage.Handler
}

func (s Stages) handler(name string) stage.Handler {
	switch name {
	case stage.Acquire:
		return s.Acquire
	case stage.ExtractCaptions:
		return s.Captions
	case stage.DeduplicateFrames:
		return s.Frames
	case stage.RefineContent:
		return s.Refine
	case stage.RenderDocument:
		return s.Render
	case stage.CompressDocument:
		return s.Compress
	case stage.FanOutArtifacts:
		return s.Artifacts
	default:
		return nil
	}
}

func (s Stages) validate() error {
	var missing []string
	for _, name := range stage.Ordered() {
		if name == stage.Finalize {
			continue
		}
		if s.handler(name) == nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return services.Wrap(services.ErrConfiguration, "", "workflow", "missing stage handlers: "+strings.Join(missing, ", "), nil)
	}
	return nil
}

// Orchestrator runs jobs through the pipeline.
type Orchestrator struct {
	store     JobStore
	stages    Stages
	runner    taskrunner.Runner
	cache     *stagecache.Cache
	publisher progress.Publisher
	notifier  notifications.Service
	logger    *slog.Logger

	// cancelPoll is how often a running stage asks the store whether the
	// job was cancelled.
	cancelPoll time.Duration

	mu      sync.Mutex
	active  map[string]*taskrunner.Handle
	lastErr error
	lastJob string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCache enables stage caching.
func WithCache(cache *stagecache.Cache) Option {
	return func(o *Orchestrator) { o.cache = cache }
}

// WithPublisher sets the progress publisher.
func WithPublisher(publisher progress.Publisher) Option {
	return func(o *Orchestrator) {
		if publisher != nil {
			o.publisher = publisher
		}
	}
}

// WithNotifier sets the completion and failure notifier.
func WithNotifier(notifier notifications.Service) Option {
	return func(o *Orchestrator) {
		if notifier != nil {
			o.notifier = notifier
		}
	}
}

// WithCancelPoll sets how often running stages check the job store for a
// cancellation request.
func WithCancelPoll(interval time.Duration) Option {
	return func(o *Orchestrator) {
		if interval > 0 {
			o.cancelPoll = interval
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New builds an orchestrator. runner is only needed for Start; Run executes
// on the caller's goroutine.
func New(store JobStore, stages Stages, runner taskrunner.Runner, opts ...Option) (*Orchestrator, error) {
	if store == nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "workflow", "job store is required", nil)
	}
	if err := stages.validate(); err != nil {
		return nil, err
	}
	o := &Orchestrator{
		store:      store,
		stages:     stages,
		runner:     runner,
		publisher:  progress.Discard{},
		notifier:   notifications.NewService(nil),
		logger:     logging.NewNop(),
		cancelPoll: 500 * time.Millisecond,
		active:     make(map[string]*taskrunner.Handle),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.NewComponentLogger(o.logger, "workflow")
	return o, nil
}

// Start schedules the run on the task runner and returns immediately. The
// outcome is recorded in the job store; the handle's result carries the same
// error Run returns.
func (o *Orchestrator) Start(ctx context.Context, jobID string, run runspec.Run) (*taskrunner.Handle, error) {
	if o.runner == nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "workflow", "no task runner configured", nil)
	}
	if strings.TrimSpace(jobID) == "" {
		return nil, services.Wrap(services.ErrValidation, "", "start", "job id is required", nil)
	}
	run.JobID = jobID

	o.mu.Lock()
	if _, running := o.active[jobID]; running {
		o.mu.Unlock()
		return nil, fmt.Errorf("job %s already running", jobID)
	}
	o.mu.Unlock()

	handle, err := o.runner.Schedule(ctx, func(taskCtx context.Context) (any, error) {
		return nil, o.Run(taskCtx, run)
	})
	if err != nil {
		return nil, fmt.Errorf("schedule job %s: %w", jobID, err)
	}

	o.mu.Lock()
	o.active[jobID] = handle
	o.mu.Unlock()
	go func() {
		<-handle.Done()
		o.mu.Lock()
		if o.active[jobID] == handle {
			delete(o.active, jobID)
		}
		o.mu.Unlock()
	}()
	return handle, nil
}

// Cancel asks the job store to stop the job and cancels its context if it
// is running in this process. The run notices at its next checkpoint.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) (queue.Status, error) {
	var status queue.Status
	if requester, ok := o.store.(CancelRequester); ok {
		var err error
		status, err = requester.RequestCancel(ctx, jobID)
		if err != nil {
			return "", err
		}
	}
	o.mu.Lock()
	handle := o.active[jobID]
	o.mu.Unlock()
	if handle != nil {
		handle.Cancel()
		if status == "" {
			status = queue.StatusCancelling
		}
	}
	return status, nil
}

// Active reports the ids of jobs running in this process.
func (o *Orchestrator) Active() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]string, 0, len(o.active))
	for id := range o.active {
		ids = append(ids, id)
	}
	return ids
}

// Wait blocks until every started job has finished or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	handles := make([]*taskrunner.Handle, 0, len(o.active))
	for _, h := range o.active {
		handles = append(handles, h)
	}
	o.mu.Unlock()
	for _, h := range handles {
		select {
		case <-h.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (o *Orchestrator) recordOutcome(jobID string, err error) {
	o.mu.Lock()
	o.lastJob = jobID
	o.lastErr = err
	o.mu.Unlock()
}
