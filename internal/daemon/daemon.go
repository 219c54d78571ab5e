package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"handout/internal/api"
	"handout/internal/config"
	"handout/internal/logging"
	"handout/internal/preflight"
	"handout/internal/progress"
	"handout/internal/queue"
	"handout/internal/workdir"
	"handout/internal/workflow"
)

// ErrAlreadyRunning is returned when another daemon holds the lock.
var ErrAlreadyRunning = errors.New("another handout daemon instance is already running")

// Daemon owns the dispatcher and the HTTP API for one process.
type Daemon struct {
	cfg          *config.Config
	store        *queue.Store
	orchestrator *workflow.Orchestrator
	dispatcher   *workflow.Dispatcher
	events       *progress.SSEPublisher
	logger       *slog.Logger

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	startedAt atomic.Pointer[time.Time]
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	StartedAt    time.Time
	Workflow     workflow.StatusSummary
	JobsDBPath   string
	LockFilePath string
}

// New constructs a daemon. events may be nil, in which case /api/events is
// not served.
func New(cfg *config.Config, store *queue.Store, orchestrator *workflow.Orchestrator, events *progress.SSEPublisher, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || orchestrator == nil {
		return nil, errors.New("daemon requires config, store, and orchestrator")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "daemon")
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:          cfg,
		store:        store,
		orchestrator: orchestrator,
		dispatcher: workflow.NewDispatcher(store, orchestrator, workflow.DispatcherOptions{
			PollInterval: time.Duration(cfg.Workers.PollIntervalSeconds) * time.Second,
		}, logger),
		events:   events,
		logger:   logger,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Run acquires the instance lock, recovers stuck jobs and serves until ctx
// is cancelled. Jobs interrupted by shutdown are recovered by the next Run.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("daemon already running")
	}
	defer d.running.Store(false)

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release daemon lock",
				logging.Error(err),
				logging.String(logging.FieldEventType, "lock_release_failed"),
				logging.String(logging.FieldErrorHint, "remove the lock file if the next start fails"),
			)
		}
	}()

	now := time.Now().UTC()
	d.startedAt.Store(&now)
	d.recoverStuckJobs(ctx)
	d.sweepWorkDirs(ctx)
	d.logPreflight(ctx)

	server, err := newAPIServer(d.cfg.API.Bind, d, d.logger)
	if err != nil {
		return err
	}

	d.logger.Info("handout daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("lock", d.lockPath),
		logging.String("api_bind", d.cfg.API.Bind),
		logging.Bool("api_auth", d.authEnabled()),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return d.dispatcher.Run(groupCtx) })
	group.Go(func() error { return server.serve(groupCtx) })
	err = group.Wait()
	if d.events != nil {
		d.events.Close()
	}
	d.logger.Info("handout daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
	return err
}

func (d *Daemon) recoverStuckJobs(ctx context.Context) {
	reset, err := d.store.ResetStuck(ctx)
	if err != nil {
		d.logger.Error("failed to recover stuck jobs",
			logging.Error(err),
			logging.String(logging.FieldEventType, "stuck_recovery_failed"),
			logging.String(logging.FieldErrorHint, "check job database access"),
		)
		return
	}
	if reset > 0 {
		d.logger.Warn("recovered jobs left active by a previous daemon",
			logging.Int64("jobs", reset),
			logging.String(logging.FieldEventType, "stuck_jobs_recovered"),
			logging.String(logging.FieldImpact, "interrupted jobs were failed or cancelled; resubmit to retry"),
		)
	}
}

// sweepWorkDirs drops job scratch directories that outlived the stage cache.
// Cached frame lists point into them, so nothing older is reusable.
func (d *Daemon) sweepWorkDirs(ctx context.Context) {
	queued, err := d.store.List(ctx, queue.StatusPending, queue.StatusRunning, queue.StatusCancelling)
	if err != nil {
		d.logger.Warn("skipping work directory sweep",
			logging.Error(err),
			logging.String(logging.FieldEventType, "workdir_cleanup_skipped"),
		)
		return
	}
	keep := make(map[string]struct{}, len(queued))
	for _, job := range queued {
		keep[job.ID] = struct{}{}
	}
	workdir.CleanStale(ctx, d.cfg.Paths.WorkDir, d.cfg.CacheTTL(), keep, d.logger)
}

func (d *Daemon) logPreflight(ctx context.Context) {
	for _, result := range preflight.Failed(preflight.RunAll(ctx, d.cfg)) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "jobs depending on this check may fail"),
		)
	}
	for _, dep := range preflight.CheckSystemDeps(d.cfg) {
		if !dep.Available {
			d.logger.Info("optional binary missing",
				logging.String(logging.FieldEventType, "dependency_missing"),
				logging.String("binary", dep.Command),
				logging.String("detail", dep.Detail),
			)
		}
	}
}

func (d *Daemon) authEnabled() bool {
	return strings.TrimSpace(d.cfg.API.TokenSecret) != ""
}

// Submit validates a request and queues the job.
func (d *Daemon) Submit(ctx context.Context, req api.SubmitRequest) (*queue.Job, error) {
	run, err := req.Run(d.cfg.Artifacts)
	if err != nil {
		return nil, err
	}
	job, err := d.store.Submit(ctx, run)
	if err != nil {
		return nil, err
	}
	d.logger.Info("job submitted",
		logging.String(logging.FieldEventType, "job_submitted"),
		logging.String(logging.FieldJobID, job.ID),
		logging.String("source", job.SourceDisplay),
	)
	d.dispatcher.Notify()
	return job, nil
}

// Cancel requests cancellation of a job.
func (d *Daemon) Cancel(ctx context.Context, id string) (queue.Status, error) {
	return d.orchestrator.Cancel(ctx, id)
}

// ListJobs returns jobs filtered by optional statuses.
func (d *Daemon) ListJobs(ctx context.Context, statuses []queue.Status) ([]*queue.Job, error) {
	return d.store.List(ctx, statuses...)
}

// Job returns one job, or nil.
func (d *Daemon) Job(ctx context.Context, id string) (*queue.Job, error) {
	return d.store.Get(ctx, id)
}

// ClearFinished removes terminal jobs.
func (d *Daemon) ClearFinished(ctx context.Context) (int64, error) {
	return d.store.ClearFinished(ctx)
}

// DatabaseHealth returns database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (queue.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.orchestrator.Status(ctx),
		JobsDBPath:   d.store.Path(),
		LockFilePath: d.lockPath,
	}
	if started := d.startedAt.Load(); started != nil {
		status.StartedAt = *started
	}
	return status
}
