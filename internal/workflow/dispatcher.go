package workflow

import (
	"context"
	"log/slog"
	"time"

	"handout/internal/logging"
	"handout/internal/queue"
)

// Queue is the part of the job store the dispatcher claims work from.
type Queue interface {
	NextPending(ctx context.Context) (*queue.Job, error)
	MarkFailed(ctx context.Context, id, message string) error
}

// DispatcherOptions tunes the polling loop.
type DispatcherOptions struct {
	PollInterval  time.Duration
	RetryInterval time.Duration
	// ShutdownGrace bounds how long Run waits for interrupted jobs to
	// return after the context is cancelled.
	ShutdownGrace time.Duration
}

func (o DispatcherOptions) withDefaults() DispatcherOptions {
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 10 * time.Second
	}
	if o.ShutdownGrace <= 0 {
		o.ShutdownGrace = 15 * time.Second
	}
	return o
}

// Dispatcher claims pending jobs and starts them while the orchestrator has
// free capacity.
type Dispatcher struct {
	queue        Queue
	orchestrator *Orchestrator
	opts         DispatcherOptions
	logger       *slog.Logger
	wake         chan struct{}
}

// NewDispatcher builds a dispatcher.
func NewDispatcher(q Queue, orchestrator *Orchestrator, opts DispatcherOptions, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		queue:        q,
		orchestrator: orchestrator,
		opts:         opts.withDefaults(),
		logger:       logging.NewComponentLogger(logger, "dispatcher"),
		wake:         make(chan struct{}, 1),
	}
}

// Notify wakes the loop early, typically after a submission.
func (d *Dispatcher) Notify() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Run polls for work until ctx is done. Running jobs are then interrupted
// with ErrShutdown and Run waits up to the shutdown grace for them.
func (d *Dispatcher) Run(ctx context.Context) error {
	jobsCtx, stopJobs := context.WithCancelCause(context.WithoutCancel(ctx))
	defer stopJobs(ErrShutdown)

	d.logger.Info("dispatcher started",
		logging.String(logging.FieldEventType, "dispatcher_start"),
		logging.Int("capacity", d.capacity()),
	)
	for {
		if ctx.Err() != nil {
			return d.shutdown(stopJobs)
		}
		if len(d.orchestrator.Active()) >= d.capacity() {
			d.wait(ctx, d.opts.PollInterval)
			continue
		}

		job, err := d.queue.NextPending(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			d.logger.Error("failed to fetch next job",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_fetch_failed"),
				logging.String(logging.FieldErrorHint, "check job database access"),
			)
			d.wait(ctx, d.opts.RetryInterval)
			continue
		}
		if job == nil {
			d.wait(ctx, d.opts.PollInterval)
			continue
		}
		d.start(ctx, jobsCtx, job)
	}
}

func (d *Dispatcher) start(ctx, jobsCtx context.Context, job *queue.Job) {
	logger := d.logger.With(logging.String(logging.FieldJobID, job.ID))
	run, err := job.Run()
	if err == nil {
		_, err = d.orchestrator.Start(jobsCtx, job.ID, run)
	}
	if err == nil {
		logger.Info("job dispatched",
			logging.String(logging.FieldEventType, "job_dispatched"),
			logging.String("source", job.SourceDisplay),
		)
		return
	}
	logger.Error("job could not be started",
		logging.String(logging.FieldEventType, "job_start_failed"),
		logging.String(logging.FieldErrorHint, "resubmit the job"),
		logging.Error(err),
	)
	if markErr := d.queue.MarkFailed(ctx, job.ID, "could not start: "+err.Error()); markErr != nil {
		logger.Error("failed to record start failure", logging.Error(markErr))
	}
}

func (d *Dispatcher) shutdown(stopJobs context.CancelCauseFunc) error {
	active := d.orchestrator.Active()
	d.logger.Info("dispatcher stopping",
		logging.String(logging.FieldEventType, "dispatcher_stop"),
		logging.Int("active_jobs", len(active)),
	)
	stopJobs(ErrShutdown)
	graceCtx, cancel := context.WithTimeout(context.Background(), d.opts.ShutdownGrace)
	defer cancel()
	if err := d.orchestrator.Wait(graceCtx); err != nil {
		d.logger.Warn("jobs still running at shutdown",
			logging.String(logging.FieldEventType, "shutdown_timeout"),
			logging.String(logging.FieldImpact, "interrupted jobs are failed at next start"),
			logging.Int("active_jobs", len(d.orchestrator.Active())),
		)
	}
	return nil
}

func (d *Dispatcher) capacity() int {
	if d.orchestrator.runner == nil {
		return 1
	}
	if c := d.orchestrator.runner.Capacity(); c > 0 {
		return c
	}
	return 1
}

func (d *Dispatcher) wait(ctx context.Context, interval time.Duration) {
	select {
	case <-ctx.Done():
	case <-d.wake:
	case <-time.After(interval):
	}
}
