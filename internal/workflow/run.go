package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"handout/internal/ai"
	"handout/internal/fileutil"
	"handout/internal/logging"
	"handout/internal/progress"
	"handout/internal/runspec"
	"handout/internal/services"
	"handout/internal/stage"
)

// Run executes every stage for run on the calling goroutine. It returns nil
// when the job completed, ErrCancelled when it was cancelled, and a
// *PipelineFailure when a stage failed. The same outcome is recorded in the
// job store.
func (o *Orchestrator) Run(ctx context.Context, run runspec.Run) error {
	if run.JobID == "" {
		return services.Wrap(services.ErrValidation, "", "run", "job id is required", nil)
	}
	ctx = services.WithJobID(ctx, run.JobID)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	ctx = services.WithSourceID(ctx, run.SourceID)
	logger := logging.WithContext(ctx, o.logger)
	tracker := progress.NewTracker(run.JobID, o.store, o.publisher, o.logger)

	started := time.Now()
	logger.Info("job started",
		logging.String(logging.FieldEventType, "job_start"),
		logging.String("source", run.Source.Display()),
		logging.String("features", joinFeatures(run.Features)),
	)

	// A compressed document from the cache only matches a cached render.
	rendered := false
	for _, name := range stage.Ordered() {
		if o.cancelRequested(ctx, logger, run.JobID) {
			return o.stopped(ctx, tracker, run, name)
		}
		if name == stage.Finalize {
			break
		}
		reuse := name != stage.CompressDocument || !rendered
		next, restored, err := o.runStage(ctx, tracker, name, run, reuse)
		if err != nil {
			if isCancellation(ctx, err) {
				return o.stopped(ctx, tracker, run, name)
			}
			return o.finishFailed(ctx, tracker, run, name, err)
		}
		if _, known := services.SourceIDFromContext(ctx); !known && next.SourceID != "" {
			ctx = services.WithSourceID(ctx, next.SourceID)
			logger = logging.WithContext(ctx, o.logger)
		}
		if name == stage.RenderDocument && !restored {
			rendered = true
		}
		run = next
		o.saveRun(ctx, logger, run)
	}
	return o.finalize(ctx, tracker, run, started)
}

// runStage executes one stage, or restores it from the cache when reuse
// allows. It reports whether the result came from the cache.
func (o *Orchestrator) runStage(ctx context.Context, tracker *progress.Tracker, name string, run runspec.Run, reuse bool) (runspec.Run, bool, error) {
	stageCtx := services.WithStage(ctx, name)
	logger := logging.WithContext(stageCtx, o.logger)
	tracker.Begin(stageCtx, name)

	cacheable := o.cacheable(name, run)
	if cacheable && reuse {
		if next, ok := o.restore(stageCtx, logger, name, run); ok {
			tracker.Complete(stageCtx, name)
			return next, true, nil
		}
	}

	execCtx, stop := o.watchCancel(stageCtx, run.JobID)
	defer stop()
	started := time.Now()
	logger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))
	patch, err := o.stages.handler(name).Execute(execCtx, run.Clone(), tracker.Reporter(name))
	if err != nil {
		if errors.Is(context.Cause(execCtx), ErrCancelled) {
			return run, false, ErrCancelled
		}
		return run, false, err
	}
	next := run.Clone()
	if err := next.Apply(patch); err != nil {
		return run, false, services.Wrap(services.ErrValidation, name, "merge", "stage output conflicts with the run", err)
	}
	if cacheable && !patch.Empty() {
		o.cache.Set(stageCtx, next.SourceID, cacheKey(name, run), patch)
	}
	tracker.Complete(stageCtx, name)
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("stage_duration", time.Since(started)),
	)
	return next, false, nil
}

// cacheable reports whether name may be served from or stored in the cache
// for this run. Stages whose output depends on per-job prompt overrides or a
// disabled feature are always executed.
func (o *Orchestrator) cacheable(name string, run runspec.Run) bool {
	if o.cache == nil || run.SourceID == "" || !stage.Cacheable(name) {
		return false
	}
	switch name {
	case stage.RefineContent:
		return run.Features.Refine && !run.Params.HasOverride(ai.PromptCleanText)
	case stage.RenderDocument, stage.CompressDocument:
		if run.Features.Refine && run.Params.HasOverride(ai.PromptCleanText) {
			return false
		}
		return !run.Params.HasOverride(ai.PromptTitle)
	default:
		return true
	}
}

// cacheKey separates documents rendered from refined and raw captions.
func cacheKey(name string, run runspec.Run) string {
	if (name == stage.RenderDocument || name == stage.CompressDocument) && run.Features.Refine {
		return name + "+refined"
	}
	return name
}

// restore applies a cached patch. Hits whose files are gone are treated as
// misses.
func (o *Orchestrator) restore(ctx context.Context, logger *slog.Logger, name string, run runspec.Run) (runspec.Run, bool) {
	var patch runspec.Patch
	if !o.cache.GetInto(ctx, run.SourceID, cacheKey(name, run), &patch) || patch.Empty() {
		return run, false
	}
	if !fileutil.FilesExist(patch.Files()...) {
		logger.Info("cached stage output missing files; rerunning",
			logging.String(logging.FieldEventType, "stage_cache_stale"),
		)
		return run, false
	}
	next := run.Clone()
	if err := next.Apply(patch); err != nil {
		logging.WarnWithContext(logger, "cached stage output rejected", "cache_degraded",
			logging.String(logging.FieldErrorHint, "the cache entry belongs to another source"),
			logging.String(logging.FieldImpact, "stage reruns"),
			logging.Error(err),
		)
		return run, false
	}
	logger.Info("stage restored from cache", logging.String(logging.FieldEventType, "stage_cache_hit"))
	return next, true
}

// cancelRequested polls the job store and the context. A store error is
// logged and the run continues; context cancellation still stops it.
func (o *Orchestrator) cancelRequested(ctx context.Context, logger *slog.Logger, jobID string) bool {
	if ctx.Err() != nil {
		return true
	}
	cancelling, err := o.store.IsCancelling(ctx, jobID)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		logging.WarnWithContext(logger, "cancellation check failed", "cancel_check_failed",
			logging.String(logging.FieldErrorHint, "check job database access"),
			logging.String(logging.FieldImpact, "cancellation may be noticed late"),
			logging.Error(err),
		)
		return false
	}
	return cancelling
}

// watchCancel returns a context that is cancelled with ErrCancelled once the
// job store reports a cancellation request. Cancellations made directly in
// the store then reach the per-item checks inside long stages.
func (o *Orchestrator) watchCancel(ctx context.Context, jobID string) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(o.cancelPoll)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				cancelling, err := o.store.IsCancelling(ctx, jobID)
				if err == nil && cancelling {
					cancel(ErrCancelled)
					return
				}
			}
		}
	}()
	return ctx, func() {
		close(done)
		cancel(nil)
	}
}

func (o *Orchestrator) saveRun(ctx context.Context, logger *slog.Logger, run runspec.Run) {
	saver, ok := o.store.(RunSaver)
	if !ok {
		return
	}
	if err := saver.SaveRun(ctx, run); err != nil {
		logger.Debug("run envelope not persisted", logging.Error(err))
	}
}

func (o *Orchestrator) finalize(ctx context.Context, tracker *progress.Tracker, run runspec.Run, started time.Time) error {
	stageCtx := services.WithStage(ctx, stage.Finalize)
	logger := logging.WithContext(stageCtx, o.logger)
	tracker.Begin(stageCtx, stage.Finalize)

	run.SetOutput(runspec.OutputSourceID, run.SourceID)
	if err := o.store.MarkCompleted(context.WithoutCancel(stageCtx), run.JobID, run.Outputs); err != nil {
		return o.finishFailed(ctx, tracker, run, stage.Finalize, err)
	}
	tracker.Complete(stageCtx, stage.Finalize)
	o.saveRun(context.WithoutCancel(stageCtx), logger, run)
	tracker.Finish(stageCtx, "completed", "Completed")

	logger.Info("job completed",
		logging.String(logging.FieldEventType, "job_complete"),
		logging.String("title", run.Title),
		logging.Int("outputs", len(run.Outputs)),
		logging.Duration("job_duration", time.Since(started)),
	)
	o.recordOutcome(run.JobID, nil)
	o.notifyCompleted(context.WithoutCancel(stageCtx), run)
	return nil
}

// stopped resolves a run that must not continue. A daemon shutdown leaves
// the job as it is for stuck-job recovery; anything else is a cancellation.
func (o *Orchestrator) stopped(ctx context.Context, tracker *progress.Tracker, run runspec.Run, name string) error {
	if errors.Is(context.Cause(ctx), ErrShutdown) {
		logging.WithContext(services.WithStage(ctx, name), o.logger).Info("job interrupted by shutdown",
			logging.String(logging.FieldEventType, "job_interrupted"),
		)
		o.recordOutcome(run.JobID, ErrShutdown)
		return ErrShutdown
	}
	return o.finishCancelled(ctx, tracker, run, name)
}

func (o *Orchestrator) finishCancelled(ctx context.Context, tracker *progress.Tracker, run runspec.Run, name string) error {
	ctx = context.WithoutCancel(services.WithStage(ctx, name))
	logger := logging.WithContext(ctx, o.logger)
	if err := o.store.MarkCancelled(ctx, run.JobID); err != nil {
		logger.Warn("failed to record cancellation",
			logging.String(logging.FieldEventType, "cancel_persist_failed"),
			logging.String(logging.FieldErrorHint, "check job database access"),
			logging.Error(err),
		)
	}
	tracker.Finish(ctx, "cancelled", "Cancelled")
	logger.Info("job cancelled", logging.String(logging.FieldEventType, "job_cancelled"))
	o.recordOutcome(run.JobID, ErrCancelled)
	return ErrCancelled
}

// isCancellation reports whether err stems from the run being cancelled
// rather than from the stage itself.
func isCancellation(ctx context.Context, err error) bool {
	if errors.Is(err, ErrCancelled) {
		return true
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return true
	}
	return errors.Is(err, context.Canceled)
}

func joinFeatures(f runspec.Features) string {
	enabled := f.Enabled()
	if f.Refine {
		enabled = append(enabled, runspec.FeatureRefine)
	}
	if len(enabled) == 0 {
		return "none"
	}
	return strings.Join(enabled, ",")
}
