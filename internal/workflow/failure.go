package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"handout/internal/logging"
	"handout/internal/notifications"
	"handout/internal/progress"
	"handout/internal/runspec"
	"handout/internal/services"
)

func (o *Orchestrator) finishFailed(ctx context.Context, tracker *progress.Tracker, run runspec.Run, name string, stageErr error) error {
	ctx = context.WithoutCancel(services.WithStage(ctx, name))
	logger := logging.WithContext(ctx, o.logger)

	failure := &PipelineFailure{Stage: name, Message: classifyFailure(name, stageErr), Err: stageErr}
	details := services.ErrorDetails(stageErr)
	logger.Error("stage failed",
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.Alert("stage_failure"),
		logging.String("error_kind", details.Kind),
		logging.String(logging.FieldErrorHint, details.Hint),
		logging.String("error_message", failure.Message),
		logging.Error(stageErr),
	)

	if err := o.store.MarkFailed(ctx, run.JobID, failure.Error()); err != nil {
		logger.Error("failed to persist stage failure",
			logging.String(logging.FieldEventType, "failure_persist_failed"),
			logging.String(logging.FieldErrorHint, "check job database access"),
			logging.Error(err),
		)
	}
	tracker.Finish(ctx, "failed", failure.Error())
	o.recordOutcome(run.JobID, failure)
	o.notifyFailed(ctx, run, failure)
	return failure
}

func classifyFailure(name string, err error) string {
	if err == nil {
		return stageFailureMessage(name, "failed without error detail")
	}
	if message := strings.TrimSpace(err.Error()); message != "" {
		return message
	}
	return stageFailureMessage(name, "failed")
}

func stageFailureMessage(name, fallback string) string {
	if name != "" {
		return fmt.Sprintf("%s %s", name, fallback)
	}
	return fmt.Sprintf("workflow %s", fallback)
}

func (o *Orchestrator) notifyCompleted(ctx context.Context, run runspec.Run) {
	o.notify(ctx, notifications.EventJobCompleted, notifications.Payload{
		"job_id":  run.JobID,
		"title":   run.Title,
		"outputs": len(run.Outputs),
	})
}

func (o *Orchestrator) notifyFailed(ctx context.Context, run runspec.Run, failure *PipelineFailure) {
	o.notify(ctx, notifications.EventJobFailed, notifications.Payload{
		"job_id": run.JobID,
		"title":  run.Title,
		"stage":  failure.Stage,
		"error":  failure.Message,
	})
}

func (o *Orchestrator) notify(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := o.notifier.Publish(ctx, event, payload); err != nil {
		logger := logging.WithContext(ctx, o.logger)
		if errors.Is(err, context.Canceled) {
			logger.Debug("shutting down, notification skipped", logging.String("event", string(event)))
			return
		}
		logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}
