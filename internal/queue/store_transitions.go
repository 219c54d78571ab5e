package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"handout/internal/services"
)

const nonTerminalClause = `status IN ('pending', 'running', 'cancelling')`

// IsCancelling reports whether the orchestrator should stop the job. A job
// that no longer exists counts as cancelled.
func (s *Store) IsCancelling(ctx context.Context, id string) (bool, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if job == nil {
		return true, nil
	}
	return job.Status == StatusCancelling || job.Status == StatusCancelled, nil
}

// UpdateProgress records the current stage and overall fraction. Terminal
// jobs are left untouched.
func (s *Store) UpdateProgress(ctx context.Context, id, stage string, fraction float64, message string) error {
	if _, err := s.update(ctx,
		`UPDATE jobs SET progress_stage = ?, progress_fraction = ?, progress_message = ?, updated_at = ?
         WHERE id = ? AND `+nonTerminalClause,
		nullableString(stage), clampFraction(fraction), nullableString(strings.TrimSpace(message)), timestamp(), id,
	); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// MarkCompleted records the outputs and moves the job to completed.
func (s *Store) MarkCompleted(ctx context.Context, id string, outputs map[string]string) error {
	encoded, err := json.Marshal(outputs)
	if err != nil {
		return fmt.Errorf("encode outputs: %w", err)
	}
	now := timestamp()
	affected, err := s.update(ctx,
		`UPDATE jobs SET status = ?, progress_fraction = 1, progress_stage = 'finalize', progress_message = 'Completed',
             outputs_json = ?, source_id = COALESCE(?, source_id), error_message = NULL, finished_at = ?, updated_at = ?
         WHERE id = ? AND `+nonTerminalClause,
		StatusCompleted, string(encoded), nullableString(outputs["source_id"]), now, now, id,
	)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return s.terminalResult(ctx, affected, id)
}

// MarkFailed moves the job to failed with the supplied message.
func (s *Store) MarkFailed(ctx context.Context, id, message string) error {
	now := timestamp()
	affected, err := s.update(ctx,
		`UPDATE jobs SET status = ?, error_message = ?, progress_message = ?, finished_at = ?, updated_at = ?
         WHERE id = ? AND `+nonTerminalClause,
		StatusFailed, strings.TrimSpace(message), nullableString(strings.TrimSpace(message)), now, now, id,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return s.terminalResult(ctx, affected, id)
}

// MarkCancelled moves the job to cancelled.
func (s *Store) MarkCancelled(ctx context.Context, id string) error {
	now := timestamp()
	affected, err := s.update(ctx,
		`UPDATE jobs SET status = ?, progress_message = 'Cancelled', finished_at = ?, updated_at = ?
         WHERE id = ? AND `+nonTerminalClause,
		StatusCancelled, now, now, id,
	)
	if err != nil {
		return fmt.Errorf("mark cancelled: %w", err)
	}
	return s.terminalResult(ctx, affected, id)
}

// RequestCancel asks for a job to stop. Pending jobs are cancelled at once,
// running jobs move to cancelling, and terminal jobs are left as they are.
// The resulting status is returned.
func (s *Store) RequestCancel(ctx context.Context, id string) (Status, error) {
	now := timestamp()
	if _, err := s.update(ctx,
		`UPDATE jobs SET status = CASE status WHEN ? THEN ? WHEN ? THEN ? ELSE status END,
             finished_at = CASE status WHEN ? THEN ? ELSE finished_at END,
             updated_at = ?
         WHERE id = ?`,
		StatusPending, StatusCancelled,
		StatusRunning, StatusCancelling,
		StatusPending, now,
		now, id,
	); err != nil {
		return "", fmt.Errorf("request cancel: %w", err)
	}
	job, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if job == nil {
		return "", services.Wrap(services.ErrNotFound, "", "cancel", id, ErrJobNotFound)
	}
	return job.Status, nil
}

// ResetStuck resolves jobs left active by a previous daemon: running jobs
// fail and cancelling jobs are cancelled.
func (s *Store) ResetStuck(ctx context.Context) (int64, error) {
	now := timestamp()
	affected, err := s.update(ctx,
		`UPDATE jobs
         SET status = CASE status WHEN ? THEN ? ELSE ? END,
             error_message = CASE status WHEN ? THEN ? ELSE error_message END,
             finished_at = ?, updated_at = ?
         WHERE status IN (?, ?)`,
		StatusRunning, StatusFailed, StatusCancelled,
		StatusRunning, DaemonStopReason,
		now, now,
		StatusRunning, StatusCancelling,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck jobs: %w", err)
	}
	return affected, nil
}

// terminalResult treats a zero-row update on an existing job as a no-op: the
// first terminal state recorded wins.
func (s *Store) terminalResult(ctx context.Context, affected int64, id string) error {
	if affected > 0 {
		return nil
	}
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return services.Wrap(services.ErrNotFound, "", "job store", id, ErrJobNotFound)
	}
	return nil
}
