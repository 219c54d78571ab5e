package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"handout/internal/runspec"
	"handout/internal/services"
)

// ErrJobNotFound indicates the requested job does not exist.
var ErrJobNotFound = errors.New("job not found")

// Submit validates the run's source and inserts a pending job. A job ID is
// assigned when the run does not carry one.
func (s *Store) Submit(ctx context.Context, run runspec.Run) (*Job, error) {
	if err := run.Source.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(run.JobID) == "" {
		run.JobID = uuid.NewString()
	}
	if run.Version == 0 {
		run.Version = runspec.CurrentVersion
	}
	encoded, err := run.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode run: %w", err)
	}

	now := timestamp()
	if _, err := s.update(
		ctx,
		`INSERT INTO jobs (
            id, title, source_kind, source_display, source_id, status,
            progress_fraction, run_data, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		run.JobID,
		nullableString(run.Title),
		string(run.Source.Kind),
		nullableString(run.Source.Display()),
		nullableString(run.SourceID),
		StatusPending,
		encoded,
		now,
		now,
	); err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return s.Get(ctx, run.JobID)
}

// Get fetches a job by identifier. A missing job yields (nil, nil).
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(orBackground(ctx), `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns jobs ordered by creation time, optionally filtered by status.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY rowid`

	rows, err := s.db.QueryContext(orBackground(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// NextPending claims the oldest pending job by moving it to running. It
// returns (nil, nil) when nothing is waiting.
func (s *Store) NextPending(ctx context.Context) (*Job, error) {
	ctx = orBackground(ctx)
	for {
		var id string
		err := s.db.QueryRowContext(ctx,
			`SELECT id FROM jobs WHERE status = ? ORDER BY rowid LIMIT 1`,
			StatusPending,
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("select pending job: %w", err)
		}

		claimed, err := s.claim(ctx, id)
		if err != nil {
			return nil, err
		}
		if !claimed {
			// Lost the race to another claimer or a cancel; look again.
			continue
		}
		return s.Get(ctx, id)
	}
}

// Claim moves one pending job to running. It fails when the job does not
// exist or is no longer pending.
func (s *Store) Claim(ctx context.Context, id string) (*Job, error) {
	claimed, err := s.claim(orBackground(ctx), id)
	if err != nil {
		return nil, err
	}
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, services.Wrap(services.ErrNotFound, "", "claim", id, ErrJobNotFound)
	}
	if !claimed {
		return nil, services.Wrap(services.ErrValidation, "", "claim", fmt.Sprintf("job %s is %s, not pending", id, job.Status), nil)
	}
	return job, nil
}

func (s *Store) claim(ctx context.Context, id string) (bool, error) {
	now := timestamp()
	affected, err := s.update(ctx,
		`UPDATE jobs SET status = ?, started_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		StatusRunning, now, now, id, StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	return affected > 0, nil
}

// SaveRun persists the latest run envelope together with its title and
// source identity so job listings reflect pipeline progress.
func (s *Store) SaveRun(ctx context.Context, run runspec.Run) error {
	encoded, err := run.Encode()
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}
	affected, err := s.update(ctx,
		`UPDATE jobs SET run_data = ?, title = COALESCE(?, title), source_id = COALESCE(?, source_id), updated_at = ?
         WHERE id = ?`,
		encoded, nullableString(run.Title), nullableString(run.SourceID), timestamp(), run.JobID,
	)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return requireAffected(affected, run.JobID)
}

func requireAffected(affected int64, id string) error {
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "", "job store", id, ErrJobNotFound)
	}
	return nil
}
