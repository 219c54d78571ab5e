package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(orBackground(ctx), `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates job state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusRunning, StatusCancelling:
			health.Active += count
		case StatusFailed:
			health.Failed += count
		case StatusCancelled:
			health.Cancelled += count
		case StatusCompleted:
			health.Completed += count
		}
	}
	return health, nil
}

// ClearFinished deletes completed, failed and cancelled jobs and returns how
// many went.
func (s *Store) ClearFinished(ctx context.Context) (int64, error) {
	removed, err := s.update(ctx,
		`DELETE FROM jobs WHERE status IN (?, ?, ?)`,
		StatusCompleted, StatusFailed, StatusCancelled,
	)
	if err != nil {
		return 0, fmt.Errorf("clear finished jobs: %w", err)
	}
	return removed, nil
}

// CheckHealth inspects the database file, its schema and its integrity for
// the status and preflight commands. Failures after the file is found are
// also recorded in DatabaseHealth.Error.
func (s *Store) CheckHealth(ctx context.Context) (health DatabaseHealth, err error) {
	health.DBPath = s.path
	if s.path == "" {
		return health, errors.New("jobs database path is unknown")
	}
	info, statErr := os.Stat(s.path)
	switch {
	case errors.Is(statErr, os.ErrNotExist):
		return health, nil
	case statErr != nil:
		return health, fmt.Errorf("stat jobs database: %w", statErr)
	case info.IsDir():
		return health, fmt.Errorf("jobs database path %q is a directory", s.path)
	}
	health.DatabaseExists = true
	if s.db == nil {
		return health, errors.New("jobs database connection unavailable")
	}

	defer func() {
		if err != nil {
			health.Error = err.Error()
		}
	}()
	ctx, cancel := context.WithTimeout(orBackground(ctx), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return health, fmt.Errorf("ping jobs database: %w", err)
	}
	health.DatabaseReadable = true

	version, err := s.schemaVersion(ctx)
	if err != nil {
		return health, err
	}
	health.SchemaVersion = fmt.Sprintf("%d (latest %d)", version, latestSchemaVersion())

	present, err := s.jobsTableColumns(ctx)
	if err != nil {
		return health, err
	}
	health.TableExists = len(present) > 0
	if health.TableExists {
		health.ColumnsPresent = present
		have := make(map[string]bool, len(present))
		for _, name := range present {
			have[name] = true
		}
		for _, name := range strings.Split(jobColumns, ",") {
			if name = strings.TrimSpace(name); !have[name] {
				health.MissingColumns = append(health.MissingColumns, name)
			}
		}
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM jobs").Scan(&health.TotalJobs); err != nil {
			return health, fmt.Errorf("count jobs: %w", err)
		}
	}

	var verdict string
	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&verdict); err != nil {
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(verdict, "ok")
	return health, nil
}

// jobsTableColumns lists the jobs table's columns; none means no table.
func (s *Store) jobsTableColumns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM pragma_table_info('jobs') ORDER BY cid")
	if err != nil {
		return nil, fmt.Errorf("read jobs columns: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("read jobs columns: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
