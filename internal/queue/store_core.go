package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"handout/internal/config"
)

// Store persists handout jobs in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// SQLite reports lock contention as SQLITE_BUSY (5, or an extended code
// with 5 in the low byte). Writes back off and retry a few times before
// surfacing it.
const (
	codeBusy     = 5
	busyAttempts = 5
	busyFirstGap = 10 * time.Millisecond
	busyMaxGap   = 200 * time.Millisecond
)

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func busy(err error) bool {
	if err == nil {
		return false
	}
	var coded interface{ Code() int }
	if errors.As(err, &coded) {
		return coded.Code()&0xff == codeBusy
	}
	return strings.Contains(err.Error(), "database is locked")
}

// update runs a write statement and returns the number of rows it touched.
func (s *Store) update(ctx context.Context, query string, args ...any) (int64, error) {
	ctx = orBackground(ctx)
	gap := busyFirstGap
	for attempt := 1; ; attempt++ {
		res, err := s.db.ExecContext(ctx, query, args...)
		if err == nil {
			return res.RowsAffected()
		}
		if !busy(err) || attempt == busyAttempts {
			return 0, err
		}
		timer := time.NewTimer(gap)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, ctx.Err()
		case <-timer.C:
		}
		gap = min(gap*2, busyMaxGap)
	}
}

// Open opens the jobs database under the configured state dir.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.JobsDBPath())
}

// OpenPath opens (creating or migrating when needed) the jobs database at
// dbPath.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open jobs database: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
