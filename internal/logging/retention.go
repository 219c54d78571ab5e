package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// PruneLogs deletes files in dir that match any of patterns and were last
// written more than retentionDays ago. Paths in keep survive regardless of
// age. It returns how many files were removed; retentionDays <= 0 disables
// pruning.
func PruneLogs(logger *slog.Logger, dir string, retentionDays int, patterns []string, keep ...string) int {
	if retentionDays <= 0 || dir == "" || len(patterns) == 0 {
		return 0
	}
	if logger == nil {
		logger = NewNop()
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	kept := make(map[string]struct{}, len(keep))
	for _, path := range keep {
		kept[absPath(path)] = struct{}{}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !matchesAny(entry.Name(), patterns) {
			continue
		}
		path := absPath(filepath.Join(dir, entry.Name()))
		if _, ok := kept[path]; ok {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
				String("path", path),
				Error(err),
				String(FieldErrorHint, "check log_dir ownership"),
				String(FieldImpact, "old log file remains on disk"),
			)
			continue
		}
		removed++
	}
	if removed > 0 {
		logger.Info("old logs pruned",
			Int("files", removed),
			Int("retention_days", retentionDays),
			String(FieldEventType, "log_pruned"),
		)
	}
	return removed
}

func matchesAny(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, err := filepath.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
