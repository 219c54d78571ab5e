package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CurrentFile names the pointer the daemon keeps to its active log.
const CurrentFile = "handoutd.log"

const maxLineBytes = 1 << 20

// TailOptions selects what Tail prints.
type TailOptions struct {
	// Lines is how many trailing lines to print first; zero prints none.
	Lines int
	// Match keeps only lines containing it, such as a job id.
	Match  string
	Follow bool
	// Poll is the follow interval; zero means 250ms.
	Poll time.Duration
}

// CurrentPath returns the daemon's active log under logDir.
func CurrentPath(logDir string) string {
	return filepath.Join(logDir, CurrentFile)
}

// Tail writes matching lines of path to emit. Without Follow it returns
// after the initial lines; with Follow it returns when ctx ends, which is
// not reported as an error. A missing file is an error unless following, in
// which case Tail waits for it to appear.
func Tail(ctx context.Context, path string, opts TailOptions, emit func(string)) error {
	if opts.Poll <= 0 {
		opts.Poll = 250 * time.Millisecond
	}
	lines, offset, err := lastLines(path, opts.Lines, opts.Match)
	if err != nil && !(opts.Follow && errors.Is(err, os.ErrNotExist)) {
		return err
	}
	for _, line := range lines {
		emit(line)
	}
	if !opts.Follow {
		return nil
	}

	ticker := time.NewTicker(opts.Poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				offset = 0
				continue
			}
			return fmt.Errorf("stat log: %w", err)
		}
		if info.Size() < offset {
			// Truncated or replaced by a new daemon run.
			offset = 0
		}
		if info.Size() == offset {
			continue
		}
		offset, err = readFrom(path, offset, opts.Match, emit)
		if err != nil {
			return err
		}
	}
}

func lastLines(path string, limit int, match string) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	var ring []string
	if limit > 0 {
		ring = make([]string, 0, limit)
	}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if limit <= 0 {
			continue
		}
		line := scanner.Text()
		if match != "" && !strings.Contains(line, match) {
			continue
		}
		if len(ring) == limit {
			ring = append(ring[:0], ring[1:]...)
		}
		ring = append(ring, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read log: %w", err)
	}
	offset, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, 0, fmt.Errorf("log offset: %w", err)
	}
	return ring, offset, nil
}

// readFrom emits complete lines after offset and returns the offset of the
// first byte not yet consumed. A trailing partial line is left for the next
// poll.
func readFrom(path string, offset int64, match string, emit func(string)) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return offset, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log: %w", err)
	}
	reader := bufio.NewReaderSize(file, 64*1024)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return offset, nil
			}
			return offset, fmt.Errorf("read log: %w", err)
		}
		offset += int64(len(line))
		line = strings.TrimRight(line, "\r\n")
		if match == "" || strings.Contains(line, match) {
			emit(line)
		}
	}
}
