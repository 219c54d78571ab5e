package taskrunner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync/atomic"

	"handout/internal/config"
)

// ErrClosed is returned when scheduling on a runner that has been closed.
var ErrClosed = errors.New("task runner closed")

// Task is a unit of work. Its return value is delivered through the Handle.
type Task func(ctx context.Context) (any, error)

// Runner schedules tasks.
type Runner interface {
	// Schedule starts task in the background. It may block while the runner
	// is saturated, and returns early when ctx is done.
	Schedule(ctx context.Context, task Task) (*Handle, error)
	// Running reports how many tasks are currently executing.
	Running() int
	// Capacity reports the maximum number of concurrent tasks.
	Capacity() int
	// Close waits for scheduled tasks and releases resources.
	Close() error
}

// Handle tracks a scheduled task.
type Handle struct {
	done   chan struct{}
	cancel context.CancelFunc
	value  any
	err    error
}

func newHandle(cancel context.CancelFunc) *Handle {
	return &Handle{done: make(chan struct{}), cancel: cancel}
}

// Done is closed once the task has returned.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Cancel cancels the task's context.
func (h *Handle) Cancel() {
	if h.cancel != nil {
		h.cancel()
	}
}

// Result returns the task's outcome. It must only be called after Done is
// closed.
func (h *Handle) Result() (any, error) { return h.value, h.err }

// Await blocks until the task finishes or ctx is done.
func Await(ctx context.Context, h *Handle) (any, error) {
	select {
	case <-h.done:
		return h.value, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ScheduleMany schedules every task and returns their handles in order. If
// scheduling fails part way, the already scheduled tasks keep running and
// their handles are returned alongside the error.
func ScheduleMany(ctx context.Context, r Runner, tasks []Task) ([]*Handle, error) {
	handles := make([]*Handle, 0, len(tasks))
	for _, task := range tasks {
		h, err := r.Schedule(ctx, task)
		if err != nil {
			return handles, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// Completed yields each handle's index as soon as that task finishes, in
// completion order. The channel closes after every handle has finished or
// ctx is done.
func Completed(ctx context.Context, handles []*Handle) <-chan int {
	out := make(chan int, len(handles))
	var remaining atomic.Int32
	remaining.Store(int32(len(handles)))
	if len(handles) == 0 {
		close(out)
		return out
	}
	for i, h := range handles {
		go func() {
			select {
			case <-h.done:
				out <- i
			case <-ctx.Done():
			}
			if remaining.Add(-1) == 0 {
				close(out)
			}
		}()
	}
	return out
}

// New builds the runner selected by backend ("pool" or "group").
func New(backend string, size int) (Runner, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "pool":
		return NewPool(size)
	case "group":
		return NewGroup(size), nil
	default:
		return nil, fmt.Errorf("unknown task runner backend %q", backend)
	}
}

// NewForJobs builds the daemon's job runner from configuration.
func NewForJobs(cfg *config.Config) (Runner, error) {
	return New(cfg.Workers.Backend, cfg.Workers.MaxJobs)
}

// NewForFanout builds the per-job artifact runner from configuration.
func NewForFanout(cfg *config.Config) (Runner, error) {
	return New(cfg.Workers.Backend, cfg.Workers.FanoutSize)
}

// run executes task, recording its result on h and converting panics into
// errors.
func run(ctx context.Context, h *Handle, task Task) {
	defer close(h.done)
	defer func() {
		if r := recover(); r != nil {
			h.value = nil
			h.err = fmt.Errorf("task panicked: %v\n%s", r, debug.Stack())
		}
	}()
	h.value, h.err = task(ctx)
}
