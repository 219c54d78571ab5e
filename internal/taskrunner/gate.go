package taskrunner

import (
	"context"
	"sync"
)

// gate bounds concurrent tasks and decides whether a runner still accepts
// work. Admission happens under mu, so nothing is added once close has run.
type gate struct {
	slots  chan struct{}
	done   chan struct{}
	mu     sync.Mutex
	closed bool
}

func newGate(size int) *gate {
	return &gate{slots: make(chan struct{}, size), done: make(chan struct{})}
}

// enter waits for a free slot and then calls admit. It gives up when ctx is
// done or the gate closes. The slot is released again if admit fails.
func (g *gate) enter(ctx context.Context, admit func() error) error {
	select {
	case g.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-g.done:
		return ErrClosed
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		<-g.slots
		return ErrClosed
	}
	if err := admit(); err != nil {
		<-g.slots
		return err
	}
	return nil
}

// leave frees the slot taken by enter.
func (g *gate) leave() { <-g.slots }

// close stops admission. It reports false when the gate was already closed.
func (g *gate) close() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	g.closed = true
	close(g.done)
	return true
}
