package taskrunner

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Group runs tasks through an errgroup with a concurrency limit. Task errors
// stay in their handles so one failure does not stop the others.
type Group struct {
	group   errgroup.Group
	gate    *gate
	limit   int
	running atomic.Int32
}

// NewGroup creates a group runner that executes at most limit tasks at once.
func NewGroup(limit int) *Group {
	if limit <= 0 {
		limit = 1
	}
	return &Group{gate: newGate(limit), limit: limit}
}

// Schedule implements Runner. It waits for a free slot, for ctx, or for
// Close.
func (g *Group) Schedule(ctx context.Context, task Task) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	taskCtx, cancel := context.WithCancel(ctx)
	h := newHandle(cancel)
	err := g.gate.enter(ctx, func() error {
		g.group.Go(func() error {
			g.running.Add(1)
			defer g.running.Add(-1)
			defer g.gate.leave()
			defer cancel()
			run(taskCtx, h, task)
			return nil
		})
		return nil
	})
	if err != nil {
		cancel()
		return nil, err
	}
	return h, nil
}

// Running implements Runner.
func (g *Group) Running() int { return int(g.running.Load()) }

// Capacity implements Runner.
func (g *Group) Capacity() int { return g.limit }

// Close implements Runner.
func (g *Group) Close() error {
	g.gate.close()
	return g.group.Wait()
}
