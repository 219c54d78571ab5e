package taskrunner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// Pool runs tasks on an ants worker pool.
type Pool struct {
	pool *ants.Pool
	gate *gate
	wg   sync.WaitGroup
}

// NewPool creates a pool with size workers.
func NewPool(size int) (*Pool, error) {
	if size <= 0 {
		size = 1
	}
	p, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &Pool{pool: p, gate: newGate(size)}, nil
}

// Schedule implements Runner. While every worker is busy it waits for one
// to free up, for ctx, or for Close.
func (p *Pool) Schedule(ctx context.Context, task Task) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	taskCtx, cancel := context.WithCancel(ctx)
	h := newHandle(cancel)
	err := p.gate.enter(ctx, func() error {
		p.wg.Add(1)
		err := p.pool.Submit(func() {
			defer p.wg.Done()
			defer p.gate.leave()
			defer cancel()
			run(taskCtx, h, task)
		})
		if err == nil {
			return nil
		}
		p.wg.Done()
		if errors.Is(err, ants.ErrPoolClosed) {
			return ErrClosed
		}
		return fmt.Errorf("submit task: %w", err)
	})
	if err != nil {
		cancel()
		return nil, err
	}
	return h, nil
}

// Running implements Runner.
func (p *Pool) Running() int { return p.pool.Running() }

// Capacity implements Runner.
func (p *Pool) Capacity() int { return p.pool.Cap() }

// Close implements Runner. It waits for scheduled tasks before releasing
// the workers.
func (p *Pool) Close() error {
	if !p.gate.close() {
		return nil
	}
	p.wg.Wait()
	p.pool.Release()
	return nil
}
