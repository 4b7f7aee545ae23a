// Package worker provides a bounded goroutine pool for background work that
// outlives a single request, such as the batcher's flush-all.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog/log"
)

// ErrPoolClosed is returned when submitting to a released pool.
var ErrPoolClosed = errors.New("worker pool is closed")

// Task is a context-aware unit of work.
type Task func(ctx context.Context)

// Pool wraps ants.Pool with a service lifecycle context.
type Pool struct {
	pool   *ants.Pool
	name   string
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a pool of the given size. Tasks submitted with SubmitDetached
// receive a context derived from parent that is cancelled on Shutdown.
func New(parent context.Context, name string, size int) (*Pool, error) {
	if size <= 0 {
		size = 64
	}
	ctx, cancel := context.WithCancel(parent)

	p, err := ants.NewPool(size,
		ants.WithPanicHandler(func(r any) {
			log.Error().Str("pool", name).Interface("panic", r).Msg("worker panic recovered")
		}),
		ants.WithNonblocking(false),
		ants.WithExpiryDuration(10*time.Second),
	)
	if err != nil {
		cancel()
		return nil, err
	}
	return &Pool{pool: p, name: name, ctx: ctx, cancel: cancel}, nil
}

// Submit runs task with the caller's context. A context already cancelled
// returns its error without submitting.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := p.pool.Submit(func() {
		if ctx.Err() != nil {
			log.Debug().Str("pool", p.name).Err(ctx.Err()).Msg("task skipped: context cancelled")
			return
		}
		task(ctx)
	})
	if errors.Is(err, ants.ErrPoolClosed) {
		return ErrPoolClosed
	}
	return err
}

// SubmitDetached runs task with the pool's lifecycle context instead of a request context.
func (p *Pool) SubmitDetached(task Task) error {
	return p.Submit(p.ctx, task)
}

// Each runs fn for every item concurrently on the pool and waits for all of them.
// Items that cannot be submitted run on the calling goroutine, so every item
// is handed to fn exactly once.
func Each[T any](ctx context.Context, p *Pool, items []T, fn func(context.Context, T)) {
	var wg sync.WaitGroup
	for _, item := range items {
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			fn(ctx, item)
		})
		if err != nil {
			wg.Done()
			fn(ctx, item)
		}
	}
	wg.Wait()
}

// Shutdown cancels detached tasks and waits for running ones, at most 30s.
func (p *Pool) Shutdown() {
	p.cancel()
	if err := p.pool.ReleaseTimeout(30 * time.Second); err != nil {
		log.Warn().Err(err).Str("pool", p.name).Msg("worker pool shutdown timeout")
	}
}

// Metrics returns pool occupancy for the health endpoint.
func (p *Pool) Metrics() map[string]int {
	return map[string]int{
		"running": p.pool.Running(),
		"free":    p.pool.Free(),
		"cap":     p.pool.Cap(),
	}
}
