// Package workerpool provides a fixed-size pool of goroutines executing
// queued jobs in FIFO order.
//
// The pool knows nothing about blocks or digests. Callers coordinate
// results themselves; the pool only guarantees that every submitted job is
// either run exactly once or dropped by Stop, and that the first job
// failure is recorded and cancels the pool's context.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	sumerrors "github.com/tamirms/blocksum/errors"
	"golang.org/x/sync/errgroup"
)

// Job is one unit of work. ctx is cancelled once any job of the same run
// fails or the context passed to Start is done.
type Job func(ctx context.Context) error

// Pool runs jobs on a fixed number of worker goroutines.
//
// Thread Safety: Submit is safe for concurrent use. Start and Stop must not
// be called concurrently with each other.
type Pool struct {
	size   int
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond // signalled on new jobs, broadcast on stop/cancel
	queue   []Job
	running bool

	group    *errgroup.Group
	ctx      context.Context
	cancel   context.CancelFunc
	stopWake func() bool // unregisters the cancellation wake-up
}

// New creates a stopped pool. sizeHint <= 0 autodetects the number of
// CPUs, with a minimum of one worker.
func New(sizeHint int, logger *slog.Logger) *Pool {
	size := sizeHint
	if size <= 0 {
		size = max(1, runtime.NumCPU())
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p := &Pool{size: size, logger: logger}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Size returns the number of worker goroutines.
func (p *Pool) Size() int {
	return p.size
}

// Start spawns the workers. Calling Start on a running pool stops it
// first, dropping queued jobs, and starts a fresh run.
func (p *Pool) Start(ctx context.Context) {
	_ = p.Stop()

	p.mu.Lock()
	defer p.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	p.group, p.ctx, p.cancel = g, gctx, cancel
	p.running = true

	// Workers parked on the condition variable must notice cancellation.
	p.stopWake = context.AfterFunc(gctx, func() {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	})

	for range p.size {
		g.Go(func() error {
			return p.worker(gctx)
		})
	}
}

// Submit enqueues job and wakes one idle worker.
func (p *Pool) Submit(job Job) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return sumerrors.ErrPoolStopped
	}
	if err := p.ctx.Err(); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("%w: %w", sumerrors.ErrPoolStopped, err)
	}
	p.queue = append(p.queue, job)
	p.mu.Unlock()

	p.cond.Signal()
	return nil
}

// Stop signals termination, wakes every worker, waits for all of them to
// exit and drops jobs that never started. Jobs already running are allowed
// to finish. Returns the first job failure of the run, if any.
// Stopping a stopped pool is a no-op.
func (p *Pool) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	clear(p.queue)
	p.queue = nil
	g, cancel, stopWake := p.group, p.cancel, p.stopWake
	p.cond.Broadcast()
	p.mu.Unlock()

	err := g.Wait()
	stopWake()
	cancel()
	return err
}

// worker pulls jobs until the pool stops or its context is cancelled.
func (p *Pool) worker(ctx context.Context) error {
	for {
		job, ok := p.next(ctx)
		if !ok {
			return nil
		}
		if err := runJob(ctx, job); err != nil {
			// Jobs cut short by an earlier failure or shutdown are noise.
			if errors.Is(err, context.Canceled) {
				p.logger.Debug("worker pool: job cancelled", "err", err)
			} else {
				p.logger.Error("worker pool: job failed", "err", err)
			}
			return err
		}
	}
}

// next blocks until a job is available. Returns false once the pool is
// stopping or cancelled.
func (p *Pool) next(ctx context.Context) (Job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.running && ctx.Err() == nil && len(p.queue) == 0 {
		p.cond.Wait()
	}
	if !p.running || ctx.Err() != nil {
		return nil, false
	}

	job := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	return job, true
}

// runJob converts a panic inside a job into an error so that one bad job
// fails the run instead of crashing the process.
func runJob(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", sumerrors.ErrJobPanicked, r)
		}
	}()
	return job(ctx)
}
