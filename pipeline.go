package blocksum

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	sumerrors "github.com/tamirms/blocksum/errors"
	"github.com/tamirms/blocksum/internal/workerpool"
)

// pipeline is one run of the threaded strategy.
//
// The caller's goroutine schedules block-range jobs onto the worker pool,
// workers read and hash their range and park the batch in pending, and a
// writer goroutine drains pending strictly in block order.
//
// Scheduling is throttled twice: at most threads jobs run at once, and
// parked plus in-flight batches never exceed maxPending, which is derived
// from the memory limit.
type pipeline struct {
	cfg    Config
	scheme SliceScheme
	logger *slog.Logger

	threads      int
	blocksPerJob int
	maxPending   int

	workers   *workerpool.Pool
	resources *resourcePool

	mu          sync.Mutex
	slotFreed   *sync.Cond // scheduler: a job finished or a batch was written
	resultReady *sync.Cond // writer: the batch at nextToWrite arrived
	pending     map[int][]Digest
	writing     int // batches taken by the writer but not yet written
	err         error
	cancel      context.CancelFunc

	running     atomic.Int32
	nextToWrite atomic.Int64

	jobs        int
	peakRunning int
	peakPending int
}

func newPipeline(cfg Config, poolSizeHint int, rangeBytes int64) *pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	scheme := cfg.Scheme

	threads := poolSizeHint
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	threads = max(1, min(threads, scheme.BlockCount))
	workers := workerpool.New(threads, logger)
	threads = workers.Size()

	blocksPerJob := int(max(1, min(rangeBytes/scheme.BlockSize, int64(scheme.BlockCount))))

	p := &pipeline{
		cfg:          cfg,
		scheme:       scheme,
		logger:       logger,
		threads:      threads,
		blocksPerJob: blocksPerJob,
		maxPending:   maxPendingBatches(scheme, threads, blocksPerJob, cfg.Hasher.DigestSize(), cfg.MemoryLimit),
		workers:      workers,
		resources:    newResourcePool(cfg.NewReader, cfg.Hasher, threads),
		pending:      make(map[int][]Digest),
	}
	p.slotFreed = sync.NewCond(&p.mu)
	p.resultReady = sync.NewCond(&p.mu)
	return p
}

// maxPendingBatches converts the memory limit into a bound on batches held
// between completion and write. Read buffers are charged first, the rest
// is spent on digests, and half of that is kept as a safety margin.
func maxPendingBatches(scheme SliceScheme, threads, blocksPerJob, digestSize int, limit int64) int {
	buffers := (scheme.BlockSize + scheme.ReadBufferSize) * int64(threads)
	var byMemory int64
	if limit > buffers {
		byMemory = (limit - buffers) / int64(max(1, digestSize))
	}
	maxStored := (int64(threads) + byMemory) / 2
	batches := maxStored / int64(blocksPerJob)
	return int(max(1, min(batches, math.MaxInt32)))
}

// run executes the pipeline to completion or first failure.
func (p *pipeline) run(parent context.Context) (Stats, error) {
	start := time.Now()
	if err := parent.Err(); err != nil {
		return p.stats(start), err
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	p.cancel = cancel
	// Registered on parent: the deferred cancel above must not look like a
	// caller cancellation.
	stopWatch := context.AfterFunc(parent, func() {
		p.fail(context.Cause(parent))
	})
	defer stopWatch()

	p.logger.Debug("pipeline initialised",
		"scheme", p.scheme.String(),
		"threads", p.threads,
		"blocks_per_job", p.blocksPerJob,
		"max_pending_batches", p.maxPending,
		"memory_limit", p.cfg.MemoryLimit,
		"hasher", p.cfg.Hasher.Name(),
	)

	p.workers.Start(ctx)
	var writer sync.WaitGroup
	writer.Go(func() { p.writeLoop(ctx) })

	p.schedule(ctx)
	p.waitForWriter()

	poolErr := p.workers.Stop()
	writer.Wait()
	closeErr := p.resources.close()

	p.mu.Lock()
	err := p.err
	p.mu.Unlock()
	if err == nil {
		err = poolErr
	}
	stats := p.stats(start)
	p.logger.Debug("pipeline finished",
		"jobs", stats.Jobs,
		"peak_running", stats.PeakRunningJobs,
		"peak_pending", stats.PeakPendingBatches,
		"resources", stats.ResourcesCreated,
		"duration", stats.Duration,
		"err", err,
	)
	return stats, errors.Join(err, closeErr)
}

// schedule submits jobs covering [0, BlockCount) in order, waiting for a
// slot before each one. Returns early on failure.
func (p *pipeline) schedule(ctx context.Context) {
	total := p.scheme.BlockCount
	for next := 0; next < total; {
		if !p.waitForSlot() {
			return
		}
		start, end := next, min(next+p.blocksPerJob, total)
		p.logger.Log(ctx, LevelTrace, "job enqueued", "start", start, "end", end)

		err := p.workers.Submit(func(ctx context.Context) error {
			return p.runJob(ctx, start, end)
		})
		if err != nil {
			p.jobAborted()
			p.fail(err)
			return
		}
		next = end
	}
}

// waitForSlot blocks until another job may start and reserves it.
func (p *pipeline) waitForSlot() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.err == nil && !p.hasSlot() {
		p.slotFreed.Wait()
	}
	if p.err != nil {
		return false
	}

	running := int(p.running.Add(1))
	p.jobs++
	p.peakRunning = max(p.peakRunning, running)
	return true
}

// hasSlot must be called with mu held. A running job is counted against
// the pending bound because its batch will land there.
func (p *pipeline) hasSlot() bool {
	running := int(p.running.Load())
	if running >= p.threads {
		return false
	}
	return len(p.pending)+p.writing+running < p.maxPending
}

// waitForWriter blocks until every block is written or the run failed.
func (p *pipeline) waitForWriter() {
	total := int64(p.scheme.BlockCount)
	p.mu.Lock()
	for p.err == nil && p.nextToWrite.Load() < total {
		p.slotFreed.Wait()
	}
	p.mu.Unlock()
}

// publish parks a finished batch and wakes whoever can use it.
func (p *pipeline) publish(start int, batch []Digest) {
	p.mu.Lock()
	p.pending[start] = batch
	p.peakPending = max(p.peakPending, len(p.pending))
	p.running.Add(-1)
	if int64(start) == p.nextToWrite.Load() {
		p.resultReady.Signal()
	}
	p.slotFreed.Signal()
	p.mu.Unlock()

	p.logger.Log(context.Background(), LevelTrace, "job stored", "start", start, "blocks", len(batch))
}

// jobAborted releases the running slot of a job that will never publish.
func (p *pipeline) jobAborted() {
	p.mu.Lock()
	p.running.Add(-1)
	p.slotFreed.Signal()
	p.mu.Unlock()
}

// writeLoop drains pending in block order until every block is written or
// the run fails.
func (p *pipeline) writeLoop(ctx context.Context) {
	total := p.scheme.BlockCount
	for {
		p.mu.Lock()
		next := int(p.nextToWrite.Load())
		batch, ok := p.pending[next]
		for p.err == nil && next < total && !ok {
			p.resultReady.Wait()
			batch, ok = p.pending[next]
		}
		if p.err != nil || next >= total {
			p.mu.Unlock()
			return
		}
		delete(p.pending, next)
		p.writing++
		p.mu.Unlock()

		err := p.writeBatch(next, batch)
		p.logger.Log(ctx, LevelTrace, "batch flushed", "start", next, "blocks", len(batch))

		p.mu.Lock()
		p.writing--
		p.nextToWrite.Store(int64(next + len(batch)))
		p.slotFreed.Signal()
		p.mu.Unlock()

		if err != nil {
			p.fail(err)
			return
		}
	}
}

func (p *pipeline) writeBatch(start int, batch []Digest) error {
	if p.cfg.Writer == nil {
		return nil
	}
	for i, d := range batch {
		if err := p.cfg.Writer.Write(d); err != nil {
			return fmt.Errorf("%w: block %d: %w", sumerrors.ErrWriteFailed, start+i, err)
		}
	}
	return nil
}

// fail records the first failure, cancels outstanding jobs and wakes every
// waiter.
func (p *pipeline) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err == nil {
		p.err = err
		p.cancel()
		p.logger.Debug("pipeline failed", "err", err)
	}
	p.slotFreed.Broadcast()
	p.resultReady.Broadcast()
}

func (p *pipeline) stats(start time.Time) Stats {
	return Stats{
		Blocks:             p.scheme.BlockCount,
		Threads:            p.threads,
		BlocksPerJob:       p.blocksPerJob,
		MaxPendingBatches:  p.maxPending,
		Jobs:               p.jobs,
		PeakRunningJobs:    p.peakRunning,
		PeakPendingBatches: p.peakPending,
		ResourcesCreated:   p.resources.created(),
		Duration:           time.Since(start),
	}
}
