package blocksum

import (
	"context"
	"fmt"

	sumerrors "github.com/tamirms/blocksum/errors"
)

// runJob hashes blocks [start, end) and publishes the batch. Any failure,
// including a panic, is reported to the pipeline so that no waiter is left
// hanging on a batch that will never arrive.
func (p *pipeline) runJob(ctx context.Context, start, end int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", sumerrors.ErrJobPanicked, r)
		}
		if err != nil {
			err = fmt.Errorf("%w: blocks [%d, %d): %w", sumerrors.ErrJobFailed, start, end, err)
			p.jobAborted()
			p.fail(err)
		}
	}()

	batch, err := p.hashRange(ctx, start, end)
	if err != nil {
		return err
	}
	p.publish(start, batch)
	return nil
}

// hashRange reads and hashes blocks [start, end) in order with one
// resource-pool entry. The entry is back in the pool before the batch is
// published.
func (p *pipeline) hashRange(ctx context.Context, start, end int) ([]Digest, error) {
	r, err := p.resources.acquire()
	if err != nil {
		return nil, err
	}
	defer p.resources.release(r)

	batch := make([]Digest, 0, end-start)
	for i := start; i < end; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := p.cfg.Limiter.Wait(ctx, i); err != nil {
			return nil, err
		}
		block, err := r.reader.ReadBlock(i)
		if err != nil {
			return nil, err
		}
		batch = append(batch, hashBlock(r.hasher, block))
	}
	return batch, nil
}
