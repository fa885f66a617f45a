package blocksum

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/time/rate"
)

// ReadLimiter caps the aggregate read bandwidth of one run. Every reader
// of the run charges the same limiter; padding is not charged.
//
// A nil *ReadLimiter is unlimited.
type ReadLimiter struct {
	limiter *rate.Limiter
	scheme  SliceScheme
}

// NewReadLimiter returns a limiter allowing bytesPerSec bytes per second
// for blocks of scheme, or nil if bytesPerSec <= 0.
func NewReadLimiter(scheme SliceScheme, bytesPerSec int64) *ReadLimiter {
	if bytesPerSec <= 0 {
		return nil
	}
	// A burst smaller than one block would make WaitN fail outright.
	burst := min(max(bytesPerSec, scheme.BlockSize), math.MaxInt32)
	return &ReadLimiter{
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), int(burst)),
		scheme:  scheme,
	}
}

// Wait blocks until block index may be read or ctx is done. ctx must be
// the context of the job doing the read, so that a failed run releases
// waiters immediately.
func (l *ReadLimiter) Wait(ctx context.Context, index int) error {
	if l == nil || index < 0 || index >= l.scheme.BlockCount {
		return nil
	}
	n := l.scheme.BlockRealSize(index)
	if n <= 0 {
		return nil
	}
	if err := l.limiter.WaitN(ctx, int(min(n, int64(l.limiter.Burst())))); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("read rate limit: %w", err)
	}
	return nil
}
