package blocksum

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	sumerrors "github.com/tamirms/blocksum/errors"
)

// Config is everything a Strategy needs for one run.
type Config struct {
	Scheme      SliceScheme
	NewReader   ReaderFactory
	Hasher      *HasherFactory
	Writer      DigestWriter // nil discards digests (benchmarks)
	Limiter     *ReadLimiter // nil => unlimited
	MemoryLimit int64
	Logger      *slog.Logger
}

// Stats describes one completed (or failed) run.
type Stats struct {
	Strategy           string
	Blocks             int
	Threads            int
	BlocksPerJob       int
	MaxPendingBatches  int
	Jobs               int
	PeakRunningJobs    int
	PeakPendingBatches int
	ResourcesCreated   int
	Duration           time.Duration
}

// Strategy hashes every block of cfg.Scheme and hands the digests to
// cfg.Writer in block order.
type Strategy interface {
	Hash(ctx context.Context, cfg Config) (Stats, error)
	// String is a short configuration token used in diagnostics only.
	String() string
}

// contextCheckInterval is how often the sequential strategy checks for
// cancellation, in blocks.
const contextCheckInterval = 64

type sequentialStrategy struct{}

// Sequential returns the single-pass strategy: one reader, one hasher, no
// concurrency.
func Sequential() Strategy {
	return sequentialStrategy{}
}

func (sequentialStrategy) String() string { return "S" }

func (s sequentialStrategy) Hash(ctx context.Context, cfg Config) (stats Stats, err error) {
	start := time.Now()
	stats = Stats{Strategy: s.String(), Blocks: cfg.Scheme.BlockCount, Threads: 1, BlocksPerJob: cfg.Scheme.BlockCount}

	reader, err := cfg.NewReader()
	if err != nil {
		return stats, err
	}
	stats.ResourcesCreated = 1
	defer func() {
		err = errors.Join(err, reader.Close())
		stats.Duration = time.Since(start)
	}()

	h := cfg.Hasher.New()
	for i := range cfg.Scheme.BlockCount {
		if i%contextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
		}
		if err := cfg.Limiter.Wait(ctx, i); err != nil {
			return stats, err
		}
		block, err := reader.ReadBlock(i)
		if err != nil {
			return stats, err
		}
		d := hashBlock(h, block)
		if cfg.Writer != nil {
			if err := cfg.Writer.Write(d); err != nil {
				return stats, fmt.Errorf("%w: block %d: %w", sumerrors.ErrWriteFailed, i, err)
			}
		}
	}
	return stats, nil
}

type threadedStrategy struct {
	poolSizeHint int
	rangeBytes   int64
}

// Threaded returns the pipelined strategy.
//
// poolSizeHint is the worker count (0 => number of CPUs); rangeBytes is the
// contiguous byte range each job hashes (0 => read buffer size, or
// DefaultJobRange when that is unset too).
func Threaded(poolSizeHint int, rangeBytes int64) Strategy {
	return threadedStrategy{poolSizeHint: max(0, poolSizeHint), rangeBytes: max(0, rangeBytes)}
}

func (t threadedStrategy) String() string {
	return fmt.Sprintf("T:%d:%d", t.poolSizeHint, t.rangeBytes)
}

func (t threadedStrategy) Hash(ctx context.Context, cfg Config) (Stats, error) {
	rangeBytes := t.rangeBytes
	if rangeBytes == 0 {
		rangeBytes = cfg.Scheme.ReadBufferSize
	}
	if rangeBytes == 0 {
		rangeBytes = DefaultJobRange
	}
	p := newPipeline(cfg, t.poolSizeHint, rangeBytes)
	stats, err := p.run(ctx)
	stats.Strategy = t.String()
	return stats, err
}

// ParseStrategy parses a forced-strategy symbol:
//
//	""               automatic choice (returns nil)
//	"S"              single pass
//	"T"              threaded with defaults
//	"T<d>"           threaded with d workers (0 => auto)
//	"T<d><size>"     threaded with d workers and a per-job range, e.g. "T48M"
//
// This is a debugging knob; the worker count is limited to one digit.
func ParseStrategy(symbol string) (Strategy, error) {
	switch symbol {
	case "":
		return nil, nil
	case "S":
		return Sequential(), nil
	case "T":
		return Threaded(0, 0), nil
	}
	if len(symbol) < 2 || symbol[0] != 'T' || symbol[1] < '0' || symbol[1] > '9' {
		return nil, fmt.Errorf("%w: %q", sumerrors.ErrUnknownStrategy, symbol)
	}
	threads := int(symbol[1] - '0')
	var rangeBytes int64
	if len(symbol) > 2 {
		n, err := ParseSize(symbol[2:])
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", sumerrors.ErrUnknownStrategy, symbol, err)
		}
		rangeBytes = n
	}
	return Threaded(threads, rangeBytes), nil
}

// ChooseStrategy picks the strategy for a file.
//
// Single-block files, files below sequentialThreshold and files that fit in
// one read buffer go through the single pass. Everything else is
// threaded; rotating media get half the CPUs to limit seeking.
func ChooseStrategy(path string, scheme SliceScheme, sequentialThreshold int64) Strategy {
	if scheme.BlockCount == 1 || scheme.FileSize < sequentialThreshold {
		return Sequential()
	}
	if scheme.ReadBufferSize > 0 && scheme.FileSize <= scheme.ReadBufferSize {
		return Sequential()
	}

	switch GuessMediaType(path) {
	case MediaHDD:
		return Threaded(max(1, runtime.NumCPU()/2), 0)
	default:
		return Threaded(0, 0)
	}
}
