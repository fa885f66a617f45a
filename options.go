package blocksum

import (
	"log/slog"

	"github.com/spf13/afero"
)

const (
	// DefaultBlockSize is used when no block size is configured.
	DefaultBlockSize = 1 * MiB

	// MinBlockSize and MaxBlockSize bound user-supplied block sizes on the
	// command line. The library itself accepts any positive size.
	MinBlockSize int64 = 512
	MaxBlockSize       = 10 * MiB

	// DefaultMemoryLimit caps the estimated memory held by in-flight
	// buffers plus unwritten digests.
	DefaultMemoryLimit = 512 * MiB

	// DefaultJobRange is the contiguous byte range one threaded job reads
	// when neither a range nor a read buffer size is configured.
	DefaultJobRange = 4 * MiB

	// DefaultSequentialThreshold: files smaller than this are hashed by the
	// single-pass strategy; pool startup would cost more than it saves.
	DefaultSequentialThreshold = 4 * MiB
)

// LevelTrace is below slog.LevelDebug and enables per-job records
// (enqueue, store, flush).
const LevelTrace = slog.LevelDebug - 4

// Option is a functional option for configuring HashFile.
type Option func(*config)

type config struct {
	fs                  afero.Fs
	blockSize           int64
	readBufferSize      int64
	hasher              *HasherFactory
	strategy            Strategy // nil => ChooseStrategy
	useMmap             bool
	memoryLimit         int64
	sequentialThreshold int64
	readRateLimit       int64 // bytes per second, 0 => unlimited
	logger              *slog.Logger
}

func defaultConfig() *config {
	return &config{
		fs:                  afero.NewOsFs(),
		blockSize:           DefaultBlockSize,
		hasher:              DefaultHasher,
		memoryLimit:         DefaultMemoryLimit,
		sequentialThreshold: DefaultSequentialThreshold,
		logger:              slog.New(slog.DiscardHandler),
	}
}

// WithFs sets the filesystem the input is read from.
// This is primarily useful for testing with in-memory filesystems.
func WithFs(fs afero.Fs) Option {
	return func(c *config) {
		c.fs = fs
	}
}

// WithBlockSize sets the block size in bytes.
func WithBlockSize(size int64) Option {
	return func(c *config) {
		c.blockSize = size
	}
}

// WithReadBufferSize sets the per-reader read buffer size. 0 reads
// straight from the file.
func WithReadBufferSize(size int64) Option {
	return func(c *config) {
		c.readBufferSize = size
	}
}

// WithHasher sets the digest algorithm. Default is MD5.
func WithHasher(f *HasherFactory) Option {
	return func(c *config) {
		if f != nil {
			c.hasher = f
		}
	}
}

// WithStrategy forces a processing strategy instead of ChooseStrategy.
func WithStrategy(s Strategy) Option {
	return func(c *config) {
		c.strategy = s
	}
}

// WithMmap reads the input through a read-only memory mapping.
// Only valid with the OS filesystem.
func WithMmap(enabled bool) Option {
	return func(c *config) {
		c.useMmap = enabled
	}
}

// WithMemoryLimit sets the memory ceiling used for pending-result
// backpressure in the threaded strategy.
func WithMemoryLimit(limit int64) Option {
	return func(c *config) {
		c.memoryLimit = limit
	}
}

// WithSequentialThreshold sets the file size below which the single-pass
// strategy is chosen automatically.
func WithSequentialThreshold(size int64) Option {
	return func(c *config) {
		c.sequentialThreshold = size
	}
}

// WithReadRateLimit caps the aggregate read bandwidth of a run in bytes per
// second, so hashing a large file does not starve other I/O on the same
// device. 0 disables the limit.
func WithReadRateLimit(bytesPerSec int64) Option {
	return func(c *config) {
		c.readRateLimit = max(0, bytesPerSec)
	}
}

// WithLogger sets the structured logger. Default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}
