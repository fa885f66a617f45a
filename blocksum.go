package blocksum

import (
	"context"
	"fmt"

	sumerrors "github.com/tamirms/blocksum/errors"
)

// HashFile hashes every block of the file at path and writes the digests
// to w in block order. w may be nil to hash without output. w is flushed
// before HashFile returns successfully.
//
// Configuration errors (missing input, bad block size, mmap on a non-OS
// filesystem) are returned before any block is read.
func HashFile(ctx context.Context, path string, w DigestWriter, opts ...Option) (Stats, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	scheme, err := plan(cfg, path)
	if err != nil {
		return Stats{}, err
	}

	var newReader ReaderFactory
	if cfg.useMmap {
		if !isOsFs(cfg.fs) {
			return Stats{}, sumerrors.ErrMmapUnavailable
		}
		newReader = NewMmapReaderFactory(path, scheme)
	} else {
		newReader = NewFileReaderFactory(cfg.fs, path, scheme)
	}

	strategy := cfg.strategy
	if strategy == nil {
		strategy = ChooseStrategy(path, scheme, cfg.sequentialThreshold)
	}
	cfg.logger.Info("hashing file",
		"path", path,
		"size", scheme.FileSize,
		"block_size", scheme.BlockSize,
		"blocks", scheme.BlockCount,
		"strategy", strategy.String(),
		"hasher", cfg.hasher.Name(),
		"mmap", cfg.useMmap,
		"read_rate_limit", cfg.readRateLimit,
	)

	stats, err := strategy.Hash(ctx, Config{
		Scheme:      scheme,
		NewReader:   newReader,
		Hasher:      cfg.hasher,
		Writer:      w,
		Limiter:     NewReadLimiter(scheme, cfg.readRateLimit),
		MemoryLimit: cfg.memoryLimit,
		Logger:      cfg.logger,
	})
	if err != nil {
		return stats, err
	}
	if w != nil {
		if err := w.Flush(); err != nil {
			return stats, fmt.Errorf("%w: flush: %w", sumerrors.ErrWriteFailed, err)
		}
	}
	return stats, nil
}

// Plan returns the slice scheme HashFile would use for path, without
// reading any block.
func Plan(path string, opts ...Option) (SliceScheme, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return plan(cfg, path)
}

func plan(cfg *config, path string) (SliceScheme, error) {
	if cfg.blockSize <= 0 {
		return SliceScheme{}, fmt.Errorf("%w: %d", sumerrors.ErrInvalidBlockSize, cfg.blockSize)
	}
	size, err := statInput(cfg.fs, path)
	if err != nil {
		return SliceScheme{}, err
	}
	return NewSliceScheme(size, cfg.blockSize, cfg.readBufferSize)
}
