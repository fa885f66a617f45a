// Package blocksum computes per-block content digests of a file.
//
// The file is split into fixed-size blocks, each block (the last one zero
// padded) is hashed independently, and the digests are emitted in block
// order, one lower-case hex line per block.
//
// # Basic Usage
//
//	out := blocksum.NewHexWriter(os.Stdout)
//	stats, err := blocksum.HashFile(ctx, "disk.img", out,
//	    blocksum.WithBlockSize(1<<20),
//	    blocksum.WithHasher(blocksum.XXH3),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Printf("%d blocks via %s", stats.Blocks, stats.Strategy)
//
// # Strategies
//
// Small files are hashed by a single sequential pass. Larger files go
// through a pipeline: a fixed worker pool hashes contiguous block ranges,
// each worker borrowing a (reader, hasher) pair from a resource pool, and
// a writer goroutine reassembles the batches in block order. Scheduling is
// throttled so that running jobs never exceed the worker count and parked
// batches stay within a memory-derived bound.
//
// # Package Structure
//
//   - Public API: blocksum.go (HashFile, Plan), options.go (Option, With* functions)
//   - Partitioning: slices.go (SliceScheme), size.go (ParseSize)
//   - Hashers: digest.go (HasherFactory, built-in algorithms)
//   - Input: reader.go (buffered afero reader), reader_mmap.go
//   - Output: writer.go (HexWriter), output.go (plain, zstd and lz4 files)
//   - Strategies: strategy.go, pipeline*.go, internal/workerpool/
//   - Platform: fadvise_*.go, madvise_*.go, fallocate_*.go, media_*.go
package blocksum
