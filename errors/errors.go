// Package errors defines all exported error sentinels for the blocksum library.
//
// This is the single source of truth for error values. The top-level
// blocksum package, the internal worker pool and the CLI import from here,
// ensuring errors.Is checks work across package boundaries.
package errors

import "errors"

// Configuration errors. These are detected before any block is hashed.
var (
	ErrInvalidBlockSize  = errors.New("blocksum: block size must be positive")
	ErrBlockSizeTooSmall = errors.New("blocksum: block size is less than minimal")
	ErrBlockSizeTooLarge = errors.New("blocksum: block size is greater than maximal")
	ErrInvalidFileSize   = errors.New("blocksum: file size must not be negative")
	ErrInvalidSize       = errors.New("blocksum: invalid size value")
	ErrInputNotFound     = errors.New("blocksum: input file does not exist")
	ErrNotRegularFile    = errors.New("blocksum: input is not a regular file")
	ErrUnknownHasher     = errors.New("blocksum: unknown hash algorithm")
	ErrUnknownStrategy   = errors.New("blocksum: unknown strategy symbol")
	ErrMmapUnavailable   = errors.New("blocksum: mmap reader requires the OS filesystem")
)

// Runtime errors. Any of these stops the whole run: a missing digest would
// desynchronize the ordered output stream.
var (
	ErrJobFailed    = errors.New("blocksum: hash job failed")
	ErrWriteFailed  = errors.New("blocksum: digest write failed")
	ErrShortRead    = errors.New("blocksum: unexpected end of input")
	ErrBlockIndex   = errors.New("blocksum: block index out of range")
	ErrReaderClosed = errors.New("blocksum: block reader is closed")
	ErrPoolStopped  = errors.New("blocksum: worker pool is not running")
	ErrJobPanicked  = errors.New("blocksum: job panicked")
)
