package blocksum

import (
	"fmt"

	sumerrors "github.com/tamirms/blocksum/errors"
)

// LastBlock describes the final block of a file, the only one that may be
// shorter than the block size on disk.
type LastBlock struct {
	Index        int   // BlockCount - 1
	RealSize     int64 // bytes actually present in the file (<= BlockSize)
	NeedsZeroPad bool  // true when RealSize < BlockSize
}

// SliceScheme is the partition of a file into fixed-size blocks.
//
// A zero-length file still has exactly one block, fully zero padded, so
// every input produces at least one digest. The value is immutable once
// computed.
type SliceScheme struct {
	FileSize       int64
	BlockSize      int64
	BlockCount     int
	LastBlock      LastBlock
	ReadBufferSize int64 // suggested read buffer size, 0 => unbuffered reads
}

// NewSliceScheme computes the slice scheme for a file of fileSize bytes.
func NewSliceScheme(fileSize, blockSize, readBufferHint int64) (SliceScheme, error) {
	if blockSize <= 0 {
		return SliceScheme{}, fmt.Errorf("%w: %d", sumerrors.ErrInvalidBlockSize, blockSize)
	}
	if fileSize < 0 {
		return SliceScheme{}, fmt.Errorf("%w: %d", sumerrors.ErrInvalidFileSize, fileSize)
	}
	if readBufferHint < 0 {
		readBufferHint = 0
	}

	s := SliceScheme{
		FileSize:       fileSize,
		BlockSize:      blockSize,
		ReadBufferSize: readBufferHint,
	}

	if fileSize == 0 {
		s.BlockCount = 1
		s.LastBlock = LastBlock{RealSize: 0, NeedsZeroPad: true}
		return s, nil
	}

	full := fileSize / blockSize
	tail := fileSize - full*blockSize
	s.BlockCount = int(full)
	if tail > 0 {
		s.BlockCount++
		s.LastBlock.RealSize = tail
		s.LastBlock.NeedsZeroPad = true
	} else {
		s.LastBlock.RealSize = blockSize
	}
	s.LastBlock.Index = s.BlockCount - 1
	return s, nil
}

// BlockOffset returns the file offset of block i.
func (s SliceScheme) BlockOffset(i int) int64 {
	return int64(i) * s.BlockSize
}

// BlockRealSize returns how many bytes of block i exist in the file.
// Everything past that is zero padding.
func (s SliceScheme) BlockRealSize(i int) int64 {
	if i == s.LastBlock.Index {
		return s.LastBlock.RealSize
	}
	return s.BlockSize
}

// String is used in debug logging.
func (s SliceScheme) String() string {
	return fmt.Sprintf("file=%d block=%d blocks=%d last=%d/%d",
		s.FileSize, s.BlockSize, s.BlockCount, s.LastBlock.RealSize, s.BlockSize)
}
