package blocksum

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
	sumerrors "github.com/tamirms/blocksum/errors"
)

// mmapReader serves blocks from a read-only memory mapping of the input.
// Full blocks are returned as zero-copy views into the mapping; the padded
// last block is copied into a private buffer.
type mmapReader struct {
	mmap   mmap.MMap // nil for empty files
	data   []byte
	scheme SliceScheme
	block  []byte
	closed bool
}

// NewMmapReaderFactory returns a factory of mmap-backed readers for path.
// Every reader maps the file independently so entries share no state.
func NewMmapReaderFactory(path string, scheme SliceScheme) ReaderFactory {
	return func() (BlockReader, error) {
		return openMmapReader(path, scheme)
	}
}

func openMmapReader(path string, scheme SliceScheme) (*mmapReader, error) {
	r := &mmapReader{
		scheme: scheme,
		block:  make([]byte, scheme.BlockSize),
	}
	// mmap of a zero-length file fails; the single block is all padding anyway
	if scheme.FileSize == 0 {
		return r, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input file: %w", err)
	}
	// Per POSIX mmap(2) the descriptor may be closed once the mapping exists.
	defer f.Close()

	mm, err := mmap.MapRegion(f, int(scheme.FileSize), mmap.RDONLY, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("mmap input file: %w", err)
	}
	r.mmap = mm
	r.data = []byte(mm)
	adviseSequential(r.data)
	return r, nil
}

// ReadBlock returns block index.
func (r *mmapReader) ReadBlock(index int) ([]byte, error) {
	if r.closed {
		return nil, sumerrors.ErrReaderClosed
	}
	if index < 0 || index >= r.scheme.BlockCount {
		return nil, fmt.Errorf("%w: %d of %d", sumerrors.ErrBlockIndex, index, r.scheme.BlockCount)
	}

	offset := r.scheme.BlockOffset(index)
	realSize := r.scheme.BlockRealSize(index)
	if offset+realSize > int64(len(r.data)) {
		return nil, fmt.Errorf("%w: block %d beyond mapped %d bytes", sumerrors.ErrShortRead, index, len(r.data))
	}
	if realSize == r.scheme.BlockSize {
		return r.data[offset : offset+realSize], nil
	}

	n := copy(r.block, r.data[offset:offset+realSize])
	clear(r.block[n:])
	return r.block, nil
}

// Close unmaps the file. Idempotent.
func (r *mmapReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.data = nil
	if r.mmap == nil {
		return nil
	}
	err := r.mmap.Unmap()
	r.mmap = nil
	if err != nil {
		return fmt.Errorf("mmap unmap failed: %w", err)
	}
	return nil
}
