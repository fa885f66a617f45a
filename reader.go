package blocksum

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	sumerrors "github.com/tamirms/blocksum/errors"
)

// BlockReader reads fixed-size blocks of one file.
//
// ReadBlock returns a view of exactly BlockSize bytes; the final partial
// block is zero padded. The view is only valid until the next ReadBlock or
// Close call.
//
// A BlockReader keeps its own file cursor and is NOT safe for concurrent
// use. In the pipeline each resource-pool entry owns one.
type BlockReader interface {
	ReadBlock(index int) ([]byte, error)
	Close() error
}

// ReaderFactory opens a new, independent BlockReader.
type ReaderFactory func() (BlockReader, error)

// fdFile is implemented by afero files backed by a real OS file.
type fdFile interface {
	Fd() uintptr
}

// fileReader reads blocks through an afero.File, optionally through a
// bufio.Reader of the scheme's read buffer size.
type fileReader struct {
	file   afero.File
	br     *bufio.Reader // nil => direct reads
	scheme SliceScheme
	block  []byte
	pos    int64 // current file offset, avoids a seek for sequential blocks
}

// NewFileReaderFactory returns a factory of buffered readers for path on fs.
func NewFileReaderFactory(fs afero.Fs, path string, scheme SliceScheme) ReaderFactory {
	return func() (BlockReader, error) {
		return openFileReader(fs, path, scheme)
	}
}

func openFileReader(fs afero.Fs, path string, scheme SliceScheme) (*fileReader, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input file: %w", err)
	}
	if osf, ok := f.(fdFile); ok {
		fadviseSequential(int(osf.Fd()), 0, scheme.FileSize)
	}

	r := &fileReader{
		file:   f,
		scheme: scheme,
		block:  make([]byte, scheme.BlockSize),
	}
	if scheme.ReadBufferSize > 0 {
		r.br = bufio.NewReaderSize(f, int(scheme.ReadBufferSize))
	}
	return r, nil
}

// ReadBlock reads block index into the reader's block buffer.
func (r *fileReader) ReadBlock(index int) ([]byte, error) {
	if r.file == nil {
		return nil, sumerrors.ErrReaderClosed
	}
	if index < 0 || index >= r.scheme.BlockCount {
		return nil, fmt.Errorf("%w: %d of %d", sumerrors.ErrBlockIndex, index, r.scheme.BlockCount)
	}

	offset := r.scheme.BlockOffset(index)
	if offset != r.pos {
		if _, err := r.file.Seek(offset, io.SeekStart); err != nil {
			return nil, fmt.Errorf("seek block %d: %w", index, err)
		}
		if r.br != nil {
			r.br.Reset(r.file)
		}
		r.pos = offset
	}

	realSize := r.scheme.BlockRealSize(index)
	if realSize > 0 {
		var src io.Reader = r.file
		if r.br != nil {
			src = r.br
		}
		n, err := io.ReadFull(src, r.block[:realSize])
		r.pos += int64(n)
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: block %d: got %d of %d bytes", sumerrors.ErrShortRead, index, n, realSize)
			}
			return nil, fmt.Errorf("read block %d: %w", index, err)
		}
	}
	if realSize < r.scheme.BlockSize {
		clear(r.block[realSize:])
	}
	return r.block, nil
}

// Close closes the underlying file. Idempotent.
func (r *fileReader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	r.br = nil
	return err
}

// isOsFs reports whether fs reads straight from the operating system.
func isOsFs(fs afero.Fs) bool {
	_, ok := fs.(*afero.OsFs)
	return ok
}

// statInput validates path and returns its size.
func statInput(fs afero.Fs, path string) (int64, error) {
	fi, err := fs.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", sumerrors.ErrInputNotFound, path)
		}
		return 0, fmt.Errorf("stat input file: %w", err)
	}
	if !fi.Mode().IsRegular() {
		return 0, fmt.Errorf("%w: %s", sumerrors.ErrNotRegularFile, path)
	}
	return fi.Size(), nil
}
