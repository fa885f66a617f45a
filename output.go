package blocksum

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/spf13/afero"
)

// Output is a HexWriter bound to a destination it owns.
type Output struct {
	*HexWriter
	closers []io.Closer // closed in order: compressor first, then file
}

// OpenOutput opens the digest destination for path.
//
//   - "" or "-": standard output
//   - "*.zst": zstd-compressed hex lines
//   - "*.lz4": lz4-framed hex lines
//   - anything else: a plain file, with disk space for all lines reserved
//     up front (best effort)
func OpenOutput(fs afero.Fs, path string, scheme SliceScheme, digestSize int) (*Output, error) {
	if path == "" || path == "-" {
		return &Output{HexWriter: NewHexWriter(os.Stdout)}, nil
	}

	f, err := fs.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".zst":
		enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			primaryErr := fmt.Errorf("create zstd encoder: %w", err)
			return nil, errors.Join(primaryErr, f.Close())
		}
		return &Output{HexWriter: NewHexWriter(enc), closers: []io.Closer{enc, f}}, nil
	case ".lz4":
		zw := lz4.NewWriter(f)
		return &Output{HexWriter: NewHexWriter(zw), closers: []io.Closer{zw, f}}, nil
	}

	if osf, ok := f.(*os.File); ok {
		// Best-effort: a filesystem without preallocation still works
		_ = reserveSpace(osf, int64(scheme.BlockCount)*hexLineSize(digestSize))
	}
	return &Output{HexWriter: NewHexWriter(f), closers: []io.Closer{f}}, nil
}

// Close flushes pending lines and closes the destination. Standard output
// is flushed but left open.
func (o *Output) Close() error {
	errs := []error{o.Flush()}
	for _, c := range o.closers {
		errs = append(errs, c.Close())
	}
	o.closers = nil
	return errors.Join(errs...)
}
