package blocksum

import (
	"bufio"
	"encoding/hex"
	"io"
)

// DigestWriter receives digests strictly in block order.
type DigestWriter interface {
	Write(d Digest) error
	Flush() error
}

// HexWriter renders each digest as one lower-case hex line.
//
// Lines end with a single '\n' on every platform, so the output of the same
// input is byte-identical everywhere.
type HexWriter struct {
	w    *bufio.Writer
	line []byte
}

// NewHexWriter buffers output to w. Call Flush when done.
func NewHexWriter(w io.Writer) *HexWriter {
	return &HexWriter{w: bufio.NewWriter(w)}
}

// Write appends one digest line.
func (hw *HexWriter) Write(d Digest) error {
	hw.line = hex.AppendEncode(hw.line[:0], d)
	hw.line = append(hw.line, '\n')
	_, err := hw.w.Write(hw.line)
	return err
}

// Flush writes buffered lines to the underlying writer.
func (hw *HexWriter) Flush() error {
	return hw.w.Flush()
}

// hexLineSize is the output size of one digest line.
func hexLineSize(digestSize int) int64 {
	return int64(hex.EncodedLen(digestSize)) + 1
}
