package blocksum

import (
	"encoding/binary"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/afero"
)

// newTestRNG returns a deterministic generator for test data.
func newTestRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// fillFromRNG fills buf with pseudo-random bytes from rng.
func fillFromRNG(rng *rand.Rand, buf []byte) {
	for i := 0; i+8 <= len(buf); i += 8 {
		binary.LittleEndian.PutUint64(buf[i:], rng.Uint64())
	}
	if tail := len(buf) % 8; tail > 0 {
		v := rng.Uint64()
		start := len(buf) - tail
		for j := 0; j < tail; j++ {
			buf[start+j] = byte(v >> (j * 8))
		}
	}
}

// randomData returns n deterministic pseudo-random bytes.
func randomData(seed uint64, n int) []byte {
	data := make([]byte, n)
	fillFromRNG(newTestRNG(seed), data)
	return data
}

// writeTempFile writes data to a fresh file under t.TempDir.
func writeTempFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.bin")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// writeMemFile writes data into an in-memory filesystem.
func writeMemFile(t *testing.T, data []byte) (afero.Fs, string) {
	t.Helper()
	fs := afero.NewMemMapFs()
	const path = "/data/input.bin"
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return fs, path
}

// referenceDigests hashes data block by block without any of the
// package's readers or strategies.
func referenceDigests(f *HasherFactory, data []byte, blockSize int) []Digest {
	count := max(1, (len(data)+blockSize-1)/blockSize)
	out := make([]Digest, 0, count)
	block := make([]byte, blockSize)
	for i := range count {
		off := i * blockSize
		n := copy(block, data[off:min(off+blockSize, len(data))])
		clear(block[n:])
		h := f.New()
		h.Write(block)
		out = append(out, h.Sum(nil))
	}
	return out
}

// recordingWriter collects digests in arrival order.
type recordingWriter struct {
	mu      sync.Mutex
	digests []Digest
	flushes int
}

func (w *recordingWriter) Write(d Digest) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.digests = append(w.digests, d)
	return nil
}

func (w *recordingWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushes++
	return nil
}

var errTestWrite = errors.New("test: write refused")

// failingWriter accepts failAfter digests and then refuses every write.
type failingWriter struct {
	failAfter int
	written   int
}

func (w *failingWriter) Write(Digest) error {
	if w.written >= w.failAfter {
		return errTestWrite
	}
	w.written++
	return nil
}

func (w *failingWriter) Flush() error { return nil }

var errTestRead = errors.New("test: read refused")

// failingReader wraps a reader and fails on block failAt.
type failingReader struct {
	BlockReader
	failAt int
}

func (r *failingReader) ReadBlock(index int) ([]byte, error) {
	if index == r.failAt {
		return nil, errTestRead
	}
	return r.BlockReader.ReadBlock(index)
}

// panickingReader panics on block panicAt.
type panickingReader struct {
	BlockReader
	panicAt int
}

func (r *panickingReader) ReadBlock(index int) ([]byte, error) {
	if index == r.panicAt {
		panic("test: reader exploded")
	}
	return r.BlockReader.ReadBlock(index)
}

func digestsEqual(t *testing.T, got, want []Digest) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d digests, want %d", len(got), len(want))
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("digest %d: got %s, want %s", i, got[i], want[i])
		}
	}
}
