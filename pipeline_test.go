package blocksum

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	sumerrors "github.com/tamirms/blocksum/errors"
)

// hashWith runs strategy s over data held in memory.
func hashWith(t *testing.T, s Strategy, data []byte, blockSize int64, f *HasherFactory) ([]Digest, Stats) {
	t.Helper()
	fs, path := writeMemFile(t, data)
	scheme, err := NewSliceScheme(int64(len(data)), blockSize, 0)
	if err != nil {
		t.Fatal(err)
	}
	var w recordingWriter
	stats, err := s.Hash(t.Context(), Config{
		Scheme:      scheme,
		NewReader:   NewFileReaderFactory(fs, path, scheme),
		Hasher:      f,
		Writer:      &w,
		MemoryLimit: DefaultMemoryLimit,
	})
	if err != nil {
		t.Fatalf("%s: %v", s, err)
	}
	return w.digests, stats
}

func TestStrategiesMatchReference(t *testing.T) {
	const blockSize = 512
	data := randomData(31, 200*blockSize+77)
	want := referenceDigests(MD5, data, blockSize)

	strategies := []Strategy{Sequential()}
	for threads := 1; threads <= 8; threads++ {
		for _, rangeBytes := range []int64{1, blockSize, 3 * blockSize, 16 * blockSize, 1 * MiB} {
			strategies = append(strategies, Threaded(threads, rangeBytes))
		}
	}

	for _, s := range strategies {
		t.Run(s.String(), func(t *testing.T) {
			got, stats := hashWith(t, s, data, blockSize, MD5)
			digestsEqual(t, got, want)
			if stats.Blocks != len(want) {
				t.Errorf("Stats.Blocks = %d, want %d", stats.Blocks, len(want))
			}
		})
	}
}

func TestStrategiesAllHashers(t *testing.T) {
	data := randomData(32, 50_000)
	for _, name := range HasherNames() {
		t.Run(name, func(t *testing.T) {
			f, _ := LookupHasher(name)
			want := referenceDigests(f, data, 1000)
			seq, _ := hashWith(t, Sequential(), data, 1000, f)
			thr, _ := hashWith(t, Threaded(4, 3000), data, 1000, f)
			digestsEqual(t, seq, want)
			digestsEqual(t, thr, want)
		})
	}
}

func TestScenarios(t *testing.T) {
	zeroBlock := referenceDigests(MD5, nil, 1_000_000)[0]

	t.Run("EmptyFile", func(t *testing.T) {
		for _, s := range []Strategy{Sequential(), Threaded(4, 0)} {
			got, _ := hashWith(t, s, nil, 1_000_000, MD5)
			if len(got) != 1 || !got[0].Equal(zeroBlock) {
				t.Fatalf("%s: got %v, want one all-zero block digest", s, got)
			}
		}
	})

	t.Run("FullBlocks", func(t *testing.T) {
		data := randomData(33, 3_000_000)
		got, _ := hashWith(t, Threaded(4, 0), data, 1_000_000, MD5)
		digestsEqual(t, got, referenceDigests(MD5, data, 1_000_000))
	})

	t.Run("PaddedTail", func(t *testing.T) {
		data := randomData(34, 1_500_000)
		got, _ := hashWith(t, Threaded(4, 0), data, 1_000_000, MD5)
		padded := make([]byte, 1_000_000)
		copy(padded, data[1_000_000:])
		if want := hashBlock(MD5.New(), padded); !got[1].Equal(want) {
			t.Errorf("tail digest = %s, want %s", got[1], want)
		}
	})

	t.Run("SequentialVersusFourThreads", func(t *testing.T) {
		data := randomData(35, 10*1024*1024)
		seq, _ := hashWith(t, Sequential(), data, MiB, MD5)
		s, err := ParseStrategy("T4")
		if err != nil {
			t.Fatal(err)
		}
		thr, stats := hashWith(t, s, data, MiB, MD5)
		if len(seq) != 10 {
			t.Fatalf("got %d lines, want 10", len(seq))
		}
		digestsEqual(t, thr, seq)
		if stats.Threads != 4 {
			t.Errorf("Threads = %d, want 4", stats.Threads)
		}
	})
}

// TestPipelineBounds checks the throttling limits across thread counts and
// memory limits, including limits small enough to force one batch at a time.
func TestPipelineBounds(t *testing.T) {
	const blockSize = 256
	data := randomData(36, 500*blockSize)
	fs, path := writeMemFile(t, data)
	scheme, _ := NewSliceScheme(int64(len(data)), blockSize, 0)
	want := referenceDigests(MD5, data, blockSize)

	for _, threads := range []int{1, 2, 3, 8} {
		for _, limit := range []int64{0, 4 * KiB, 64 * KiB, DefaultMemoryLimit} {
			t.Run(fmt.Sprintf("threads=%d/limit=%d", threads, limit), func(t *testing.T) {
				var w recordingWriter
				stats, err := Threaded(threads, 2*blockSize).Hash(t.Context(), Config{
					Scheme:      scheme,
					NewReader:   NewFileReaderFactory(fs, path, scheme),
					Hasher:      MD5,
					Writer:      &w,
					MemoryLimit: limit,
				})
				if err != nil {
					t.Fatal(err)
				}
				digestsEqual(t, w.digests, want)

				if stats.PeakRunningJobs > stats.Threads {
					t.Errorf("PeakRunningJobs %d > Threads %d", stats.PeakRunningJobs, stats.Threads)
				}
				if stats.PeakPendingBatches > stats.MaxPendingBatches {
					t.Errorf("PeakPendingBatches %d > MaxPendingBatches %d", stats.PeakPendingBatches, stats.MaxPendingBatches)
				}
				if stats.ResourcesCreated > stats.Threads {
					t.Errorf("ResourcesCreated %d > Threads %d", stats.ResourcesCreated, stats.Threads)
				}
				if wantJobs := (scheme.BlockCount + 1) / 2; stats.Jobs != wantJobs {
					t.Errorf("Jobs = %d, want %d", stats.Jobs, wantJobs)
				}
			})
		}
	}
}

func TestMaxPendingBatches(t *testing.T) {
	scheme, _ := NewSliceScheme(100*MiB, MiB, 0)
	tests := []struct {
		name         string
		threads      int
		blocksPerJob int
		limit        int64
		want         int
	}{
		// buffers = 4 MiB; (512 MiB - 4 MiB) / 16 = 33292288 digests
		{"Default", 4, 1, 512 * MiB, (4 + 33292288) / 2},
		{"Batched", 4, 8, 512 * MiB, (4 + 33292288) / 2 / 8},
		{"BelowBuffers", 4, 1, MiB, 2},
		{"Zero", 1, 4, 0, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := maxPendingBatches(scheme, tc.threads, tc.blocksPerJob, 16, tc.limit); got != tc.want {
				t.Errorf("maxPendingBatches = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestPipelineReaderFailure(t *testing.T) {
	data := randomData(37, 100_000)
	fs, path := writeMemFile(t, data)
	scheme, _ := NewSliceScheme(int64(len(data)), 1000, 0)
	base := NewFileReaderFactory(fs, path, scheme)

	for _, s := range []Strategy{Sequential(), Threaded(1, 1000), Threaded(4, 3000)} {
		t.Run(s.String(), func(t *testing.T) {
			var w recordingWriter
			_, err := s.Hash(t.Context(), Config{
				Scheme: scheme,
				NewReader: func() (BlockReader, error) {
					r, err := base()
					if err != nil {
						return nil, err
					}
					return &failingReader{BlockReader: r, failAt: 57}, nil
				},
				Hasher:      MD5,
				Writer:      &w,
				MemoryLimit: DefaultMemoryLimit,
			})
			if !errors.Is(err, errTestRead) {
				t.Fatalf("got %v, want errTestRead", err)
			}
			if len(w.digests) > 57 {
				t.Errorf("%d digests written past the failing block", len(w.digests))
			}
		})
	}
}

func TestPipelineReaderPanic(t *testing.T) {
	data := randomData(38, 50_000)
	fs, path := writeMemFile(t, data)
	scheme, _ := NewSliceScheme(int64(len(data)), 1000, 0)
	base := NewFileReaderFactory(fs, path, scheme)

	_, err := Threaded(3, 2000).Hash(t.Context(), Config{
		Scheme: scheme,
		NewReader: func() (BlockReader, error) {
			r, err := base()
			if err != nil {
				return nil, err
			}
			return &panickingReader{BlockReader: r, panicAt: 21}, nil
		},
		Hasher:      MD5,
		MemoryLimit: DefaultMemoryLimit,
	})
	if !errors.Is(err, sumerrors.ErrJobPanicked) || !errors.Is(err, sumerrors.ErrJobFailed) {
		t.Fatalf("got %v, want ErrJobFailed wrapping ErrJobPanicked", err)
	}
}

func TestPipelineReaderOpenFailure(t *testing.T) {
	scheme, _ := NewSliceScheme(100_000, 1000, 0)
	errOpen := errors.New("test: open refused")
	_, err := Threaded(4, 1000).Hash(t.Context(), Config{
		Scheme:      scheme,
		NewReader:   func() (BlockReader, error) { return nil, errOpen },
		Hasher:      MD5,
		MemoryLimit: DefaultMemoryLimit,
	})
	if !errors.Is(err, errOpen) {
		t.Fatalf("got %v, want errOpen", err)
	}
}

func TestPipelineWriterFailure(t *testing.T) {
	data := randomData(39, 100_000)
	for _, s := range []Strategy{Sequential(), Threaded(4, 2000)} {
		t.Run(s.String(), func(t *testing.T) {
			fs, path := writeMemFile(t, data)
			scheme, _ := NewSliceScheme(int64(len(data)), 1000, 0)
			w := &failingWriter{failAfter: 10}
			_, err := s.Hash(t.Context(), Config{
				Scheme:      scheme,
				NewReader:   NewFileReaderFactory(fs, path, scheme),
				Hasher:      MD5,
				Writer:      w,
				MemoryLimit: DefaultMemoryLimit,
			})
			if !errors.Is(err, errTestWrite) || !errors.Is(err, sumerrors.ErrWriteFailed) {
				t.Fatalf("got %v, want ErrWriteFailed wrapping errTestWrite", err)
			}
			if w.written != 10 {
				t.Errorf("written = %d, want 10", w.written)
			}
		})
	}
}

// slowWriter cancels the run after a few digests.
type slowWriter struct {
	cancel  context.CancelFunc
	written atomic.Int32
}

func (w *slowWriter) Write(Digest) error {
	if w.written.Add(1) == 5 {
		w.cancel()
	}
	time.Sleep(time.Millisecond)
	return nil
}

func (w *slowWriter) Flush() error { return nil }

func TestPipelineCancellation(t *testing.T) {
	data := randomData(40, 400_000)
	fs, path := writeMemFile(t, data)
	scheme, _ := NewSliceScheme(int64(len(data)), 1000, 0)

	for _, s := range []Strategy{Sequential(), Threaded(4, 1000)} {
		t.Run(s.String(), func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()
			w := &slowWriter{cancel: cancel}

			done := make(chan error, 1)
			go func() {
				_, err := s.Hash(ctx, Config{
					Scheme:      scheme,
					NewReader:   NewFileReaderFactory(fs, path, scheme),
					Hasher:      MD5,
					Writer:      w,
					MemoryLimit: DefaultMemoryLimit,
				})
				done <- err
			}()

			select {
			case err := <-done:
				if !errors.Is(err, context.Canceled) {
					t.Fatalf("got %v, want context.Canceled", err)
				}
			case <-time.After(30 * time.Second):
				t.Fatal("cancelled run did not return")
			}
			if n := w.written.Load(); int(n) >= scheme.BlockCount {
				t.Errorf("all %d blocks written despite cancellation", n)
			}
		})
	}
}

func TestPipelineAlreadyCancelled(t *testing.T) {
	data := randomData(41, 10_000)
	fs, path := writeMemFile(t, data)
	scheme, _ := NewSliceScheme(int64(len(data)), 1000, 0)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	var w recordingWriter
	_, err := Threaded(2, 1000).Hash(ctx, Config{
		Scheme:      scheme,
		NewReader:   NewFileReaderFactory(fs, path, scheme),
		Hasher:      MD5,
		Writer:      &w,
		MemoryLimit: DefaultMemoryLimit,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if len(w.digests) != 0 {
		t.Errorf("%d digests written", len(w.digests))
	}
}

// TestPipelineTraceLogging runs with trace logging enabled to exercise the
// per-job records.
func TestPipelineTraceLogging(t *testing.T) {
	data := randomData(42, 20_000)
	fs, path := writeMemFile(t, data)
	scheme, _ := NewSliceScheme(int64(len(data)), 1000, 0)

	var records atomic.Int32
	handler := &countingHandler{n: &records}
	_, err := Threaded(2, 2000).Hash(t.Context(), Config{
		Scheme:      scheme,
		NewReader:   NewFileReaderFactory(fs, path, scheme),
		Hasher:      MD5,
		MemoryLimit: DefaultMemoryLimit,
		Logger:      slog.New(handler),
	})
	if err != nil {
		t.Fatal(err)
	}
	// 10 jobs, each enqueued, stored and flushed, plus init and finish
	if got := records.Load(); got < 32 {
		t.Errorf("got %d log records, want at least 32", got)
	}
}

type countingHandler struct {
	n *atomic.Int32
}

func (h *countingHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *countingHandler) Handle(context.Context, slog.Record) error {
	h.n.Add(1)
	return nil
}
func (h *countingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *countingHandler) WithGroup(string) slog.Handler      { return h }
