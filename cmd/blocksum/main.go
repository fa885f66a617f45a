// Blocksum prints one content digest per fixed-size block of a file.
//
// Usage:
//
//	blocksum [flags] <input> [<output>|-] [<block-size>] [<strategy>] [<read-buffer-size>]
//
// Flags:
//
//	-d, --debug         Raise log verbosity; repeat for more (-dd debug, -ddd trace)
//	-p, --perf          Run a timing loop instead of writing digests
//	--config            YAML configuration file
//	--hasher            Digest algorithm (default: md5)
//	--mmap              Read the input through a memory mapping
//	--memory-limit      Memory ceiling for pending digests (default: 512M)
//	--iterations        Timing loop iterations with -p (default: 5)
//	--rate-limit        Cap read bandwidth in bytes per second, K/M/G suffixes allowed
//	--metrics-file      Write Prometheus text-format metrics when done
//
// Exit status is 0 on success, 1 when the arguments or configuration are
// invalid and 2 when hashing fails.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"

	"github.com/tamirms/blocksum"
)

const (
	exitOK      = 0
	exitUsage   = 1
	exitRuntime = 2
)

// exitError carries the process exit status of a failure.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }
func (e *exitError) ExitCode() int { return e.code }

func usageErrorf(format string, args ...any) error {
	return &exitError{code: exitUsage, err: fmt.Errorf(format, args...)}
}

func runtimeError(err error) error {
	return &exitError{code: exitRuntime, err: err}
}

// exitCode maps an error returned by run to a process exit status.
func exitCode(err error) int {
	if err == nil || errors.Is(err, errHelp) {
		return exitOK
	}
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return exitRuntime
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil && !errors.Is(err, errHelp) {
		fmt.Fprintf(os.Stderr, "blocksum: %v\n", err)
	}
	os.Exit(exitCode(err))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		return err
	}
	logger := newLogger(stderr, opts.debug)

	if opts.perf {
		return runBench(ctx, opts, stdout, logger)
	}
	return runOnce(ctx, opts, stdout, logger)
}

// newLogger returns a text logger on w. Warnings and errors only by
// default; each -d lowers the threshold one level down to trace.
func newLogger(w io.Writer, debug int) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case debug >= 3:
		level = blocksum.LevelTrace
	case debug == 2:
		level = slog.LevelDebug
	case debug == 1:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey && len(groups) == 0 {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl <= blocksum.LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}))
}

// libraryOptions translates resolved options into blocksum options.
func libraryOptions(opts *options, logger *slog.Logger) []blocksum.Option {
	// validated by parseArgs
	hasher, _ := blocksum.LookupHasher(opts.hasher)
	libOpts := []blocksum.Option{
		blocksum.WithBlockSize(opts.blockSize),
		blocksum.WithReadBufferSize(opts.readBuffer),
		blocksum.WithHasher(hasher),
		blocksum.WithMmap(opts.mmap),
		blocksum.WithMemoryLimit(opts.memoryLimit),
		blocksum.WithSequentialThreshold(opts.sequentialThreshold),
		blocksum.WithReadRateLimit(opts.readRateLimit),
		blocksum.WithLogger(logger),
	}
	if opts.strategy != nil {
		libOpts = append(libOpts, blocksum.WithStrategy(opts.strategy))
	}
	return libOpts
}

// runOnce hashes the input once and writes the digests.
func runOnce(ctx context.Context, opts *options, stdout io.Writer, logger *slog.Logger) error {
	libOpts := libraryOptions(opts, logger)

	// Validate the input before creating the output file.
	scheme, err := blocksum.Plan(opts.input, libOpts...)
	if err != nil {
		return runtimeError(err)
	}

	var w blocksum.DigestWriter
	var out *blocksum.Output
	if opts.output == "" || opts.output == "-" {
		w = blocksum.NewHexWriter(stdout)
	} else {
		hasher, _ := blocksum.LookupHasher(opts.hasher)
		out, err = blocksum.OpenOutput(afero.NewOsFs(), opts.output, scheme, hasher.DigestSize())
		if err != nil {
			return runtimeError(err)
		}
		w = out
	}

	stats, err := blocksum.HashFile(ctx, opts.input, w, libOpts...)
	if out != nil {
		err = errors.Join(err, out.Close())
	}
	if err != nil {
		return runtimeError(err)
	}
	logger.Info("done",
		"strategy", stats.Strategy,
		"blocks", stats.Blocks,
		"threads", stats.Threads,
		"duration", stats.Duration,
	)

	if opts.metricsFile != "" {
		m := newRunMetrics()
		m.observe(opts.hasher, scheme.FileSize, stats)
		if err := m.writeFile(opts.metricsFile); err != nil {
			return runtimeError(err)
		}
	}
	return nil
}
