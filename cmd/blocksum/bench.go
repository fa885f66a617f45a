package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/tamirms/blocksum"
)

// benchResult summarizes the timing loop.
type benchResult struct {
	Min, Avg, Max time.Duration
	// Throughput of the average iteration, in MB/s (10^6 bytes).
	MBPerSec float64
}

func summarize(durations []time.Duration, fileSize int64) benchResult {
	if len(durations) == 0 {
		return benchResult{}
	}
	var total time.Duration
	for _, d := range durations {
		total += d
	}
	r := benchResult{
		Min: slices.Min(durations),
		Max: slices.Max(durations),
		Avg: total / time.Duration(len(durations)),
	}
	if r.Avg > 0 {
		r.MBPerSec = float64(fileSize) / r.Avg.Seconds() / 1_000_000
	}
	return r
}

// runBench hashes the input opts.iterations times without writing digests,
// dropping the input's page cache before each pass so that every iteration
// reads from the device.
func runBench(ctx context.Context, opts *options, stdout io.Writer, logger *slog.Logger) error {
	libOpts := libraryOptions(opts, logger)
	scheme, err := blocksum.Plan(opts.input, libOpts...)
	if err != nil {
		return runtimeError(err)
	}

	var metrics *runMetrics
	if opts.metricsFile != "" {
		metrics = newRunMetrics()
	}

	baselineRSS := getMaxRSS()
	durations := make([]time.Duration, 0, opts.iterations)
	var stats blocksum.Stats
	for i := range opts.iterations {
		if opts.dropCaches {
			if err := blocksum.DropPageCache(opts.input); err != nil {
				logger.Warn("dropping page cache failed", "path", opts.input, "err", err)
			}
		}
		stats, err = blocksum.HashFile(ctx, opts.input, nil, libOpts...)
		if err != nil {
			return runtimeError(err)
		}
		durations = append(durations, stats.Duration)
		if metrics != nil {
			metrics.observe(opts.hasher, scheme.FileSize, stats)
		}
		logger.Info("iteration done", "iteration", i+1, "duration", stats.Duration)
	}
	peakRSS := getMaxRSS()

	r := summarize(durations, scheme.FileSize)
	strategy := stats.Strategy
	if opts.strategySymbol != "" {
		strategy = fmt.Sprintf("%s (forced %s)", strategy, opts.strategySymbol)
	}

	fmt.Fprintf(stdout, "file        %s (%d bytes, %d blocks of %s)\n",
		opts.input, scheme.FileSize, scheme.BlockCount, blocksum.FormatSize(scheme.BlockSize))
	fmt.Fprintf(stdout, "hasher      %s\n", opts.hasher)
	fmt.Fprintf(stdout, "strategy    %s, %d threads, %d blocks/job\n", strategy, stats.Threads, stats.BlocksPerJob)
	fmt.Fprintf(stdout, "iterations  %d\n", len(durations))
	fmt.Fprintf(stdout, "time        min %v  avg %v  max %v\n", r.Min, r.Avg, r.Max)
	fmt.Fprintf(stdout, "throughput  %.1f MB/s\n", r.MBPerSec)
	if peakRSS > 0 {
		fmt.Fprintf(stdout, "peak RSS    %.1f MB (+%.1f MB)\n",
			float64(peakRSS)/1_000_000, float64(peakRSS-min(peakRSS, baselineRSS))/1_000_000)
	}
	if metrics != nil {
		if err := metrics.writeFile(opts.metricsFile); err != nil {
			return runtimeError(err)
		}
	}
	return nil
}
