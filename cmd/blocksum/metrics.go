package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tamirms/blocksum"
)

// runMetrics collects per-run metrics and writes them in the Prometheus
// text format, for node_exporter's textfile collector.
type runMetrics struct {
	registry    *prometheus.Registry
	duration    *prometheus.HistogramVec
	bytes       *prometheus.CounterVec
	blocks      *prometheus.CounterVec
	threads     *prometheus.GaugeVec
	peakRunning *prometheus.GaugeVec
	peakPending *prometheus.GaugeVec
}

func newRunMetrics() *runMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	labels := []string{"strategy", "hasher"}

	return &runMetrics{
		registry: reg,
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "blocksum_run_duration_seconds",
				Help:    "Wall time of one hashing pass",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			labels,
		),
		bytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blocksum_bytes_hashed_total",
				Help: "Input bytes hashed, padding excluded",
			},
			labels,
		),
		blocks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blocksum_blocks_hashed_total",
				Help: "Blocks hashed",
			},
			labels,
		),
		threads: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "blocksum_threads",
				Help: "Worker threads of the last pass",
			},
			labels,
		),
		peakRunning: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "blocksum_running_jobs_peak",
				Help: "Peak concurrently running jobs of the last pass",
			},
			labels,
		),
		peakPending: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "blocksum_pending_batches_peak",
				Help: "Peak batches waiting for the writer in the last pass",
			},
			labels,
		),
	}
}

// observe records one completed pass.
func (m *runMetrics) observe(hasher string, fileSize int64, stats blocksum.Stats) {
	labels := prometheus.Labels{"strategy": stats.Strategy, "hasher": hasher}
	m.duration.With(labels).Observe(stats.Duration.Seconds())
	m.bytes.With(labels).Add(float64(fileSize))
	m.blocks.With(labels).Add(float64(stats.Blocks))
	m.threads.With(labels).Set(float64(stats.Threads))
	m.peakRunning.With(labels).Set(float64(stats.PeakRunningJobs))
	m.peakPending.With(labels).Set(float64(stats.PeakPendingBatches))
}

// writeFile atomically replaces path with the current metrics.
func (m *runMetrics) writeFile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics file: %w", err)
	}
	return nil
}
