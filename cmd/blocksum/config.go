package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tamirms/blocksum"
)

// Size is a byte count that accepts K, M and G suffixes in YAML.
type Size int64

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Size) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: size must be a scalar", node.Line)
	}
	n, err := blocksum.ParseSize(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*s = Size(n)
	return nil
}

// fileConfig is the optional YAML configuration file. Zero values mean
// "not set"; positional arguments and flags override everything here.
type fileConfig struct {
	BlockSize           Size        `yaml:"block_size"`
	ReadBuffer          Size        `yaml:"read_buffer"`
	Hasher              string      `yaml:"hasher"`
	Mmap                bool        `yaml:"mmap"`
	MemoryLimit         Size        `yaml:"memory_limit"`
	SequentialThreshold *Size       `yaml:"sequential_threshold"`
	RateLimit           Size        `yaml:"rate_limit"`
	MetricsFile         string      `yaml:"metrics_file"`
	Bench               benchConfig `yaml:"bench"`
}

type benchConfig struct {
	Iterations int   `yaml:"iterations"`
	DropCaches *bool `yaml:"drop_caches"`
}

// loadConfig reads a YAML configuration file. Unknown keys are rejected so
// that typos don't silently fall back to defaults.
func loadConfig(path string) (*fileConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	defer f.Close()

	var cfg fileConfig
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if cfg.Bench.Iterations < 0 {
		return nil, fmt.Errorf("config file %s: bench.iterations must not be negative", path)
	}
	return &cfg, nil
}

// apply copies every set value of cfg into opts.
func (cfg *fileConfig) apply(opts *options) {
	if cfg.BlockSize != 0 {
		opts.blockSize = int64(cfg.BlockSize)
	}
	if cfg.ReadBuffer != 0 {
		opts.readBuffer = int64(cfg.ReadBuffer)
	}
	if cfg.Hasher != "" {
		opts.hasher = cfg.Hasher
	}
	if cfg.Mmap {
		opts.mmap = true
	}
	if cfg.MemoryLimit != 0 {
		opts.memoryLimit = int64(cfg.MemoryLimit)
	}
	if cfg.SequentialThreshold != nil {
		opts.sequentialThreshold = int64(*cfg.SequentialThreshold)
	}
	if cfg.RateLimit != 0 {
		opts.readRateLimit = int64(cfg.RateLimit)
	}
	if cfg.MetricsFile != "" {
		opts.metricsFile = cfg.MetricsFile
	}
	if cfg.Bench.Iterations != 0 {
		opts.iterations = cfg.Bench.Iterations
	}
	if cfg.Bench.DropCaches != nil {
		opts.dropCaches = *cfg.Bench.DropCaches
	}
}
