package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/tamirms/blocksum"
	sumerrors "github.com/tamirms/blocksum/errors"
)

// options is the fully resolved command line: defaults, then the config
// file, then flags and positional arguments.
type options struct {
	input  string
	output string // "" or "-" => stdout

	blockSize           int64
	strategy            blocksum.Strategy // nil => automatic
	strategySymbol      string
	readBuffer          int64
	hasher              string
	mmap                bool
	memoryLimit         int64
	sequentialThreshold int64

	readRateLimit int64
	metricsFile   string

	debug      int
	perf       bool
	iterations int
	dropCaches bool
}

func defaultOptions() *options {
	return &options{
		blockSize:           blocksum.DefaultBlockSize,
		hasher:              blocksum.DefaultHasher.Name(),
		memoryLimit:         blocksum.DefaultMemoryLimit,
		sequentialThreshold: blocksum.DefaultSequentialThreshold,
		iterations:          5,
		dropCaches:          true,
	}
}

var errHelp = errors.New("help requested")

// parseArgs resolves args (without the program name). Usage goes to
// stderr on --help and on parse failures.
func parseArgs(args []string, stderr io.Writer) (*options, error) {
	opts := defaultOptions()

	var (
		configPath  string
		hasher      string
		mmap        bool
		memoryLimit string
		rateLimit   string
		metricsFile string
		iterations  int
	)
	flagSet := pflag.NewFlagSet("blocksum", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.CountVarP(&opts.debug, "debug", "d", "raise log verbosity (repeat for more: -dd, -ddd)")
	flagSet.BoolVarP(&opts.perf, "perf", "p", false, "run a timing loop instead of one pass")
	flagSet.StringVar(&configPath, "config", "", "YAML configuration file")
	flagSet.StringVar(&hasher, "hasher", opts.hasher, fmt.Sprintf("digest algorithm %v", blocksum.HasherNames()))
	flagSet.BoolVar(&mmap, "mmap", false, "read the input through a memory mapping")
	flagSet.StringVar(&memoryLimit, "memory-limit", blocksum.FormatSize(opts.memoryLimit), "memory ceiling for pending digests")
	flagSet.StringVar(&rateLimit, "rate-limit", "0", "cap read bandwidth, bytes per second (0 = unlimited)")
	flagSet.StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file when done")
	flagSet.IntVar(&iterations, "iterations", opts.iterations, "timing loop iterations with -p")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printUsage(stderr, flagSet)
			return nil, errHelp
		}
		printUsage(stderr, flagSet)
		return nil, usageErrorf("%v", err)
	}
	if help, _ := flagSet.GetBool("help"); help {
		printUsage(stderr, flagSet)
		return nil, errHelp
	}

	if configPath != "" {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return nil, usageErrorf("%v", err)
		}
		cfg.apply(opts)
	}

	if flagSet.Changed("hasher") {
		opts.hasher = hasher
	}
	if flagSet.Changed("mmap") {
		opts.mmap = mmap
	}
	if flagSet.Changed("memory-limit") {
		n, err := blocksum.ParseSize(memoryLimit)
		if err != nil {
			return nil, usageErrorf("--memory-limit: %v", err)
		}
		opts.memoryLimit = n
	}
	if flagSet.Changed("rate-limit") {
		n, err := blocksum.ParseSize(rateLimit)
		if err != nil {
			return nil, usageErrorf("--rate-limit: %v", err)
		}
		opts.readRateLimit = n
	}
	if flagSet.Changed("metrics-file") {
		opts.metricsFile = metricsFile
	}
	if flagSet.Changed("iterations") {
		opts.iterations = iterations
	}
	if opts.iterations < 1 {
		return nil, usageErrorf("--iterations must be at least 1")
	}
	if _, err := blocksum.LookupHasher(opts.hasher); err != nil {
		return nil, usageErrorf("%v", err)
	}

	if err := parsePositional(flagSet.Args(), opts); err != nil {
		printUsage(stderr, flagSet)
		return nil, err
	}
	if opts.blockSize < blocksum.MinBlockSize || opts.blockSize > blocksum.MaxBlockSize {
		return nil, usageErrorf("%w: %s not in [%s, %s]", blockSizeBoundErr(opts.blockSize),
			blocksum.FormatSize(opts.blockSize),
			blocksum.FormatSize(blocksum.MinBlockSize),
			blocksum.FormatSize(blocksum.MaxBlockSize))
	}
	return opts, nil
}

// parsePositional handles
//
//	<input> [<output>|-] [<block-size>] [<strategy>] [<read-buffer-size>]
func parsePositional(args []string, opts *options) error {
	if len(args) == 0 {
		return usageErrorf("missing input file")
	}
	if len(args) > 5 {
		return usageErrorf("unexpected argument: %s", args[5])
	}

	opts.input = args[0]
	if len(args) > 1 {
		opts.output = args[1]
	}
	if len(args) > 2 {
		n, err := blocksum.ParseSize(args[2])
		if err != nil {
			return usageErrorf("block size: %v", err)
		}
		opts.blockSize = n
	}
	if len(args) > 3 {
		s, err := blocksum.ParseStrategy(args[3])
		if err != nil {
			return usageErrorf("%v", err)
		}
		opts.strategy, opts.strategySymbol = s, args[3]
	}
	if len(args) > 4 {
		n, err := blocksum.ParseSize(args[4])
		if err != nil {
			return usageErrorf("read buffer size: %v", err)
		}
		opts.readBuffer = n
	}
	return nil
}

func printUsage(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `blocksum computes one digest per fixed-size block of a file.

Usage:
  blocksum [flags] <input> [<output>|-] [<block-size>[K|M|G]] [<strategy>] [<read-buffer-size>]

Digests are written one lower-case hex line per block, in block order.
Outputs ending in .zst or .lz4 are compressed.

Strategy (debugging aid):
  S         single pass
  T         threaded, automatic worker count
  T<d>      threaded with d workers
  T<d><sz>  threaded with d workers, each job hashing sz bytes (e.g. T48M)

Examples:
  blocksum disk.img
  blocksum disk.img sums.txt.zst 4M
  blocksum -p --iterations 10 disk.img - 1M T8

Flags:
`)
	flagSet.SetOutput(w)
	flagSet.PrintDefaults()
}

func blockSizeBoundErr(size int64) error {
	if size < blocksum.MinBlockSize {
		return sumerrors.ErrBlockSizeTooSmall
	}
	return sumerrors.ErrBlockSizeTooLarge
}
