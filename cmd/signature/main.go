package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/quantarax/blocksig/internal/config"
	"github.com/quantarax/blocksig/internal/validation"
)

var version = "dev"

const (
	exitOK     = 0
	exitConfig = 2
	exitOpen   = 3
	exitRun    = 4
)

const usage = `Usage: signature -i <input> -o <output> [options]

Splits the input into fixed-size blocks and writes the CRC-32 of each block,
in block order, as little-endian 4-byte values.

Options:
  -i, --input <path>        file to sign (required)
  -o, --output <path>       signature file to write (required, must differ from input)
  -b, --block <size>        block size as <digits>[K|M|G], at least 1024 bytes (default 1M)
      --workers <n>         checksum workers (default: number of CPUs)
      --high-water <n>      buffered checksums that force a write (default 100)
      --memory <size>       cap on block storage in flight, 0 for none (default 0)
      --max-rate <size>     maximum read rate in bytes per second, 0 for none (default 0)
      --max-retries <n>     allocation retries before giving up, 0 for no limit (default 0)
      --config <path>       YAML configuration file
      --manifest <path>     write a JSON manifest describing the signature
      --catalog <path>      record the manifest in a bolt catalog
      --metrics-addr <addr> serve /metrics and /health while running
      --log-level <level>   debug, info, warn or error (default info)
      --log-format <fmt>    auto, json or console (default auto)
      --verify-sequential   recompute the signature on one thread and compare
  -h, --help                show this help
`

// cliOptions holds the raw command line before it is layered onto the config.
type cliOptions struct {
	input, output string
	configPath    string
	manifestPath  string
	verify        bool

	block       string
	workers     int
	highWater   int
	memory      string
	maxRate     string
	maxRetries  int
	catalog     string
	metricsAddr string
	logLevel    string
	logFormat   string

	set map[string]bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func parseArgs(args []string, stderr io.Writer) (*cliOptions, error) {
	o := &cliOptions{set: make(map[string]bool)}

	fs := flag.NewFlagSet("signature", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(fs.Output(), usage) }

	fs.StringVar(&o.input, "input", "", "")
	fs.StringVar(&o.input, "i", "", "")
	fs.StringVar(&o.output, "output", "", "")
	fs.StringVar(&o.output, "o", "", "")
	fs.StringVar(&o.block, "block", "", "")
	fs.StringVar(&o.block, "b", "", "")
	fs.IntVar(&o.workers, "workers", 0, "")
	fs.IntVar(&o.highWater, "high-water", 0, "")
	fs.StringVar(&o.memory, "memory", "", "")
	fs.StringVar(&o.maxRate, "max-rate", "", "")
	fs.IntVar(&o.maxRetries, "max-retries", 0, "")
	fs.StringVar(&o.configPath, "config", "", "")
	fs.StringVar(&o.manifestPath, "manifest", "", "")
	fs.StringVar(&o.catalog, "catalog", "", "")
	fs.StringVar(&o.metricsAddr, "metrics-addr", "", "")
	fs.StringVar(&o.logLevel, "log-level", "", "")
	fs.StringVar(&o.logFormat, "log-format", "", "")
	fs.BoolVar(&o.verify, "verify-sequential", false, "")

	if len(args) == 0 {
		fs.Usage()
		return nil, flag.ErrHelp
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })

	if err := validation.ValidateStringNonEmpty(o.input); err != nil {
		return nil, fmt.Errorf("--input is required: %w", err)
	}
	if err := validation.ValidateStringNonEmpty(o.output); err != nil {
		return nil, fmt.Errorf("--output is required: %w", err)
	}
	return o, nil
}

// loadConfig layers the command line over the config file and environment.
func (o *cliOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}

	if o.set["block"] || o.set["b"] {
		cfg.BlockSize = o.block
	}
	if o.set["workers"] {
		cfg.Workers = o.workers
	}
	if o.set["high-water"] {
		cfg.HighWaterMark = o.highWater
	}
	if o.set["memory"] {
		cfg.MemoryBudget = o.memory
	}
	if o.set["max-rate"] {
		cfg.MaxReadRate = o.maxRate
	}
	if o.set["max-retries"] {
		cfg.MaxRetries = o.maxRetries
	}
	if o.set["catalog"] {
		cfg.CatalogPath = o.catalog
	}
	if o.set["metrics-addr"] {
		cfg.MetricsAddress = o.metricsAddr
	}
	if o.set["log-level"] {
		cfg.LogLevel = o.logLevel
	}
	if o.set["log-format"] {
		cfg.LogFormat = o.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func elapsed(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
