package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"

	"github.com/quantarax/blocksig/internal/blocksize"
	"github.com/quantarax/blocksig/internal/validation"
)

// EnvPrefix prefixes every environment override, e.g. BLOCKSIG_WORKERS.
const EnvPrefix = "BLOCKSIG"

// Config holds signature tool configuration
type Config struct {
	BlockSize         string        `yaml:"block_size" envconfig:"BLOCK_SIZE"`
	Workers           int           `yaml:"workers" envconfig:"WORKERS"`
	QueueDepth        int           `yaml:"queue_depth" envconfig:"QUEUE_DEPTH"`
	HighWaterMark     int           `yaml:"high_water_mark" envconfig:"HIGH_WATER_MARK"`
	MemoryBudget      string        `yaml:"memory_budget" envconfig:"MEMORY_BUDGET"`
	MaxReadRate       string        `yaml:"max_read_rate" envconfig:"MAX_READ_RATE"`
	RetryDelay        time.Duration `yaml:"retry_delay" envconfig:"RETRY_DELAY"`
	MaxRetries        int           `yaml:"max_retries" envconfig:"MAX_RETRIES"`
	DrainPollInterval time.Duration `yaml:"drain_poll_interval" envconfig:"DRAIN_POLL_INTERVAL"`
	LogLevel          string        `yaml:"log_level" envconfig:"LOG_LEVEL"`
	LogFormat         string        `yaml:"log_format" envconfig:"LOG_FORMAT"`
	MetricsAddress    string        `yaml:"metrics_address" envconfig:"METRICS_ADDR"`
	CatalogPath       string        `yaml:"catalog_path" envconfig:"CATALOG_PATH"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		BlockSize:         "1M",
		Workers:           runtime.NumCPU(),
		QueueDepth:        0, // twice the workers
		HighWaterMark:     100,
		MemoryBudget:      "0", // unlimited
		MaxReadRate:       "0", // unlimited
		RetryDelay:        10 * time.Millisecond,
		MaxRetries:        0, // unbounded
		DrainPollInterval: 5 * time.Millisecond,
		LogLevel:          "info",
		LogFormat:         "auto",
	}
}

// LoadConfig layers defaults, the YAML file at configPath (if any) and
// BLOCKSIG_* environment variables, in that order.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", configPath, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	return cfg, nil
}

// Validate checks every field and returns the first problem found.
func (c *Config) Validate() error {
	if _, err := c.ParsedBlockSize(); err != nil {
		return err
	}
	if err := validation.ValidateRangeInt(c.Workers, 1, 4096); err != nil {
		return fmt.Errorf("workers: %w", err)
	}
	if err := validation.ValidateRangeInt(c.QueueDepth, 0, 1<<20); err != nil {
		return fmt.Errorf("queue depth: %w", err)
	}
	if err := validation.ValidateRangeInt(c.HighWaterMark, 1, 1<<24); err != nil {
		return fmt.Errorf("high-water mark: %w", err)
	}
	if err := validation.ValidateRangeInt(c.MaxRetries, 0, 1<<30); err != nil {
		return fmt.Errorf("max retries: %w", err)
	}
	if c.RetryDelay <= 0 || c.DrainPollInterval <= 0 {
		return fmt.Errorf("%w: retry delay and drain poll interval must be positive", validation.ErrOutOfRange)
	}
	budget, err := c.Budget()
	if err != nil {
		return err
	}
	if bs, _ := c.ParsedBlockSize(); budget > 0 && budget < int64(bs.Bytes()) {
		return fmt.Errorf("%w: memory budget %s is smaller than one block (%s)", validation.ErrOutOfRange, c.MemoryBudget, bs)
	}
	if _, err := c.Rate(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "", "auto", "json", "console":
	default:
		return fmt.Errorf("%w: log format %q", validation.ErrOutOfRange, c.LogFormat)
	}
	return nil
}

// ParsedBlockSize parses BlockSize within the default limits.
func (c *Config) ParsedBlockSize() (blocksize.BlockSize, error) {
	return blocksize.ParseWithin(c.BlockSize, blocksize.DefaultLimits)
}

// Budget is the memory budget for block storage in bytes; 0 means unlimited.
func (c *Config) Budget() (int64, error) {
	return parseOptionalSize("memory budget", c.MemoryBudget)
}

// Rate is the maximum read rate in bytes per second; 0 means unlimited.
func (c *Config) Rate() (uint64, error) {
	n, err := parseOptionalSize("max read rate", c.MaxReadRate)
	return uint64(n), err
}

func parseOptionalSize(name, s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := blocksize.ParseSize(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if n > 1<<62 {
		return 0, fmt.Errorf("%s: %w: %s", name, validation.ErrOutOfRange, s)
	}
	return int64(n), nil
}
