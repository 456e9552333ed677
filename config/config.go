// Package config loads engine configuration from YAML.
//
// Configuration is optional: every field has a default, and embedders that
// build the engine programmatically never touch this package. It exists for
// deployments that drive the engine from an operations-managed file.
package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Config holds all configuration for an engine instance.
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Resource ResourceConfig `yaml:"resource"`
	Flush    FlushConfig    `yaml:"flush"`
}

// StorageConfig covers blob placement and table sizing.
type StorageConfig struct {
	// DataDir is the root directory for the local blob store.
	DataDir string `yaml:"data_dir"`

	// TableCapacity is the record capacity of each in-memory table.
	TableCapacity int `yaml:"table_capacity"`
}

// ResourceConfig covers the global resource budgets.
type ResourceConfig struct {
	// MemoryLimitBytes caps memory for table regions. 0 means tracking only.
	MemoryLimitBytes int64 `yaml:"memory_limit_bytes"`

	// MaxFlushWorkers bounds concurrent background flushes.
	MaxFlushWorkers int64 `yaml:"max_flush_workers"`

	// FlushIOBytesPerSec throttles flush IO. 0 means unlimited.
	FlushIOBytesPerSec int64 `yaml:"flush_io_bytes_per_sec"`
}

// FlushConfig covers the run format.
type FlushConfig struct {
	// Compression is the block codec: "none", "lz4", or "zstd".
	Compression string `yaml:"compression"`

	// BlockRecords is the number of records per run block.
	BlockRecords int `yaml:"block_records"`
}

// Default returns a baseline development config.
func Default() Config {
	return Config{
		Storage: StorageConfig{
			DataDir:       "./data",
			TableCapacity: 1 << 16,
		},
		Resource: ResourceConfig{
			MaxFlushWorkers: 1,
		},
		Flush: FlushConfig{
			Compression:  "zstd",
			BlockRecords: 512,
		},
	}
}

// Load reads a YAML config file, applying defaults for absent fields.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path) //nolint:gosec // G304: path is operator-supplied
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks field ranges.
func (c Config) Validate() error {
	if c.Storage.TableCapacity <= 0 {
		return fmt.Errorf("table_capacity must be positive, got %d", c.Storage.TableCapacity)
	}
	if c.Flush.BlockRecords <= 0 {
		return fmt.Errorf("block_records must be positive, got %d", c.Flush.BlockRecords)
	}
	switch c.Flush.Compression {
	case "none", "lz4", "zstd":
	default:
		return fmt.Errorf("unknown compression %q", c.Flush.Compression)
	}
	return nil
}
