// Package config loads the YAML run configuration used by the command-line
// tool.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Strategies lists the strategy names a configuration may select.
var Strategies = []string{"archimedes", "bbp", "chudnovsky", "montecarlo"}

// Config is the complete run configuration.
type Config struct {
	Strategy   string           `yaml:"strategy"`
	TimeoutS   int              `yaml:"timeout_s"` // 0 runs until interrupted or done
	BBP        BBPConfig        `yaml:"bbp"`
	MonteCarlo MonteCarloConfig `yaml:"montecarlo"`
	Chudnovsky ChudnovskyConfig `yaml:"chudnovsky"`
	Archimedes ArchimedesConfig `yaml:"archimedes"`
	Output     OutputConfig     `yaml:"output"`
	Log        LogConfig        `yaml:"log"`
}

// BBPConfig tunes the digit-extraction pipeline.
type BBPConfig struct {
	BatchSize            int     `yaml:"batch_size"`      // bytes per batch
	Batches              uint64  `yaml:"batches"`         // 0 runs until cancelled
	QueueDepth           int     `yaml:"queue_depth"`     // batches in flight
	ReduceEvery          int     `yaml:"reduce_every"`    // batches between reductions
	Workers              int     `yaml:"workers"`         // 0 means one per CPU
	PoolQueue            int     `yaml:"pool_queue"`      // tasks waiting for a worker, 0 means twice workers
	MaxConcurrency       int     `yaml:"max_concurrency"` // 0 means workers
	ReversePriority      bool    `yaml:"reverse_priority"`
	ParallelAccumulation bool    `yaml:"parallel_accumulation"`
	DecimalDigits        int     `yaml:"decimal_digits"` // -1 means reliable digits
	Epsilon              float64 `yaml:"epsilon"`
	MaxTailTerms         int     `yaml:"max_tail_terms"`
}

// MonteCarloConfig tunes random sampling.
type MonteCarloConfig struct {
	Samples     uint64 `yaml:"samples"`      // 0 runs until cancelled
	ReportEvery uint64 `yaml:"report_every"` // samples between progress reports
	Seed        uint64 `yaml:"seed"`         // 0 picks a random seed
}

// ChudnovskyConfig tunes the Chudnovsky series.
type ChudnovskyConfig struct {
	Digits int `yaml:"digits"`
}

// ArchimedesConfig tunes polygon doubling.
type ArchimedesConfig struct {
	Doublings int  `yaml:"doublings"`
	Precision uint `yaml:"precision"` // mantissa bits
}

// OutputConfig controls the digit file.
type OutputConfig struct {
	Dir       string `yaml:"dir"` // empty disables the file
	Compress  bool   `yaml:"compress"`
	ChunkSize int    `yaml:"chunk_size"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json

	MetricsIntervalMS int `yaml:"metrics_interval_ms"` // worker pool stats cadence, 0 disables
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Strategy: "bbp",
		BBP: BBPConfig{
			BatchSize:       64,
			Batches:         16,
			QueueDepth:      64,
			ReduceEvery:     10,
			ReversePriority: true,
			DecimalDigits:   -1,
			Epsilon:         1e-17,
			MaxTailTerms:    100,
		},
		MonteCarlo: MonteCarloConfig{
			Samples:     10_000_000,
			ReportEvery: 1_000_000,
		},
		Chudnovsky: ChudnovskyConfig{Digits: 1000},
		Archimedes: ArchimedesConfig{Doublings: 30, Precision: 256},
		Output:     OutputConfig{ChunkSize: 4096},
		Log:        LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads a YAML file over the defaults and validates the result.
// Keys missing from the file keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Timeout returns the run timeout, zero when unset.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutS) * time.Second
}

// MetricsInterval returns how often worker pool stats are logged, zero
// when disabled.
func (l LogConfig) MetricsInterval() time.Duration {
	return time.Duration(l.MetricsIntervalMS) * time.Millisecond
}

// SlogLevel parses Log.Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}
