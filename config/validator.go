package config

import (
	"fmt"
	"slices"
)

// Validate checks cfg and fills zero values that have a natural default.
func Validate(cfg *Config) error {
	if !slices.Contains(Strategies, cfg.Strategy) {
		return fmt.Errorf("strategy must be one of %v, got %q", Strategies, cfg.Strategy)
	}
	if cfg.TimeoutS < 0 {
		return fmt.Errorf("timeout_s must be >= 0")
	}

	if err := validateBBP(&cfg.BBP); err != nil {
		return err
	}

	if cfg.MonteCarlo.ReportEvery == 0 {
		cfg.MonteCarlo.ReportEvery = 1_000_000
	}
	if cfg.Chudnovsky.Digits <= 0 {
		return fmt.Errorf("chudnovsky.digits must be > 0")
	}
	if cfg.Archimedes.Doublings < 0 {
		return fmt.Errorf("archimedes.doublings must be >= 0")
	}
	if cfg.Archimedes.Precision < 64 {
		return fmt.Errorf("archimedes.precision must be >= 64 bits")
	}

	if cfg.Output.ChunkSize <= 0 {
		cfg.Output.ChunkSize = 4096
	}

	if cfg.Log.MetricsIntervalMS < 0 {
		return fmt.Errorf("log.metrics_interval_ms must be >= 0")
	}
	if _, err := cfg.Log.SlogLevel(); err != nil {
		return err
	}
	switch cfg.Log.Format {
	case "text", "json":
	case "":
		cfg.Log.Format = "text"
	default:
		return fmt.Errorf("log.format must be text or json, got %q", cfg.Log.Format)
	}
	return nil
}

func validateBBP(b *BBPConfig) error {
	if b.BatchSize <= 0 {
		return fmt.Errorf("bbp.batch_size must be > 0")
	}
	if b.QueueDepth <= 0 {
		return fmt.Errorf("bbp.queue_depth must be > 0")
	}
	if b.ReduceEvery <= 0 {
		return fmt.Errorf("bbp.reduce_every must be > 0")
	}
	if b.Workers < 0 {
		return fmt.Errorf("bbp.workers must be >= 0")
	}
	if b.PoolQueue < 0 {
		return fmt.Errorf("bbp.pool_queue must be >= 0")
	}
	if b.MaxConcurrency < 0 {
		return fmt.Errorf("bbp.max_concurrency must be >= 0")
	}
	if b.Epsilon <= 0 || b.Epsilon >= 1 {
		return fmt.Errorf("bbp.epsilon must be in (0, 1)")
	}
	if b.MaxTailTerms <= 0 {
		return fmt.Errorf("bbp.max_tail_terms must be > 0")
	}
	return nil
}
