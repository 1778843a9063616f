// Command pidigits approximates π with one of the registered strategies and
// optionally writes the digits to a timestamped file.
//
//	pidigits -strategy bbp -batches 64 -out ./digits
//	pidigits -config run.yaml -json
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sugawarayuuta/sonnet"

	"github.com/baxromumarov/pidigits/config"
	"github.com/baxromumarov/pidigits/digitfile"
	"github.com/baxromumarov/pidigits/lane"
	"github.com/baxromumarov/pidigits/strategy"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "pidigits:", err)
		os.Exit(1)
	}
}

// summary is the machine-readable outcome printed with -json.
type summary struct {
	RunID     string             `json:"run_id"`
	Strategy  string             `json:"strategy"`
	Decimal   string             `json:"decimal"`
	Digits    int                `json:"digits"`
	Estimate  float64            `json:"estimate"`
	Steps     uint64             `json:"steps"`
	Cancelled bool               `json:"cancelled"`
	ElapsedMS int64              `json:"elapsed_ms"`
	Hex       string             `json:"hex,omitempty"`
	File      *digitfile.Summary `json:"file,omitempty"`
	Pool      *lane.PoolStats    `json:"pool,omitempty"`
}

type flags struct {
	configPath string
	asJSON     bool
	compare    bool
	strategy   string
	timeout    time.Duration
	batches    uint64
	batchSize  int
	workers    int
	poolQueue  int
	metrics    time.Duration
	decimals   int
	samples    uint64
	digits     int
	doublings  int
	outDir     string
	compress   bool
	logLevel   string
	logFormat  string
}

func parseFlags(args []string, stderr io.Writer) (*flags, map[string]bool, error) {
	var f flags
	fs := flag.NewFlagSet("pidigits", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.configPath, "config", "", "YAML configuration file")
	fs.BoolVar(&f.asJSON, "json", false, "print the summary as JSON")
	fs.BoolVar(&f.compare, "compare", false, "run every strategy concurrently and compare them")
	fs.StringVar(&f.strategy, "strategy", "", "strategy: archimedes, bbp, chudnovsky or montecarlo")
	fs.DurationVar(&f.timeout, "timeout", 0, "stop after this long (0 = no limit)")
	fs.Uint64Var(&f.batches, "batches", 0, "bbp: number of batches (0 = until interrupted)")
	fs.IntVar(&f.batchSize, "batch-size", 0, "bbp: bytes per batch")
	fs.IntVar(&f.workers, "workers", 0, "bbp: worker pool size")
	fs.IntVar(&f.poolQueue, "pool-queue", 0, "bbp: tasks waiting for a pool worker (0 = twice workers)")
	fs.DurationVar(&f.metrics, "metrics-interval", 0, "log worker pool stats this often (0 = never)")
	fs.IntVar(&f.decimals, "decimals", 0, "bbp: decimal digits to convert (-1 = reliable digits)")
	fs.Uint64Var(&f.samples, "samples", 0, "montecarlo: number of samples (0 = until interrupted)")
	fs.IntVar(&f.digits, "digits", 0, "chudnovsky: decimal digits")
	fs.IntVar(&f.doublings, "doublings", 0, "archimedes: polygon doublings")
	fs.StringVar(&f.outDir, "out", "", "directory for the digit file")
	fs.BoolVar(&f.compress, "compress", false, "zstd-compress the digit file")
	fs.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	fs.StringVar(&f.logFormat, "log-format", "", "text or json")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if fs.NArg() > 0 {
		return nil, nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	set := make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	return &f, set, nil
}

// loadConfig reads the configuration file, if any, and applies the flags
// that were set explicitly on top of it.
func loadConfig(f *flags, set map[string]bool) (*config.Config, error) {
	var cfg *config.Config
	if f.configPath != "" {
		c, err := config.Load(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = c
	} else {
		def := config.Default()
		cfg = &def
	}

	for name := range set {
		switch name {
		case "strategy":
			cfg.Strategy = f.strategy
		case "timeout":
			cfg.TimeoutS = int(f.timeout.Round(time.Second) / time.Second)
		case "batches":
			cfg.BBP.Batches = f.batches
		case "batch-size":
			cfg.BBP.BatchSize = f.batchSize
		case "workers":
			cfg.BBP.Workers = f.workers
		case "pool-queue":
			cfg.BBP.PoolQueue = f.poolQueue
		case "metrics-interval":
			cfg.Log.MetricsIntervalMS = int(f.metrics.Milliseconds())
		case "decimals":
			cfg.BBP.DecimalDigits = f.decimals
		case "samples":
			cfg.MonteCarlo.Samples = f.samples
		case "digits":
			cfg.Chudnovsky.Digits = f.digits
		case "doublings":
			cfg.Archimedes.Doublings = f.doublings
		case "out":
			cfg.Output.Dir = f.outDir
		case "compress":
			cfg.Output.Compress = f.compress
		case "log-level":
			cfg.Log.Level = f.logLevel
		case "log-format":
			cfg.Log.Format = f.logFormat
		}
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(c config.LogConfig, w io.Writer) (*slog.Logger, error) {
	lvl, err := c.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// newPool starts the worker pool shared by every pipeline the command runs.
func newPool(ctx context.Context, cfg *config.Config, logger *slog.Logger) *lane.Pool {
	n := cfg.BBP.Workers
	if n == 0 {
		n = runtime.NumCPU()
	}
	var opts []lane.PoolOption
	if cfg.BBP.PoolQueue > 0 {
		opts = append(opts, lane.WithQueueSize(cfg.BBP.PoolQueue))
	}
	if d := cfg.Log.MetricsInterval(); d > 0 {
		opts = append(opts, lane.WithPoolMetrics(d, func(st lane.PoolStats) {
			logger.Info("pidigits: pool",
				"workers", st.Workers,
				"in_flight", st.InFlight,
				"queue_depth", st.QueueDepth,
				"submitted", st.Submitted,
				"completed", st.Completed,
				"errored", st.Errored,
			)
		}))
	}
	return lane.NewPool(ctx, n, opts...)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) (err error) {
	f, set, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(f, set)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log, stderr)
	if err != nil {
		return err
	}

	if d := cfg.Timeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	runID := uuid.NewString()
	started := time.Now()
	logger = logger.With("run_id", runID)
	logger.Info("pidigits: run started", "strategy", cfg.Strategy, "timeout", cfg.Timeout())

	opts := []strategy.Option{strategy.WithLogger(logger), strategy.WithRunID(runID)}
	if f.compare || cfg.Strategy == "bbp" {
		pool := newPool(ctx, cfg, logger)
		defer func() {
			if cerr := pool.Close(); cerr != nil {
				err = errors.Join(err, fmt.Errorf("worker pool: %w", cerr))
			}
		}()
		opts = append(opts, strategy.WithPool(pool))
	}
	progress := func(r strategy.Report) {
		logger.Debug("pidigits: progress", "strategy", r.Strategy, "step", r.Step, "total", r.Total, "digits", r.Digits)
	}

	if f.compare {
		all, err := strategy.Compare(ctx, strategy.Names(), cfg, 0, progress, opts...)
		if err != nil {
			logger.Error("pidigits: compare failed", "error", err)
			return err
		}
		sums := make([]summary, len(all))
		for i, a := range all {
			sums[i] = summarize(runID, a)
		}
		return printComparison(stdout, sums, f.asJSON)
	}

	var out *digitfile.File
	if cfg.Output.Dir != "" {
		out, err = digitfile.Create(cfg.Output.Dir, runID, started,
			digitfile.WithCompression(cfg.Output.Compress),
			digitfile.WithChunkSize(cfg.Output.ChunkSize),
		)
		if err != nil {
			return err
		}
		opts = append(opts, strategy.WithDigitSink(out))
	}

	s, err := strategy.New(cfg.Strategy, cfg, opts...)
	if err != nil {
		if out != nil {
			_, _ = out.Close()
		}
		return err
	}

	a, err := s.Approximate(ctx, progress)

	sum := summarize(runID, a)
	if out != nil {
		fs, cerr := out.Close()
		if cerr != nil {
			err = errors.Join(err, cerr)
		} else {
			sum.File = &fs
		}
	}
	if err != nil {
		logger.Error("pidigits: run failed", "error", err)
		return err
	}

	logger.Info("pidigits: run finished",
		"steps", a.Steps,
		"digits", a.Digits,
		"cancelled", a.Cancelled,
		"elapsed", a.Elapsed,
	)
	return printSummary(stdout, sum, f.asJSON)
}

func summarize(runID string, a strategy.Approximation) summary {
	s := summary{
		RunID:     runID,
		Strategy:  a.Strategy,
		Decimal:   a.Decimal,
		Digits:    a.Digits,
		Estimate:  a.Estimate,
		Steps:     a.Steps,
		Cancelled: a.Cancelled,
		ElapsedMS: a.Elapsed.Milliseconds(),
	}
	if a.BBP != nil {
		s.Hex = a.BBP.Hex()
		ps := a.BBP.Pool
		s.Pool = &ps
	}
	return s
}

func printComparison(w io.Writer, sums []summary, asJSON bool) error {
	if asJSON {
		data, err := sonnet.Marshal(sums)
		if err != nil {
			return fmt.Errorf("encode summary: %w", err)
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	}

	for _, s := range sums {
		fmt.Fprintf(w, "%-10s %6d digits %12d steps %8dms  %.15f\n",
			s.Strategy, s.Digits, s.Steps, s.ElapsedMS, s.Estimate)
	}
	return nil
}

func printSummary(w io.Writer, s summary, asJSON bool) error {
	if asJSON {
		data, err := sonnet.Marshal(s)
		if err != nil {
			return fmt.Errorf("encode summary: %w", err)
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	}

	fmt.Fprintln(w, s.Decimal)
	fmt.Fprintf(w, "strategy=%s digits=%d steps=%d elapsed=%dms", s.Strategy, s.Digits, s.Steps, s.ElapsedMS)
	if s.Cancelled {
		fmt.Fprint(w, " (cancelled)")
	}
	fmt.Fprintln(w)
	if s.File != nil {
		fmt.Fprintf(w, "file=%s sha3=%s\n", s.File.Path, s.File.SHA3)
	}
	return nil
}
