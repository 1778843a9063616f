package strategy

import (
	"context"
	"iter"
	"math"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baxromumarov/pidigits"
	"github.com/baxromumarov/pidigits/config"
	"github.com/baxromumarov/pidigits/lane"
)

const piPrefix = "3.14159265358979323846264338327950288419716939937510"

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.BBP.BatchSize = 8
	cfg.BBP.Batches = 4
	cfg.BBP.Workers = 2
	cfg.MonteCarlo.Samples = 200_000
	cfg.MonteCarlo.ReportEvery = 50_000
	cfg.MonteCarlo.Seed = 42
	cfg.Chudnovsky.Digits = 50
	cfg.Archimedes.Doublings = 20
	return &cfg
}

type recorder struct {
	mu  sync.Mutex
	out strings.Builder
}

func (r *recorder) WriteDigits(seq iter.Seq[byte]) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for c := range seq {
		r.out.WriteByte(c)
	}
	return nil
}

func TestNamesMatchConfig(t *testing.T) {
	assert.Equal(t, config.Strategies, Names())
}

func TestNewUnknown(t *testing.T) {
	_, err := New("leibniz", nil)
	require.ErrorIs(t, err, ErrUnknownStrategy)
	assert.Contains(t, err.Error(), "leibniz")
}

func TestNewNilConfigUsesDefaults(t *testing.T) {
	s, err := New("chudnovsky", nil)
	require.NoError(t, err)
	assert.Equal(t, 1000, s.(*chudnovsky).cfg.Digits)
}

func TestBBP(t *testing.T) {
	s, err := New("bbp", testConfig(), WithRunID("run-bbp"))
	require.NoError(t, err)

	var mu sync.Mutex
	var reports []Report
	a, err := s.Approximate(context.Background(), func(r Report) {
		mu.Lock()
		reports = append(reports, r)
		mu.Unlock()
	})
	require.NoError(t, err)

	assert.Equal(t, "bbp", a.Strategy)
	assert.False(t, a.Cancelled)
	assert.EqualValues(t, 4, a.Steps)
	require.NotNil(t, a.BBP)
	assert.Equal(t, "run-bbp", a.BBP.RunID)
	assert.Equal(t, pidigits.ReliableDigits(32), a.Digits)
	assert.True(t, strings.HasPrefix(a.Decimal, piPrefix), a.Decimal)
	assert.InDelta(t, math.Pi, a.Estimate, 1e-12)

	mu.Lock()
	defer mu.Unlock()
	for _, r := range reports {
		assert.Equal(t, "bbp", r.Strategy)
		assert.EqualValues(t, 4, r.Total)
	}
}

func TestMonteCarlo(t *testing.T) {
	cfg := testConfig()
	s, err := New("montecarlo", cfg)
	require.NoError(t, err)

	var steps []uint64
	a, err := s.Approximate(context.Background(), func(r Report) {
		steps = append(steps, r.Step)
	})
	require.NoError(t, err)

	assert.EqualValues(t, 200_000, a.Steps)
	assert.InDelta(t, math.Pi, a.Estimate, 0.02)
	assert.Equal(t, []uint64{50_000, 100_000, 150_000, 200_000}, steps)
	assert.Equal(t, 1, a.Digits)
	assert.True(t, strings.HasPrefix(a.Decimal, "3."))

	// The same seed gives the same estimate.
	again, err := s.Approximate(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, a.Estimate, again.Estimate)
}

func TestChudnovsky(t *testing.T) {
	s, err := New("chudnovsky", testConfig())
	require.NoError(t, err)

	var last Report
	a, err := s.Approximate(context.Background(), func(r Report) { last = r })
	require.NoError(t, err)

	assert.Equal(t, piPrefix, a.Decimal)
	assert.Equal(t, 50, a.Digits)
	assert.Equal(t, 50, last.Digits)
	assert.GreaterOrEqual(t, a.Steps, uint64(4))
	assert.InDelta(t, math.Pi, a.Estimate, 1e-15)
}

func TestArchimedes(t *testing.T) {
	s, err := New("archimedes", testConfig())
	require.NoError(t, err)

	var reports []Report
	a, err := s.Approximate(context.Background(), func(r Report) { reports = append(reports, r) })
	require.NoError(t, err)

	require.Len(t, reports, 20)
	assert.EqualValues(t, 20, a.Steps)
	assert.GreaterOrEqual(t, a.Digits, 10)
	assert.InDelta(t, math.Pi, a.Estimate, 1e-10)
	// Each doubling moves the inscribed perimeter up towards π.
	for i := 1; i < len(reports); i++ {
		assert.Greater(t, reports[i].Estimate, reports[i-1].Estimate)
		assert.Less(t, reports[i].Estimate, math.Pi)
	}
	assert.True(t, strings.HasPrefix(a.Decimal, "3.14159265"))
}

func TestPolygonDigits(t *testing.T) {
	assert.Equal(t, 0, polygonDigits(0, 256))
	assert.Less(t, polygonDigits(10, 256), polygonDigits(20, 256))
	// Precision caps the geometric bound.
	assert.Equal(t, polygonDigits(200, 64), polygonDigits(300, 64))
}

func TestCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			s, err := New(name, testConfig())
			require.NoError(t, err)

			a, err := s.Approximate(ctx, nil)
			require.NoError(t, err)
			assert.True(t, a.Cancelled)
			assert.Equal(t, name, a.Strategy)
			assert.NotEmpty(t, a.Decimal)
			assert.Zero(t, a.Digits)
		})
	}
}

func TestMonteCarloRunsUntilCancelled(t *testing.T) {
	cfg := testConfig()
	cfg.MonteCarlo.Samples = 0
	cfg.MonteCarlo.ReportEvery = 10_000

	s, err := New("montecarlo", cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	a, err := s.Approximate(ctx, func(r Report) {
		if r.Step >= 100_000 {
			cancel()
		}
	})
	require.NoError(t, err)
	assert.True(t, a.Cancelled)
	assert.GreaterOrEqual(t, a.Steps, uint64(100_000))
}

func TestDigitSinkDelivery(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			var rec recorder
			s, err := New(name, testConfig(), WithDigitSink(&rec))
			require.NoError(t, err)

			a, err := s.Approximate(context.Background(), nil)
			require.NoError(t, err)
			assert.Equal(t, a.Decimal, rec.out.String())
		})
	}
}

func TestFixedToDecimal(t *testing.T) {
	v, _ := new(big.Int).SetString("314159", 10)
	assert.Equal(t, "3.141", fixedToDecimal(v, 5, 3))
	assert.Equal(t, "3", fixedToDecimal(v, 5, 0))
	assert.Equal(t, "0.0314", fixedToDecimal(v, 7, 4))
}

func TestCompare(t *testing.T) {
	var rec recorder
	var mu sync.Mutex
	seen := make(map[string]bool)

	got, err := Compare(context.Background(), Names(), testConfig(), 2, func(r Report) {
		mu.Lock()
		seen[r.Strategy] = true
		mu.Unlock()
	}, WithDigitSink(&rec))
	require.NoError(t, err)

	require.Len(t, got, len(Names()))
	for i, name := range Names() {
		assert.Equal(t, name, got[i].Strategy)
		assert.True(t, strings.HasPrefix(got[i].Decimal, "3."), got[i].Decimal)
	}
	assert.Empty(t, rec.out.String())
	assert.True(t, seen["chudnovsky"])
	assert.True(t, seen["archimedes"])
}

func TestCompareUnknown(t *testing.T) {
	_, err := Compare(context.Background(), []string{"bbp", "leibniz"}, testConfig(), 0, nil)
	require.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestWithLoggerPanicsOnNil(t *testing.T) {
	assert.PanicsWithValue(t, "strategy: WithLogger requires a non-nil logger", func() { WithLogger(nil) })
}

func TestBBPOnSharedPool(t *testing.T) {
	pool := lane.NewPool(context.Background(), 3)
	defer func() { require.NoError(t, pool.Close()) }()

	s, err := New("bbp", testConfig(), WithPool(pool))
	require.NoError(t, err)
	a, err := s.Approximate(context.Background(), nil)
	require.NoError(t, err)

	require.NotNil(t, a.BBP)
	assert.Equal(t, 3, a.BBP.Pool.Workers)
	assert.Positive(t, pool.Stats().Submitted)
	assert.False(t, pool.Closed())
}
