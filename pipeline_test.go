package pidigits

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baxromumarov/pidigits/lane"
)

const piHexPrefix = "243F6A8885A308D313198A2E037073"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunTwoBatchesOfEight(t *testing.T) {
	res, err := Run(context.Background(),
		WithBatchSize(8),
		WithBatches(2),
		WithWorkers(4),
		WithLogger(quietLogger()),
	)
	require.NoError(t, err)
	require.False(t, res.Cancelled)

	assert.Equal(t, uint64(16), res.Bytes)
	assert.Equal(t, uint64(2), res.Batches)
	assert.Equal(t, piHexPrefix, res.Hex()[:len(piHexPrefix)])

	frac := DecimalString(res.Fraction, 4)
	assert.Equal(t, "0.1415", frac)
	assert.True(t, strings.HasPrefix(res.Decimal, "3.14159265358979323846"), res.Decimal)
	assert.Equal(t, ReliableDigits(16), len(res.Decimal)-len("3."))
	assert.True(t, res.Value.IsReduced())
}

func TestRunNoBufferLeaks(t *testing.T) {
	res, err := Run(context.Background(),
		WithBatchSize(4),
		WithBatches(40),
		WithQueueDepth(3),
		WithWorkers(4),
		WithLogger(quietLogger()),
	)
	require.NoError(t, err)

	assert.Equal(t, int64(0), res.Buffers.Outstanding, "every leased buffer is released")
	assert.Equal(t, int64(40), res.Buffers.Acquired)
	assert.LessOrEqual(t, res.MaxPending, 3, "reorder window bounded by queue depth")
	// 40 generation units, one drain per batch plus the final one, one conversion.
	assert.Equal(t, int64(40+41+1), res.Lanes.Executed+res.Lanes.Discarded)
	assert.Equal(t, int64(0), res.Lanes.Failed)
	assert.Equal(t, uint64(160), res.Bytes)
	assert.Equal(t, piHexPrefix, res.Hex()[:len(piHexPrefix)])
}

func TestRunMatchesAcrossConfigurations(t *testing.T) {
	ref, err := Run(context.Background(),
		WithBatchSize(48), WithBatches(1), WithWorkers(1), WithLogger(quietLogger()))
	require.NoError(t, err)

	configs := map[string][]Option{
		"small batches": {WithBatchSize(1), WithBatches(48)},
		"parallel sums": {WithBatchSize(5), WithBytes(48), WithParallelAccumulation(true)},
		"eager reduce":  {WithBatchSize(6), WithBatches(8), WithReduceEvery(1)},
		"forward lanes": {WithBatchSize(3), WithBatches(16), WithReversePriority(false)},
		"single worker": {WithBatchSize(7), WithBytes(48), WithMaxConcurrency(1)},
		"tight queue":   {WithBatchSize(2), WithBatches(24), WithQueueDepth(1)},
	}
	for name, opts := range configs {
		t.Run(name, func(t *testing.T) {
			opts = append(opts, WithWorkers(4), WithLogger(quietLogger()))
			res, err := Run(context.Background(), opts...)
			require.NoError(t, err)
			assert.Equal(t, uint64(48), res.Bytes)
			assert.Zero(t, ref.Value.Cmp(res.Value))
			assert.Equal(t, ref.Decimal, res.Decimal)
			assert.Equal(t, ref.Hex(), res.Hex())
			assert.Equal(t, int64(0), res.Buffers.Outstanding)
		})
	}
}

func TestRunTrimsLastBatch(t *testing.T) {
	res, err := Run(context.Background(),
		WithBatchSize(8), WithBytes(13), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, uint64(13), res.Bytes)
	assert.Equal(t, uint64(2), res.Batches)
	assert.Equal(t, piHexPrefix[:26], res.Hex())
}

func TestRunCancellationIsNotAnError(t *testing.T) {
	p := New(WithBatchSize(4), WithWorkers(2), WithLogger(quietLogger()))
	events, stop := p.Progress().Subscribe(64)
	defer stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type outcome struct {
		res *Result
		err error
	}
	out := make(chan outcome, 1)
	go func() {
		res, err := p.Run(ctx)
		out <- outcome{res, err}
	}()

	for ev := range events {
		if ev.Batches >= 3 {
			break
		}
	}
	cancel()

	var o outcome
	select {
	case o = <-out:
	case <-time.After(10 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}
	require.NoError(t, o.err)
	res := o.res
	require.True(t, res.Cancelled)
	assert.GreaterOrEqual(t, res.Batches, uint64(3))
	assert.Equal(t, 4*res.Batches, res.Bytes, "value covers a contiguous prefix of whole batches")
	assert.Equal(t, int64(0), res.Buffers.Outstanding, "cancellation leaks no buffers")

	n := min(len(piHexPrefix), len(res.Hex()))
	assert.Equal(t, piHexPrefix[:n], res.Hex()[:n])
	assert.True(t, strings.HasPrefix(res.Decimal, "3.14159"), res.Decimal)

	select {
	case <-p.Progress().Done():
	default:
		t.Fatal("progress notifier not finished")
	}
}

func TestRunCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Run(ctx, WithBatches(10), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.Equal(t, uint64(0), res.Bytes)
	assert.Equal(t, "3", res.Decimal)
	assert.Zero(t, res.Value.Cmp(NewRational(3, 1)))
}

func TestRunDigitSink(t *testing.T) {
	var got strings.Builder
	sink := DigitSinkFunc(func(seq iter.Seq[byte]) error {
		for c := range seq {
			got.WriteByte(c)
		}
		return nil
	})

	res, err := Run(context.Background(),
		WithBatchSize(8), WithBatches(2), WithDecimalDigits(10),
		WithDigitSink(sink), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, "3.1415926535", got.String())
	assert.Equal(t, got.String(), res.Decimal)
}

func TestRunSinkFailureIsStageError(t *testing.T) {
	boom := errors.New("disk full")
	sink := DigitSinkFunc(func(iter.Seq[byte]) error { return boom })

	res, err := Run(context.Background(),
		WithBatchSize(8), WithBatches(1), WithDigitSink(sink), WithLogger(quietLogger()))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, boom)

	stage, ok := StageOf(err)
	require.True(t, ok)
	assert.Equal(t, StageConvert, stage)
}

func TestRunSinkPanicIsRecovered(t *testing.T) {
	sink := DigitSinkFunc(func(iter.Seq[byte]) error { panic("sink exploded") })

	_, err := Run(context.Background(),
		WithBatchSize(8), WithBatches(1), WithDigitSink(sink), WithLogger(quietLogger()))
	var pe *lane.PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "sink exploded", pe.Value)

	stage, ok := StageOf(err)
	require.True(t, ok)
	assert.Equal(t, StageConvert, stage)
}

func TestRunSharedPool(t *testing.T) {
	pool := lane.NewPool(context.Background(), 3)
	defer func() { require.NoError(t, pool.Close()) }()

	var submitted int64
	for range 3 {
		res, err := Run(context.Background(),
			WithPool(pool), WithBatchSize(4), WithBatches(6), WithLogger(quietLogger()))
		require.NoError(t, err)
		assert.Equal(t, piHexPrefix, res.Hex()[:len(piHexPrefix)])
		assert.LessOrEqual(t, res.Lanes.Limit, 3)
		assert.Equal(t, 3, res.Pool.Workers)
		assert.Greater(t, res.Pool.Submitted, submitted, "stats accumulate on a shared pool")
		submitted = res.Pool.Submitted
	}
	assert.False(t, pool.Closed(), "caller-owned pool stays open")
}

func TestRunOnUnbufferedSharedPool(t *testing.T) {
	pool := lane.NewPool(context.Background(), 2, lane.WithQueueSize(0))
	defer func() { require.NoError(t, pool.Close()) }()

	// Another job holds one of the two workers for part of the run.
	hold := make(chan struct{})
	require.NoError(t, pool.Submit(context.Background(), func() error {
		<-hold
		return nil
	}))
	time.AfterFunc(20*time.Millisecond, func() { close(hold) })

	res, err := Run(context.Background(),
		WithPool(pool), WithBatchSize(2), WithBatches(24), WithQueueDepth(2), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, piHexPrefix, res.Hex()[:len(piHexPrefix)])
	assert.Equal(t, int64(0), res.Buffers.Outstanding)
}

func TestPipelineRunsOnce(t *testing.T) {
	p := New(WithBatches(1), WithBatchSize(2), WithLogger(quietLogger()))
	_, err := p.Run(context.Background())
	require.NoError(t, err)
	_, err = p.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRun)
}

func TestRunWithRunID(t *testing.T) {
	res, err := Run(context.Background(),
		WithBatches(1), WithBatchSize(1), WithRunID("fixed-id"), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", res.RunID)

	res, err = Run(context.Background(), WithBatches(1), WithBatchSize(1), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Len(t, res.RunID, 36, "generated ids are UUIDs")
}

func TestOptionPanics(t *testing.T) {
	assert.Panics(t, func() { WithBatchSize(0) })
	assert.Panics(t, func() { WithBatches(MaxBatches + 1) })
	assert.Panics(t, func() { WithQueueDepth(0) })
	assert.Panics(t, func() { WithReduceEvery(0) })
	assert.Panics(t, func() { WithMaxConcurrency(-1) })
	assert.Panics(t, func() { WithPool(nil) })
	assert.Panics(t, func() { WithWorkers(0) })
	assert.Panics(t, func() { WithLogger(nil) })
}

func TestConfigPlan(t *testing.T) {
	c := defaultConfig()
	c.batchSize = 8

	n, last := c.plan()
	assert.Equal(t, uint64(MaxBatches), n)
	assert.Equal(t, 8, last)

	WithBytes(17)(&c)
	n, last = c.plan()
	assert.Equal(t, uint64(3), n)
	assert.Equal(t, 1, last)

	WithBatches(5)(&c)
	n, last = c.plan()
	assert.Equal(t, uint64(5), n)
	assert.Equal(t, 8, last)
}
