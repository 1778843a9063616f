package lane_test

import (
	"context"
	"fmt"
	"runtime"
	"testing"

	"github.com/sourcegraph/conc"
	concpool "github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/errgroup"

	"github.com/baxromumarov/pidigits/lane"
)

// Limited concurrency: run N no-op items with at most 8 at a time.

func BenchmarkLimited_Errgroup(b *testing.B) {
	for _, n := range []int{100, 1000} {
		b.Run(fmt.Sprintf("n=%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				g, _ := errgroup.WithContext(context.Background())
				g.SetLimit(8)
				for range n {
					g.Go(func() error { return nil })
				}
				_ = g.Wait()
			}
		})
	}
}

func BenchmarkLimited_ConcPool(b *testing.B) {
	for _, n := range []int{100, 1000} {
		b.Run(fmt.Sprintf("n=%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				p := concpool.New().WithMaxGoroutines(8)
				for range n {
					p.Go(func() {})
				}
				p.Wait()
			}
		})
	}
}

func BenchmarkLimited_Scheduler(b *testing.B) {
	pool := lane.NewPool(context.Background(), runtime.NumCPU())
	defer pool.Close()

	for _, n := range []int{100, 1000} {
		b.Run(fmt.Sprintf("n=%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				s := lane.NewScheduler(context.Background(), pool, lane.WithMaxConcurrency(8))
				root := s.Root()
				for range n {
					_ = root.Enqueue(func(context.Context) error { return nil })
				}
				s.Wait()
			}
		})
	}
}

// Three lanes: the shape of the digit pipeline, with work spread over
// generate, reorder and convert lanes.

func BenchmarkLanes_ConcWaitGroup(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		wg := conc.NewWaitGroup()
		for range 300 {
			wg.Go(func() {})
		}
		wg.Wait()
	}
}

func BenchmarkLanes_Scheduler(b *testing.B) {
	pool := lane.NewPool(context.Background(), runtime.NumCPU())
	defer pool.Close()

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		s := lane.NewScheduler(context.Background(), pool, lane.WithReversePriority(true))
		root := s.Root()
		for j := range 300 {
			_ = root.Child(j % 3).Enqueue(func(context.Context) error { return nil })
		}
		s.Wait()
	}
}
