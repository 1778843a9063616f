// Package lane provides a prioritized, tree-structured work scheduler on top
// of a shared bounded worker pool.
//
// A [Scheduler] owns a tree of [Lane]s. Work is enqueued on any lane; the
// root lane borrows up to [Scheduler.Limit] workers from a [Pool], and each
// worker repeatedly picks the next item by checking a lane's own queue and
// then its children in index order:
//
//	pool := lane.NewPool(ctx, runtime.NumCPU())
//	s := lane.NewScheduler(ctx, pool, lane.WithMaxConcurrency(4))
//	fast, slow := s.Root().Child(0), s.Root().Child(1)
//	_ = slow.Enqueue(func(ctx context.Context) error { return nil })
//	_ = fast.Enqueue(func(ctx context.Context) error { return nil })
//	s.Wait()
//
// [WithReversePriority] flips the sibling order so higher-indexed lanes win.
//
// # Disposal
//
// [Lane.Dispose] cancels the lane's context and removes everything queued on
// it and its descendants. Each removed item is invoked once with the
// cancelled context so it can give back buffers or slots it holds. Enqueue
// on a disposed lane returns [ErrDisposed].
//
// # Panics
//
// A panic inside work is recovered and recorded as a [*PanicError]. The
// first recorded failure is available from [Scheduler.Err].
//
// [Semaphore] is a context-aware counting semaphore used to bound the
// number of items in flight between stages.
package lane
