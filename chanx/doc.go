// Package chanx provides the channel-backed hand-off primitives used between
// pipeline stages.
//
// Go channels have sharp edges: sends to closed channels panic, closing twice
// panics, and a blocked send has to be combined with context cancellation by
// hand. chanx wraps the two shapes the digit pipeline needs:
//
//   - [Queue]: a bounded queue with back-pressure. Producers suspend in
//     [Queue.Push] while it is full; the consumer drains it without blocking
//     via [Queue.TryPop]. [Queue.Complete] ends the stream exactly once.
//   - [Notifier]: a multi-subscriber broadcast of progress values plus a
//     finalize-once completion signal ([Notifier.Finish], [Notifier.Done]).
//
// Neither type spawns goroutines.
package chanx
