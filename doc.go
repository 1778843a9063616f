// Package pidigits computes digits of π with the Bailey–Borwein–Plouffe
// digit-extraction formula.
//
// The formula yields any hexadecimal digit of π without the ones before it,
// so batches of digits can be computed in parallel and out of order. The
// package turns that into an ordered, exact result:
//
//   - generation units fill pooled buffers with consecutive hex bytes and
//     push them onto a bounded queue;
//   - a single-reader [ReorderBuffer] forwards batches strictly by index;
//   - an [Accumulator] sums the ordered bytes into an exact [Rational],
//     reducing it every few batches;
//   - an [Emitter] expands the final fraction into decimal digits with an
//     exact spigot.
//
// The three stages share one worker pool through a [lane.Scheduler] with a
// lane per stage.
//
// # Running
//
//	res, err := pidigits.Run(ctx,
//	    pidigits.WithBatchSize(64),
//	    pidigits.WithBatches(32),
//	)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(res.Decimal[:12]) // 3.1415926535
//
// A run without [WithBatches] or [WithBytes] continues until ctx is
// cancelled. Cancellation is not an error: the [Result] covers every batch
// absorbed before the stop and has Cancelled set.
//
// # Back-pressure
//
// At most [WithQueueDepth] batches exist between dispatch and
// accumulation. The dispatcher waits for a slot before scheduling the next
// range, so neither the queue nor the reorder window grows with the length
// of the run.
//
// # Errors
//
// Every failure that ends a run is a [*StageError] naming the stage and,
// when known, the batch. Use [StageOf] and [CauseOf] to inspect it. A
// panic inside a stage surfaces as a [*lane.PanicError] cause.
//
// # Extending a result
//
// [Emitter.Remainder] returns the unexpanded rest of a value, so more
// decimal digits can be produced from a [Result] without rerunning the
// pipeline. Digits beyond [Result.ReliableDigits] are exact digits of the
// fraction, not necessarily of π.
package pidigits
