package lane

import (
	"fmt"
	"runtime"
)

// PanicError wraps a panic recovered from a unit of work, together with the
// lane it was queued on and the goroutine stack at the point of the panic.
type PanicError struct {
	// Lane is the arena index of the lane the work was queued on.
	Lane int

	// Value is the original value passed to panic().
	Value any

	// Stack is the goroutine stack trace at the point of panic.
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("lane %d: panic: %v\n\n%s", e.Lane, e.Value, e.Stack)
}

func newPanicError(lane int, v any) *PanicError {
	// runtime.Stack truncates if 8 KiB is not enough.
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	return &PanicError{
		Lane:  lane,
		Value: v,
		Stack: string(buf[:n]),
	}
}
