package pidigits

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateBatch is returned when a batch index reaches the reorder
	// stage while a batch with the same index is still pending.
	ErrDuplicateBatch = errors.New("pidigits: duplicate batch index")

	// ErrStaleBatch is returned when a batch index below the next expected
	// index reaches the reorder stage, i.e. it was already forwarded.
	ErrStaleBatch = errors.New("pidigits: stale batch index")

	// ErrIntegerPartExceeded is returned when the accumulated fraction of π
	// reaches 1, which can only happen if bytes were absorbed twice or at the
	// wrong position.
	ErrIntegerPartExceeded = errors.New("pidigits: accumulated value exceeds integer part of pi")

	// ErrFinalized is returned by [Accumulator.Absorb] after
	// [Accumulator.Finalize].
	ErrFinalized = errors.New("pidigits: accumulator already finalized")

	// ErrAlreadyRun is returned when [Pipeline.Run] is called a second time.
	ErrAlreadyRun = errors.New("pidigits: pipeline already run")
)

// Stage names a pipeline stage for error attribution.
type Stage string

const (
	StageGenerate   Stage = "generate"
	StageReorder    Stage = "reorder"
	StageAccumulate Stage = "accumulate"
	StageConvert    Stage = "convert"
)

// StageError wraps an error together with the stage that produced it. Every
// failure that terminates a run is wrapped in a StageError.
type StageError struct {
	Stage Stage
	Batch int64 // batch index, or -1 when not batch-specific
	Err   error
}

func (e *StageError) Error() string {
	if e.Batch >= 0 {
		return fmt.Sprintf("%s stage failed at batch %d: %v", e.Stage, e.Batch, e.Err)
	}
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(s Stage, batch int64, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: s, Batch: batch, Err: err}
}

// IsStageError reports whether err (or any error in its chain) is a
// [*StageError].
func IsStageError(err error) bool {
	if err == nil {
		return false
	}
	var se *StageError
	return errors.As(err, &se)
}

// StageOf extracts the stage from the first [*StageError] in err's chain.
func StageOf(err error) (Stage, bool) {
	if err == nil {
		return "", false
	}
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}

// CauseOf unwraps the first [*StageError] in err's chain and returns its
// underlying cause. If err is not a StageError, it is returned as-is.
func CauseOf(err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return se.Err
	}
	return err
}
