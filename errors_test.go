package pidigits

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStageErrorMessage(t *testing.T) {
	cause := errors.New("boom")
	assert.Equal(t, "reorder stage failed at batch 7: boom",
		(&StageError{Stage: StageReorder, Batch: 7, Err: cause}).Error())
	assert.Equal(t, "convert stage failed: boom",
		(&StageError{Stage: StageConvert, Batch: -1, Err: cause}).Error())
}

func TestStageErrorHelpers(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("run: %w", stageErr(StageAccumulate, 3, cause))

	assert.True(t, IsStageError(err))
	assert.False(t, IsStageError(cause))
	assert.False(t, IsStageError(nil))

	st, ok := StageOf(err)
	assert.True(t, ok)
	assert.Equal(t, StageAccumulate, st)
	_, ok = StageOf(cause)
	assert.False(t, ok)

	assert.Same(t, cause, CauseOf(err))
	assert.Same(t, cause, CauseOf(cause))
	assert.NoError(t, CauseOf(nil))
	assert.ErrorIs(t, err, cause)
}

func TestStageErrNoDoubleWrap(t *testing.T) {
	inner := stageErr(StageReorder, 1, ErrDuplicateBatch)
	outer := stageErr(StageGenerate, 2, inner)
	assert.Same(t, inner, outer)
	assert.NoError(t, stageErr(StageGenerate, 0, nil))
}
