package ai

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Run("NilError", func(t *testing.T) {
		assert.Nil(t, Classify(nil))
	})

	t.Run("CapacitySentinel", func(t *testing.T) {
		err := fmt.Errorf("%w: prompt too large", ErrCapacityExceeded)
		classified := Classify(err)
		require.NotNil(t, classified)
		assert.Equal(t, FailureCapacity, classified.Kind)
		assert.True(t, errors.Is(classified, ErrCapacityExceeded))
	})

	t.Run("TimeoutSentinel", func(t *testing.T) {
		classified := Classify(ErrFirstFragmentTimeout)
		require.NotNil(t, classified)
		assert.Equal(t, FailureTimeout, classified.Kind)
	})

	t.Run("ContextDeadline", func(t *testing.T) {
		classified := Classify(context.DeadlineExceeded)
		require.NotNil(t, classified)
		assert.Equal(t, FailureTimeout, classified.Kind)
	})

	t.Run("ProviderCapacityMessage", func(t *testing.T) {
		classified := Classify(errors.New("request exceeds model context length"))
		require.NotNil(t, classified)
		assert.Equal(t, FailureCapacity, classified.Kind)
	})

	t.Run("UnknownIsFatal", func(t *testing.T) {
		classified := Classify(errors.New("disk on fire"))
		require.NotNil(t, classified)
		assert.Equal(t, FailureFatal, classified.Kind)
	})

	t.Run("ExistingTurnErrorPassesThrough", func(t *testing.T) {
		original := NewTurnError(FailureBudget, errors.New("nothing fits"))
		classified := Classify(fmt.Errorf("plan: %w", original))
		require.NotNil(t, classified)
		assert.Equal(t, FailureBudget, classified.Kind)
	})
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrFirstFragmentTimeout))
	assert.True(t, IsRetryable(ErrCapacityExceeded))
	assert.False(t, IsRetryable(NewTurnError(FailureBudget, nil)))
	assert.False(t, IsRetryable(NewTurnError(FailureStaleTarget, nil)))
	assert.False(t, IsRetryable(errors.New("boom")))
	assert.False(t, IsRetryable(nil))
}

func TestTurnErrorUserMessage(t *testing.T) {
	kinds := []FailureKind{FailureFatal, FailureTimeout, FailureCapacity, FailureBudget}
	for _, kind := range kinds {
		msg := NewTurnError(kind, errors.New("internal detail")).UserMessage()
		assert.NotEmpty(t, msg)
		assert.NotContains(t, msg, "internal detail")
	}
}
