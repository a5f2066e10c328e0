package errors

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKindOf_WalksWrapChain(t *testing.T) {
	err := fmt.Errorf("put map: %w", NewConcurrentModification("m1", 3, 4))

	kind, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, ErrorTypeConcurrentModification, kind)
	assert.True(t, IsErrorType(err, ErrorTypeConcurrentModification))
	assert.True(t, IsRetryable(err))
}

func TestKindOf_Unclassified(t *testing.T) {
	_, ok := KindOf(fmt.Errorf("boom"))
	assert.False(t, ok)
	assert.False(t, IsRetryable(fmt.Errorf("boom")))
}

func TestNewTurnFailed_PrefersClassifiedKind(t *testing.T) {
	tf := NewTurnFailed("CLASSIFYING", ErrorTypeIntentDecode, NewDependencyTimeout("reasoner", time.Second, context.DeadlineExceeded))
	assert.Equal(t, ErrorTypeDependencyTimeout, tf.Kind)

	tf = NewTurnFailed("PERSISTING", ErrorTypePersistence, fmt.Errorf("disk full"))
	assert.Equal(t, ErrorTypePersistence, tf.Kind)
	assert.Contains(t, tf.Error(), "PERSISTING")
}

func TestFromContext(t *testing.T) {
	err := FromContext("index", 2*time.Second, fmt.Errorf("search: %w", context.DeadlineExceeded))
	assert.True(t, IsErrorType(err, ErrorTypeDependencyTimeout))

	err = FromContext("index", 2*time.Second, fmt.Errorf("connection refused"))
	assert.True(t, IsErrorType(err, ErrorTypeDependencyUnavailable))

	decode := NewIntentDecode("missing intent", "{}", nil)
	assert.Same(t, decode, FromContext("reasoner", time.Second, decode))

	assert.NoError(t, FromContext("index", time.Second, nil))
}

func TestIntentDecodeIsNotRetryable(t *testing.T) {
	assert.False(t, IsRetryable(NewIntentDecode("wrong tag", "", nil)))
	assert.False(t, IsRetryable(NewValidation("text", "required")))
}
