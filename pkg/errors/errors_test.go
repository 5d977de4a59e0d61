package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("queue_item", "q-123")
	assert.Equal(t, "queue_item with ID q-123 not found", err.Error())
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, IsNotFound(err))
	assert.False(t, IsNotFound(ErrInvalidInput))
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("priority", -5, "must be non-negative")
	assert.Equal(t, "validation failed for field priority: must be non-negative", err.Error())
	assert.True(t, IsValidationError(err))

	noField := &ValidationError{Message: "empty record"}
	assert.Equal(t, "validation failed: empty record", noField.Error())
}

func TestQueryErrorWrapping(t *testing.T) {
	cause := errors.New("disk full")
	err := NewQueryError("insert", "record", cause)

	assert.Contains(t, err.Error(), "insert")
	assert.Contains(t, err.Error(), "record")
	assert.True(t, errors.Is(err, ErrAdapterFailure))
	assert.Equal(t, cause, errors.Unwrap(err))

	wrapped := fmt.Errorf("saving batch: %w", err)
	assert.True(t, IsAdapterFailure(wrapped))

	var qe *QueryError
	assert.True(t, errors.As(wrapped, &qe))
	assert.Equal(t, "insert", qe.Operation)
}

func TestTransactionError(t *testing.T) {
	cause := errors.New("deadlock")
	err := NewTransactionError("merge commit", cause)
	assert.Contains(t, err.Error(), "merge commit")
	assert.True(t, IsAdapterFailure(err))
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestConnectionError(t *testing.T) {
	err := NewConnectionError("sqlite", errors.New("file locked"))
	assert.Contains(t, err.Error(), "sqlite")
	assert.True(t, IsAdapterFailure(err))
}

func TestQueueError(t *testing.T) {
	err := NewQueueError("adapter not configured", nil)
	assert.True(t, IsQueueError(err))
	assert.True(t, errors.Is(err, ErrNoQueueAdapter))
}

func TestConflictError(t *testing.T) {
	err := NewConflictError([]string{"email", "phone"})
	assert.Equal(t, "merge aborted, conflicting fields: email, phone", err.Error())
	assert.True(t, IsConflict(err))

	empty := NewConflictError(nil)
	assert.Equal(t, "merge aborted due to conflicts", empty.Error())
}

func TestWrapHelpersNilPassthrough(t *testing.T) {
	assert.Nil(t, WrapValidation("field", nil))
	assert.Nil(t, WrapQuery("find", "record", nil))
	assert.Nil(t, WrapTransaction("tx", nil))
	assert.Nil(t, WrapConnection("memory", nil))
}

func TestWrapHelpers(t *testing.T) {
	cause := errors.New("boom")
	assert.True(t, IsValidationError(WrapValidation("name", cause)))
	assert.True(t, IsAdapterFailure(WrapQuery("find", "record", cause)))
	assert.True(t, IsAdapterFailure(WrapTransaction("tx", cause)))
	assert.True(t, IsAdapterFailure(WrapConnection("sqlite", cause)))
}
