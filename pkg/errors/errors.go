// Package errors provides custom error types for the resolve engine.
// These errors enable programmatic error checking at adapter and engine
// boundaries and improved debugging throughout the resolution pipeline.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// As is an alias for the standard library errors.As.
var As = errors.As

// Common sentinel errors for the resolve engine
var (
	// ErrNotFound indicates that a requested record or queue item was not found
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates that a resource already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict indicates an unresolvable merge conflict
	ErrConflict = errors.New("merge conflict")

	// ErrNoQueueAdapter indicates the review queue was accessed without a configured adapter
	ErrNoQueueAdapter = errors.New("no queue adapter configured")

	// ErrAdapterFailure indicates a storage adapter failed at its boundary
	ErrAdapterFailure = errors.New("adapter failure")

	// ErrCanceled indicates that an operation was canceled
	ErrCanceled = errors.New("operation canceled")

	// ErrNotImplemented indicates that a feature is not yet implemented
	ErrNotImplemented = errors.New("not implemented")
)

// NotFoundError represents an error when a record or queue item is not found
type NotFoundError struct {
	Resource string
	ID       string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Resource, e.ID)
}

// Is implements errors.Is support
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// QueryError represents a failure executing a query against a storage adapter
type QueryError struct {
	Operation string // "find", "insert", "update", "delete", "count"
	Resource  string // "record", "queue_item", "provenance", "archive"
	Message   string
	Err       error
}

// Error implements the error interface
func (e *QueryError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("query error during %s of %s: %s", e.Operation, e.Resource, e.Message)
	}
	return fmt.Sprintf("query error during %s: %s", e.Operation, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *QueryError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *QueryError) Is(target error) bool {
	return target == ErrAdapterFailure
}

// NewQueryError creates a new QueryError
func NewQueryError(operation, resource string, err error) *QueryError {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &QueryError{
		Operation: operation,
		Resource:  resource,
		Message:   message,
		Err:       err,
	}
}

// TransactionError represents a failure inside an adapter transaction
type TransactionError struct {
	Operation string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *TransactionError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("transaction error during %s: %s", e.Operation, e.Message)
	}
	return fmt.Sprintf("transaction error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *TransactionError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *TransactionError) Is(target error) bool {
	return target == ErrAdapterFailure
}

// NewTransactionError creates a new TransactionError
func NewTransactionError(operation string, err error) *TransactionError {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &TransactionError{Operation: operation, Message: message, Err: err}
}

// ConnectionError represents a failure connecting to a storage backend
type ConnectionError struct {
	Backend string // "sqlite", "memory", caller-defined
	Message string
	Err     error
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e.Backend != "" {
		return fmt.Sprintf("connection error (%s): %s", e.Backend, e.Message)
	}
	return fmt.Sprintf("connection error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *ConnectionError) Is(target error) bool {
	return target == ErrAdapterFailure
}

// NewConnectionError creates a new ConnectionError
func NewConnectionError(backend string, err error) *ConnectionError {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ConnectionError{Backend: backend, Message: message, Err: err}
}

// QueueError represents a review-queue configuration or access error
type QueueError struct {
	Message string
	Err     error
}

// Error implements the error interface
func (e *QueueError) Error() string {
	return fmt.Sprintf("queue error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *QueueError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *QueueError) Is(target error) bool {
	return target == ErrNoQueueAdapter
}

// NewQueueError creates a new QueueError
func NewQueueError(message string, err error) *QueueError {
	return &QueueError{Message: message, Err: err}
}

// ConflictError aborts a merge when conflict resolution is set to error.
// It is returned, never panicked: batch callers inspect it per pair and
// continue with the rest of the batch.
type ConflictError struct {
	Fields []string // field names that held conflicting values
	Err    error
}

// Error implements the error interface
func (e *ConflictError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("merge aborted, conflicting fields: %s", strings.Join(e.Fields, ", "))
	}
	return "merge aborted due to conflicts"
}

// Unwrap implements errors.Unwrap
func (e *ConflictError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// NewConflictError creates a new ConflictError
func NewConflictError(fields []string) *ConflictError {
	return &ConflictError{Fields: fields}
}

// Helper functions for error checking

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsConflict checks if an error is a merge conflict abort
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsAdapterFailure checks if an error originated at a storage adapter boundary
func IsAdapterFailure(err error) bool {
	return errors.Is(err, ErrAdapterFailure)
}

// IsQueueError checks if an error is a queue configuration error
func IsQueueError(err error) bool {
	return errors.Is(err, ErrNoQueueAdapter)
}

// IsCanceled checks if an error is a cancellation error
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// Helper wrapping functions for common patterns

// WrapCanceled wraps a context error as a cancellation error
func WrapCanceled(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrCanceled, err)
}

// WrapValidation wraps an error as a ValidationError
func WrapValidation(field string, err error) error {
	if err == nil {
		return nil
	}
	return &ValidationError{Field: field, Message: err.Error()}
}

// WrapQuery wraps an error as a QueryError
func WrapQuery(operation, resource string, err error) error {
	if err == nil {
		return nil
	}
	return NewQueryError(operation, resource, err)
}

// WrapTransaction wraps an error as a TransactionError
func WrapTransaction(operation string, err error) error {
	if err == nil {
		return nil
	}
	return NewTransactionError(operation, err)
}

// WrapConnection wraps an error as a ConnectionError
func WrapConnection(backend string, err error) error {
	if err == nil {
		return nil
	}
	return NewConnectionError(backend, err)
}
