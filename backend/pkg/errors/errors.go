package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeValidation represents requests rejected before any external call
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeNotFound represents a missing map record
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeDependencyUnavailable represents an unreachable embedding service, index or store
	ErrorTypeDependencyUnavailable ErrorType = "dependency_unavailable"
	// ErrorTypeDependencyTimeout represents an external call that exceeded its deadline
	ErrorTypeDependencyTimeout ErrorType = "dependency_timeout"
	// ErrorTypeIntentDecode represents reasoner output that does not fit the intent contract
	ErrorTypeIntentDecode ErrorType = "intent_decode"
	// ErrorTypeConcurrentModification represents a lost-update race on a map record
	ErrorTypeConcurrentModification ErrorType = "concurrent_modification"
	// ErrorTypePersistence represents a failed graph write
	ErrorTypePersistence ErrorType = "persistence"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// Kind returns the error category
func (e *BaseError) Kind() ErrorType {
	return e.Type
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// kinded is implemented by every error in this package
type kinded interface {
	Kind() ErrorType
}

// Validation Errors

// ErrValidation is returned when a request is missing text, map or owner
type ErrValidation struct {
	*BaseError
	Field  string
	Reason string
}

func NewValidation(field, reason string) *ErrValidation {
	return &ErrValidation{
		BaseError: NewBaseError(ErrorTypeValidation, fmt.Sprintf("invalid %s: %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// ErrMapNotFound is returned when a map record does not exist
type ErrMapNotFound struct {
	*BaseError
	MapID string
}

func NewMapNotFound(mapID string) *ErrMapNotFound {
	return &ErrMapNotFound{
		BaseError: NewBaseError(ErrorTypeNotFound, fmt.Sprintf("map not found: %s", mapID), nil),
		MapID:     mapID,
	}
}

// Dependency Errors

// ErrDependencyUnavailable is returned when an external collaborator cannot be reached
type ErrDependencyUnavailable struct {
	*BaseError
	Dependency string
}

func NewDependencyUnavailable(dependency string, err error) *ErrDependencyUnavailable {
	return &ErrDependencyUnavailable{
		BaseError:  NewBaseError(ErrorTypeDependencyUnavailable, fmt.Sprintf("%s unavailable", dependency), err),
		Dependency: dependency,
	}
}

// ErrDependencyTimeout is returned when an external call exceeds its deadline
type ErrDependencyTimeout struct {
	*BaseError
	Dependency string
	Timeout    time.Duration
}

func NewDependencyTimeout(dependency string, timeout time.Duration, err error) *ErrDependencyTimeout {
	return &ErrDependencyTimeout{
		BaseError:  NewBaseError(ErrorTypeDependencyTimeout, fmt.Sprintf("%s timed out after %v", dependency, timeout), err),
		Dependency: dependency,
		Timeout:    timeout,
	}
}

// Intent Errors

// ErrIntentDecode is returned when the reasoner response cannot be decoded into an intent
type ErrIntentDecode struct {
	*BaseError
	Reason string
	Raw    string
}

func NewIntentDecode(reason, raw string, err error) *ErrIntentDecode {
	return &ErrIntentDecode{
		BaseError: NewBaseError(ErrorTypeIntentDecode, fmt.Sprintf("malformed reasoner output: %s", reason), err),
		Reason:    reason,
		Raw:       raw,
	}
}

// Store Errors

// ErrConcurrentModification is returned when a map changed between read and write
type ErrConcurrentModification struct {
	*BaseError
	MapID    string
	Expected int64
	Actual   int64
}

func NewConcurrentModification(mapID string, expected, actual int64) *ErrConcurrentModification {
	return &ErrConcurrentModification{
		BaseError: NewBaseError(ErrorTypeConcurrentModification,
			fmt.Sprintf("map %s modified concurrently (expected revision %d, found %d)", mapID, expected, actual), nil),
		MapID:    mapID,
		Expected: expected,
		Actual:   actual,
	}
}

// ErrPersistence is returned when a graph write fails
type ErrPersistence struct {
	*BaseError
	MapID string
}

func NewPersistence(mapID string, err error) *ErrPersistence {
	return &ErrPersistence{
		BaseError: NewBaseError(ErrorTypePersistence, fmt.Sprintf("failed to persist map %s", mapID), err),
		MapID:     mapID,
	}
}

// Config Errors

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// Turn Errors

// TurnFailed is returned by the orchestrator when a turn ends in FAILED.
// Kind carries the classified cause for logging and telemetry.
type TurnFailed struct {
	Kind  ErrorType
	Stage string
	Err   error
}

func (e *TurnFailed) Error() string {
	return fmt.Sprintf("turn failed in %s [%s]: %v", e.Stage, e.Kind, e.Err)
}

func (e *TurnFailed) Unwrap() error {
	return e.Err
}

// NewTurnFailed classifies err and records the stage it failed in.
// Unclassified errors default to fallback.
func NewTurnFailed(stage string, fallback ErrorType, err error) *TurnFailed {
	kind, ok := KindOf(err)
	if !ok {
		kind = fallback
	}
	return &TurnFailed{Kind: kind, Stage: stage, Err: err}
}

// Helper functions

// KindOf returns the category of the first classified error in the chain
func KindOf(err error) (ErrorType, bool) {
	var tf *TurnFailed
	if stderrors.As(err, &tf) {
		return tf.Kind, true
	}
	var k kinded
	if stderrors.As(err, &k) {
		return k.Kind(), true
	}
	return "", false
}

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	kind, ok := KindOf(err)
	return ok && kind == errType
}

// IsRetryable reports whether the client may retry the whole turn
func IsRetryable(err error) bool {
	kind, ok := KindOf(err)
	if !ok {
		return false
	}
	switch kind {
	case ErrorTypeDependencyUnavailable, ErrorTypeDependencyTimeout, ErrorTypeConcurrentModification:
		return true
	}
	return false
}

// FromContext maps a failed external call to a timeout or an unavailable dependency
func FromContext(dependency string, timeout time.Duration, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := KindOf(err); ok {
		return err
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return NewDependencyTimeout(dependency, timeout, err)
	}
	return NewDependencyUnavailable(dependency, err)
}
