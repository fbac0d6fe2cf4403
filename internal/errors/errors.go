// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrTaskNotFound         = errors.New("task not found")
	ErrTaskNotCompleted     = errors.New("task not completed")
	ErrNewsAlreadyGenerated = errors.New("news already generated for task")
	ErrUnknownDifficulty    = errors.New("unknown difficulty")
	ErrInvalidPrice         = errors.New("price must be positive")
	ErrInvalidPeriod        = errors.New("invalid aggregation period")
	ErrDataNotFound         = errors.New("data not found")
	ErrDatabaseError        = errors.New("database error")
	ErrConnectionFailed     = errors.New("connection failed")
	ErrFeedClosed           = errors.New("feed is closed")
	ErrTimeout              = errors.New("operation timed out")
	ErrConfigInvalid        = errors.New("invalid configuration")
	ErrInputValidation      = errors.New("input validation failed")
)

// TaskError represents an error from a task ledger operation.
type TaskError struct {
	TaskID string
	Action string
	Reason string
	Err    error
}

func (e *TaskError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("task error [%s] %s: %s: %v", e.TaskID, e.Action, e.Reason, e.Err)
	}
	return fmt.Sprintf("task error [%s] %s: %s", e.TaskID, e.Action, e.Reason)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// NewTaskError creates a new TaskError.
func NewTaskError(taskID, action, reason string, err error) *TaskError {
	return &TaskError{
		TaskID: taskID,
		Action: action,
		Reason: reason,
		Err:    err,
	}
}

// StoreError represents an error from the persistence layer.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("store error [%s] %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("store error [%s]: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError.
func NewStoreError(op, key string, err error) *StoreError {
	return &StoreError{Op: op, Key: key, Err: err}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// NewsError represents an error from the news generation pipeline.
type NewsError struct {
	TaskID    string
	Operation string
	Err       error
}

func (e *NewsError) Error() string {
	return fmt.Sprintf("news error [%s] %s: %v", e.TaskID, e.Operation, e.Err)
}

func (e *NewsError) Unwrap() error {
	return e.Err
}

// NewNewsError creates a new NewsError.
func NewNewsError(taskID, operation string, err error) *NewsError {
	return &NewsError{
		TaskID:    taskID,
		Operation: operation,
		Err:       err,
	}
}

// FeedError represents an error from the remote snapshot feed.
type FeedError struct {
	URL     string
	Message string
	Err     error
}

func (e *FeedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("feed error [%s]: %s: %v", e.URL, e.Message, e.Err)
	}
	return fmt.Sprintf("feed error [%s]: %s", e.URL, e.Message)
}

func (e *FeedError) Unwrap() error {
	return e.Err
}

// NewFeedError creates a new FeedError.
func NewFeedError(url, message string, err error) *FeedError {
	return &FeedError{URL: url, Message: message, Err: err}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
