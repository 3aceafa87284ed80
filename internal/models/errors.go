package models

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeExternal   ErrorType = "external"
	ErrorTypeInternal   ErrorType = "internal"
	ErrorTypeCancelled  ErrorType = "cancelled"
)

// StatusClientClosedRequest is the nginx convention for a caller that went away.
const StatusClientClosedRequest = 499

type AppError struct {
	Type       ErrorType      `json:"type"`
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    string         `json:"details,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	RequestID  string         `json:"request_id,omitempty"`
	RunID      string         `json:"run_id,omitempty"`
	StatusCode int            `json:"status_code"`
	Retryable  bool           `json:"retryable"`
	RetryAfter *time.Duration `json:"retry_after,omitempty"`
	Cause      error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

func (e *AppError) WithRunID(runID string) *AppError {
	e.RunID = runID
	return e
}

func (e *AppError) WithRequestID(requestID string) *AppError {
	e.RequestID = requestID
	return e
}

func retryAfter(d time.Duration) *time.Duration {
	return &d
}

// Error constructors
func NewValidationError(code, message, details string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		Details:    details,
		Timestamp:  time.Now(),
		StatusCode: http.StatusBadRequest,
	}
}

func NewNotFoundError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		Timestamp:  time.Now(),
		StatusCode: http.StatusNotFound,
	}
}

func NewTimeoutError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeTimeout,
		Code:       code,
		Message:    message,
		Timestamp:  time.Now(),
		StatusCode: http.StatusGatewayTimeout,
		Retryable:  true,
		RetryAfter: retryAfter(5 * time.Second),
	}
}

func NewExternalError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       code,
		Message:    message,
		Timestamp:  time.Now(),
		StatusCode: http.StatusBadGateway,
		Retryable:  true,
		RetryAfter: retryAfter(3 * time.Second),
	}
}

func NewInternalError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       code,
		Message:    message,
		Timestamp:  time.Now(),
		StatusCode: http.StatusInternalServerError,
	}
}

func NewCancelledError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeCancelled,
		Code:       code,
		Message:    message,
		Timestamp:  time.Now(),
		StatusCode: StatusClientClosedRequest,
	}
}

func WrapExternalError(service string, err error) *AppError {
	return NewExternalError(
		fmt.Sprintf("%s_ERROR", service),
		fmt.Sprintf("%s service error", service),
	).WithCause(err)
}

func WrapTimeoutError(operation string, err error) *AppError {
	return NewTimeoutError(
		"OPERATION_TIMEOUT",
		fmt.Sprintf("Operation %s timed out", operation),
	).WithCause(err)
}

// WrapContextError maps a context error to a cancelled or timeout AppError.
// Any other error is returned unchanged.
func WrapContextError(operation string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return WrapTimeoutError(operation, err)
	case errors.Is(err, context.Canceled):
		return NewCancelledError("RUN_CANCELLED", fmt.Sprintf("Operation %s was cancelled", operation)).WithCause(err)
	default:
		return err
	}
}

// AsAppError unwraps err into an AppError, wrapping unknown errors as internal.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError("INTERNAL_ERROR", "Internal server error").WithCause(err)
}

func ErrNoArticles() *AppError {
	return NewValidationError("NO_ARTICLES", "No articles provided", "At least one article is required")
}

func ErrNoURLs() *AppError {
	return NewValidationError("NO_URLS", "No URLs provided", "At least one article URL is required")
}

func ErrRunNotFound(runID string) *AppError {
	return NewNotFoundError("RUN_NOT_FOUND", "Run not found").WithRunID(runID)
}
