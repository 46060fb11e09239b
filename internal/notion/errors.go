package notion

import (
	"errors"
	"fmt"
)

var (
	ErrConflict       = errors.New("remote conflict")
	ErrRetryExhausted = errors.New("retry attempts exhausted")
	ErrValidation     = errors.New("invalid request")
)

// APIError is a non-retryable client error returned by the remote service
// (bad request, unauthorized, forbidden, not found).
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrValidation && e.StatusCode == 400
}

// ConflictError is returned for 409 responses.
type ConflictError struct {
	Path string
}

func (e *ConflictError) Error() string {
	if e.Path == "" {
		return "remote conflict"
	}
	return fmt.Sprintf("remote conflict on %s", e.Path)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// RetryExhaustedError is surfaced after a retryable failure ran out of
// attempts. Attempts counts the requests actually issued; LastStatus is
// zero when the final failure was network-level.
type RetryExhaustedError struct {
	Attempts   int
	LastStatus int
	LastErr    error
}

func (e *RetryExhaustedError) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("all %d attempts exhausted (last error: %v)", e.Attempts, e.LastErr)
	}
	return fmt.Sprintf("all %d attempts exhausted (last status: %d)", e.Attempts, e.LastStatus)
}

func (e *RetryExhaustedError) Is(target error) bool {
	return target == ErrRetryExhausted
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.LastErr
}
