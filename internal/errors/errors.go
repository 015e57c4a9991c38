package errors

import (
	"errors"
	"fmt"
)

// ErrCode represents an error code
type ErrCode string

const (
	ErrCodeNotFound    ErrCode = "NOT_FOUND"
	ErrCodeTransport   ErrCode = "TRANSPORT"
	ErrCodeUpstream    ErrCode = "UPSTREAM"
	ErrCodeDecode      ErrCode = "DECODE"
	ErrCodeInternal    ErrCode = "INTERNAL_ERROR"
	ErrCodeBadRequest  ErrCode = "BAD_REQUEST"
)

// AppError represents an application error
type AppError struct {
	Code    ErrCode
	Message string
	Status  int // HTTP status for upstream failures, 0 otherwise
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewTransportError reports a request that kept failing at the connection level
func NewTransportError(url string, attempts int, err error) *AppError {
	return &AppError{
		Code:    ErrCodeTransport,
		Message: fmt.Sprintf("GET %s failed after %d attempts", url, attempts),
		Err:     err,
	}
}

// NewUpstreamError reports a non-success response from the remote API
func NewUpstreamError(url string, status int) *AppError {
	return &AppError{
		Code:    ErrCodeUpstream,
		Message: fmt.Sprintf("GET %s returned status %d", url, status),
		Status:  status,
	}
}

// NewDecodeError reports a response body that could not be parsed
func NewDecodeError(url string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeDecode,
		Message: fmt.Sprintf("cannot decode response from %s", url),
		Err:     err,
	}
}

// NewBadRequestError creates a new bad request error
func NewBadRequestError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeBadRequest,
		Message: message,
	}
}

func codeOf(err error) (ErrCode, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code, true
	}
	return "", false
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	code, ok := codeOf(err)
	return ok && code == ErrCodeNotFound
}

// IsUpstream checks if the error is a non-success HTTP response
func IsUpstream(err error) bool {
	code, ok := codeOf(err)
	return ok && code == ErrCodeUpstream
}

// IsTransport checks if the error is an exhausted connection retry
func IsTransport(err error) bool {
	code, ok := codeOf(err)
	return ok && code == ErrCodeTransport
}

// StatusOf returns the HTTP status carried by an upstream error, or 0.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return 0
}
