package errors

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeInternal indicates an internal error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"
	// ErrCodeUnauthorized indicates the backend rejected the bearer credential.
	ErrCodeUnauthorized ErrorCode = "unauthorized"
	// ErrCodeRemote indicates a generic failure reported by the remote backend.
	ErrCodeRemote ErrorCode = "remote"
	// ErrCodeEmptyResponse indicates a remote procedure returned no rows where one was required.
	ErrCodeEmptyResponse ErrorCode = "empty_response"
	// ErrCodeLegacySignature indicates the remote procedure does not accept a parameter we sent.
	ErrCodeLegacySignature ErrorCode = "legacy_signature"
	// ErrCodeHTTPStatus indicates a non-success HTTP status from a backend function.
	ErrCodeHTTPStatus ErrorCode = "http_status"
	// ErrCodePrecondition indicates a required session or credential is missing.
	ErrCodePrecondition ErrorCode = "precondition"
)

// AppError represents a structured application error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// Status is the HTTP status returned by the backend (optional)
	Status int
	// RemoteCode is the backend error code, e.g. a SQLSTATE or PGRST code (optional)
	RemoteCode string
	// Body is the raw response body kept for diagnostics (optional)
	Body string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: message}
}

// Validation creates a new Validation error.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message}
}

// Internal creates a new Internal error.
func Internal(message string) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: message}
}

// Unauthorized creates a new unauthorized error.
func Unauthorized(message string) *AppError {
	return &AppError{Code: ErrCodeUnauthorized, Message: message}
}

// Precondition creates a new Precondition error.
func Precondition(message string) *AppError {
	return &AppError{Code: ErrCodePrecondition, Message: message}
}

// EmptyResponse reports that procedure returned no result rows.
func EmptyResponse(procedure string) *AppError {
	return &AppError{
		Code:    ErrCodeEmptyResponse,
		Message: procedure + ": empty response",
	}
}

// HTTPStatus reports a non-success status from a backend function.
// The message embeds both the status code and the raw body so callers can log it verbatim.
func HTTPStatus(operation string, status int, body string) *AppError {
	msg := operation + " failed: status " + strconv.Itoa(status)
	if body != "" {
		msg += ": " + body
	}
	return &AppError{
		Code:    ErrCodeHTTPStatus,
		Message: msg,
		Status:  status,
		Body:    body,
	}
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool {
	return IsCode(err, ErrCodeNotFound)
}

// IsUnauthorized checks if an error is an Unauthorized error.
func IsUnauthorized(err error) bool {
	return IsCode(err, ErrCodeUnauthorized)
}

// IsEmptyResponse checks if an error is an EmptyResponse error.
func IsEmptyResponse(err error) bool {
	return IsCode(err, ErrCodeEmptyResponse)
}

// IsPrecondition checks if an error is a Precondition error.
func IsPrecondition(err error) bool {
	return IsCode(err, ErrCodePrecondition)
}

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetRemoteCode returns the backend error code from an error, or empty string.
func GetRemoteCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.RemoteCode
	}
	return ""
}
