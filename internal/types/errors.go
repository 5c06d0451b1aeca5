package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode is a typed string for categorizing processor errors.
type ErrorCode string

// Error code constants. Components MUST use these constants instead of
// hardcoded strings so log queries and metrics stay consistent.
const (
	// Batch scope: the routing configuration could not be loaded.
	ErrCodeConfigUnreadable ErrorCode = "config_unreadable"
	ErrCodeConfigParse      ErrorCode = "config_parse_failed"
	ErrCodeConfigEmpty      ErrorCode = "config_empty"

	// Record scope.
	ErrCodeEnvelopeDecode    ErrorCode = "envelope_decode_failed"
	ErrCodeEnvelopeMalformed ErrorCode = "envelope_malformed"
	ErrCodeEnvelopeIgnored   ErrorCode = "envelope_ignored"
	ErrCodeAlertDecode       ErrorCode = "alert_decode_failed"

	// Destination scope.
	ErrCodeDestinationMalformed  ErrorCode = "destination_malformed"
	ErrCodeDestinationUnknown    ErrorCode = "destination_unknown"
	ErrCodeDispatcherUnavailable ErrorCode = "dispatcher_unavailable"
	ErrCodeDispatchFailed        ErrorCode = "dispatch_failed"

	// Dispatcher internals.
	ErrCodeCredentialsMissing ErrorCode = "credentials_missing"
	ErrCodeCredentialsInvalid ErrorCode = "credentials_invalid"

	// Internal/Upstream
	ErrCodeInternalUnexpected    ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamEmailProvider ErrorCode = "upstream_email_provider_unavailable"
	ErrCodeUpstreamUnavailable   ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited   ErrorCode = "upstream_rate_limited"
	ErrCodeUpstreamRejected      ErrorCode = "upstream_rejected"
	ErrCodeEmailBlocked          ErrorCode = "email_blocked"
)

// Scope returns the smallest unit of work an error with this code affects:
// "batch", "record", "destination" or "dispatcher". Only routing config
// failures are batch scoped.
func (c ErrorCode) Scope() string {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "config_"):
		return "batch"
	case strings.HasPrefix(s, "envelope_"), strings.HasPrefix(s, "alert_"):
		return "record"
	case strings.HasPrefix(s, "destination_"), strings.HasPrefix(s, "dispatch"):
		return "destination"
	default:
		return "dispatcher"
	}
}

// AppError is the standard error type used throughout the processor.
// Domain errors should be expressed as AppError so callers can branch on
// Code with errors.As while keeping the underlying cause for errors.Is.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf returns the ErrorCode carried by err, or "" when err is not (and
// does not wrap) an *AppError.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
