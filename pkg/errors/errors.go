package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a standardized error code
type ErrorCode string

const (
	// Token lifecycle errors
	ErrCodeAuthTokenUnavailable ErrorCode = "AUTH_TOKEN_UNAVAILABLE"
	ErrCodeAuthExchangeFailed   ErrorCode = "AUTH_EXCHANGE_FAILED"
	ErrCodeAuthExchangeEmpty    ErrorCode = "AUTH_EXCHANGE_EMPTY"
	ErrCodeClaimParseSkipped    ErrorCode = "CLAIM_PARSE_SKIPPED"

	// Authentication and Authorization errors
	ErrCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden          ErrorCode = "FORBIDDEN"
	ErrCodeInvalidToken       ErrorCode = "INVALID_TOKEN"
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"

	// Configuration errors
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	ErrCodeMissingConfig ErrorCode = "MISSING_CONFIG"

	// Identity provider errors
	ErrCodeUpstream        ErrorCode = "UPSTREAM_ERROR"
	ErrCodeUpstreamTimeout ErrorCode = "UPSTREAM_TIMEOUT"
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeConflict        ErrorCode = "CONFLICT"

	// Internal errors
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"

	// Validation errors
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"
)

// Sentinels for errors.Is matching by code.
var (
	ErrAuthTokenUnavailable = New(ErrCodeAuthTokenUnavailable, "admin token unavailable")
	ErrAuthExchangeFailed   = New(ErrCodeAuthExchangeFailed, "token exchange failed")
	ErrAuthExchangeEmpty    = New(ErrCodeAuthExchangeEmpty, "token exchange returned no token")
	ErrClaimParseSkipped    = New(ErrCodeClaimParseSkipped, "claim could not be parsed")
	ErrForbidden            = New(ErrCodeForbidden, "forbidden")
	ErrUnauthorized         = New(ErrCodeUnauthorized, "unauthorized")
)

// GatewayError represents a standardized error with context
type GatewayError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	HTTPStatus int                    `json:"-"`

	// UpstreamStatus and UpstreamBody are set when the identity provider
	// answered with a non-success status.
	UpstreamStatus int    `json:"-"`
	UpstreamBody   string `json:"-"`
}

// Error implements the error interface
func (e *GatewayError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.UpstreamStatus != 0 {
		msg = fmt.Sprintf("%s (upstream status %d)", msg, e.UpstreamStatus)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause error
func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a GatewayError with the same code.
func (e *GatewayError) Is(target error) bool {
	t, ok := target.(*GatewayError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetails adds additional context to the error
func (e *GatewayError) WithDetails(key string, value interface{}) *GatewayError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithUpstream records the identity provider's response status and body.
func (e *GatewayError) WithUpstream(status int, body string) *GatewayError {
	e.UpstreamStatus = status
	e.UpstreamBody = body
	return e
}

// New creates a new GatewayError with the given code and message
func New(code ErrorCode, message string) *GatewayError {
	return &GatewayError{
		Code:       code,
		Message:    message,
		HTTPStatus: getHTTPStatus(code),
	}
}

// Newf creates a new GatewayError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *GatewayError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with additional context
func Wrap(err error, code ErrorCode, message string) *GatewayError {
	return &GatewayError{
		Code:       code,
		Message:    message,
		Cause:      err,
		HTTPStatus: getHTTPStatus(code),
	}
}

// Wrapf wraps an existing error with formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *GatewayError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// getHTTPStatus returns the appropriate HTTP status code for an error code
func getHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeUnauthorized, ErrCodeInvalidToken, ErrCodeInvalidCredentials, ErrCodeClaimParseSkipped:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeInvalidConfig, ErrCodeMissingConfig, ErrCodeInvalidInput, ErrCodeMissingRequired:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeAuthTokenUnavailable:
		return http.StatusServiceUnavailable
	case ErrCodeAuthExchangeFailed, ErrCodeAuthExchangeEmpty, ErrCodeUpstream:
		return http.StatusBadGateway
	case ErrCodeUpstreamTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// As returns the GatewayError in err's chain, if any.
func As(err error) (*GatewayError, bool) {
	var gwErr *GatewayError
	if stderrors.As(err, &gwErr) {
		return gwErr, true
	}
	return nil, false
}

// Is forwards to the standard library so callers need only one errors import.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	if gwErr, ok := As(err); ok {
		return gwErr.Code
	}
	return ErrCodeInternal
}

// GetHTTPStatus extracts the HTTP status from an error
func GetHTTPStatus(err error) int {
	if gwErr, ok := As(err); ok {
		return gwErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// errorBody is the JSON shape returned to HTTP clients.
type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// WriteHTTP renders err as a JSON response. 401 and 403 responses carry a
// fixed body so nothing about the checked requirement or the token leaks.
func WriteHTTP(w http.ResponseWriter, err error) {
	status := GetHTTPStatus(err)
	body := errorBody{}
	switch status {
	case http.StatusUnauthorized:
		body.Error = "unauthorized"
	case http.StatusForbidden:
		body.Error = "forbidden"
	default:
		body.Error = http.StatusText(status)
		if gwErr, ok := As(err); ok {
			body.Code = string(gwErr.Code)
			body.Message = gwErr.Message
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Common error constructors for frequently used errors

// NewUnauthorized creates an unauthorized error
func NewUnauthorized(message string) *GatewayError {
	return New(ErrCodeUnauthorized, message)
}

// NewForbidden creates a forbidden error
func NewForbidden() *GatewayError {
	return New(ErrCodeForbidden, "forbidden")
}

// NewInvalidToken creates an invalid token error
func NewInvalidToken(message string) *GatewayError {
	return New(ErrCodeInvalidToken, message)
}

// NewInvalidConfig creates an invalid config error
func NewInvalidConfig(message string) *GatewayError {
	return New(ErrCodeInvalidConfig, message)
}

// NewInvalidInput creates an input validation error
func NewInvalidInput(message string) *GatewayError {
	return New(ErrCodeInvalidInput, message)
}

// NewInternalError creates an internal error
func NewInternalError(message string) *GatewayError {
	return New(ErrCodeInternal, message)
}
