// Package integration provides the error taxonomy shared by destinations, actions and the dispatch engine.
package integration

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error classes. Every error produced by the engine matches exactly one of them.
var (
	// ErrFilter indicates a missing or malformed subscription filter.
	ErrFilter = errors.New("invalid subscription")

	// ErrValidation indicates a payload or settings blob that does not satisfy its field contract.
	ErrValidation = errors.New("validation failed")

	// ErrAuthentication indicates invalid or expired credentials.
	ErrAuthentication = errors.New("authentication failed")

	// ErrTransport indicates a network or HTTP failure unrelated to authentication.
	ErrTransport = errors.New("transport failure")

	// ErrConfiguration indicates destination configuration drift, such as an unknown action.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrCancelled indicates the caller cancelled the operation or its deadline passed.
	ErrCancelled = errors.New("operation cancelled")

	// ErrNotImplemented indicates a destination or action lacks the requested capability.
	ErrNotImplemented = errors.New("not implemented")
)

// Error codes reported to callers.
const (
	CodePayloadValidationFailed = "PAYLOAD_VALIDATION_FAILED"
	CodeInvalidSubscription     = "INVALID_SUBSCRIPTION"
	CodeInvalidAuthentication   = "INVALID_AUTHENTICATION"
	CodeOAuthRefreshFailed      = "OAUTH_REFRESH_FAILED"
	CodeNotImplemented          = "NotImplemented"
	CodeCancelled               = "CANCELLED"
	CodeUnknown                 = "UNKNOWN_ERROR"
)

// Multistatus error reporters.
const (
	// ReporterIntegrations marks nodes synthesized locally by the engine.
	ReporterIntegrations = "INTEGRATIONS"

	// ReporterDestination marks nodes returned by the third party.
	ReporterDestination = "DESTINATION"
)

// Error is a classified failure carrying an HTTP-like status.
type Error struct {
	Message string // Human-readable message
	Code    string // Error code for callers
	Status  int    // HTTP-like status
	Err     error  // Error class or underlying error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) StatusCode() int {
	return e.Status
}

func NewFilterError(message string) *Error {
	return &Error{
		Message: "Invalid subscription : " + message,
		Code:    CodeInvalidSubscription,
		Status:  http.StatusBadRequest,
		Err:     ErrFilter,
	}
}

func NewValidationError(message string) *Error {
	return &Error{
		Message: message,
		Code:    CodePayloadValidationFailed,
		Status:  http.StatusBadRequest,
		Err:     ErrValidation,
	}
}

func NewInvalidAuthenticationError(message, code string, cause error) *Error {
	err := error(ErrAuthentication)
	if cause != nil {
		err = errors.Join(ErrAuthentication, cause)
	}

	return &Error{
		Message: message,
		Code:    code,
		Status:  http.StatusUnauthorized,
		Err:     err,
	}
}

func NewConfigurationError(message string) *Error {
	return &Error{
		Message: message,
		Code:    CodeUnknown,
		Status:  http.StatusBadRequest,
		Err:     ErrConfiguration,
	}
}

func NewNotImplementedError(message string) *Error {
	return &Error{
		Message: message,
		Code:    CodeNotImplemented,
		Status:  http.StatusNotImplemented,
		Err:     ErrNotImplemented,
	}
}

// NewIntegrationError builds an error reported by an action or an authentication callback.
func NewIntegrationError(message, code string, status int) *Error {
	return &Error{
		Message: message,
		Code:    code,
		Status:  status,
		Err:     classify(status),
	}
}

// NewCancelledError wraps a context error so callers can tell cancellation
// apart from a server rejection.
func NewCancelledError(cause error) *Error {
	return &Error{
		Message: fmt.Sprintf("operation cancelled: %v", cause),
		Code:    CodeCancelled,
		Status:  http.StatusRequestTimeout,
		Err:     errors.Join(ErrCancelled, cause),
	}
}

// HTTPError is returned by the request client for non-2xx responses.
type HTTPError struct {
	Status int
	Method string
	URL    string
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.Status, http.StatusText(e.Status))
}

func (e *HTTPError) StatusCode() int {
	return e.Status
}

func (e *HTTPError) Is(target error) bool {
	switch target {
	case ErrTransport:
		return true
	case ErrAuthentication:
		return e.Status == http.StatusUnauthorized
	default:
		return false
	}
}

type statusCoder interface {
	StatusCode() int
}

// StatusCode returns the HTTP-like status carried by err, 500 when it has none.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var sc statusCoder
	if errors.As(err, &sc) && sc.StatusCode() != 0 {
		return sc.StatusCode()
	}

	switch {
	case IsCancelled(err):
		return http.StatusRequestTimeout
	case errors.Is(err, ErrFilter), errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotImplemented):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the error code carried by err.
func Code(err error) string {
	var ie *Error
	if errors.As(err, &ie) && ie.Code != "" {
		return ie.Code
	}

	var he *HTTPError
	if errors.As(err, &he) {
		return http.StatusText(he.Status)
	}

	return CodeUnknown
}

// IsCancelled reports whether err is a cancellation, including raw context errors.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// IsAuthentication reports whether err is an authentication failure.
func IsAuthentication(err error) bool {
	return errors.Is(err, ErrAuthentication) || StatusCode(err) == http.StatusUnauthorized
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsFilter(err error) bool {
	return errors.Is(err, ErrFilter)
}

func IsNotImplemented(err error) bool {
	return errors.Is(err, ErrNotImplemented)
}

func classify(status int) error {
	switch {
	case status == http.StatusUnauthorized:
		return ErrAuthentication
	case status == http.StatusNotImplemented:
		return ErrNotImplemented
	case status >= 400 && status < 500:
		return ErrValidation
	default:
		return ErrTransport
	}
}
