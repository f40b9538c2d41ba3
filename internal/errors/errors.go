package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies a provider failure so callers can branch on the class of
// error without knowing anything vendor-specific.
type Kind string

const (
	KindRateLimit          Kind = "RATE_LIMIT_EXCEEDED"
	KindUnavailable        Kind = "UNAVAILABLE"
	KindServiceUnavailable Kind = "SERVICE_UNAVAILABLE"
	KindInvalidSymbol      Kind = "INVALID_SYMBOL"
	KindPermissionDenied   Kind = "PERMISSION_DENIED"
	KindAuthentication     Kind = "AUTHENTICATION"
	KindValidation         Kind = "VALIDATION"
	KindConfiguration      Kind = "CONFIGURATION"
	KindTimeout            Kind = "TIMEOUT"
	KindInternal           Kind = "INTERNAL"
)

// ProviderError is the error type every vendor client and core component
// returns. Vendor-specific status codes and response bodies are mapped into
// a Kind before the error leaves the client.
type ProviderError struct {
	Kind       Kind          `json:"kind"`
	Vendor     string        `json:"vendor,omitempty"`
	Message    string        `json:"message"`
	StatusCode int           `json:"status_code,omitempty"`
	RetryAfter time.Duration `json:"-"`
	Cause      error         `json:"-"`
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Vendor != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Vendor, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Is reports whether target carries the same Kind, so errors.Is can match
// against the sentinel constructors below.
func (e *ProviderError) Is(target error) bool {
	var pe *ProviderError
	if !errors.As(target, &pe) {
		return false
	}
	return e.Kind == pe.Kind
}

// Fallbackable reports whether the router may retry this failure against a
// fallback vendor. Rate-limit failures are caller-side volume, not vendor
// health; configuration failures would fail identically everywhere.
func (e *ProviderError) Fallbackable() bool {
	switch e.Kind {
	case KindRateLimit, KindConfiguration:
		return false
	default:
		return true
	}
}

// HTTPStatus maps the error kind to an HTTP response status.
func (e *ProviderError) HTTPStatus() int {
	switch e.Kind {
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindInvalidSymbol:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindUnavailable, KindServiceUnavailable:
		return http.StatusServiceUnavailable
	case KindConfiguration:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// New creates a ProviderError with the given kind and vendor.
func New(kind Kind, vendor, message string) *ProviderError {
	return &ProviderError{Kind: kind, Vendor: vendor, Message: message}
}

// Newf creates a ProviderError with a formatted message.
func Newf(kind Kind, vendor, format string, args ...interface{}) *ProviderError {
	return &ProviderError{Kind: kind, Vendor: vendor, Message: fmt.Sprintf(format, args...)}
}

// Wrap turns err into a ProviderError of the given kind, preserving it as
// the cause. An err that is already a ProviderError passes through as-is.
func Wrap(err error, kind Kind, vendor, message string) *ProviderError {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return &ProviderError{Kind: kind, Vendor: vendor, Message: message, Cause: err}
}

// RateLimited creates a rate-limit error with an optional retry-after hint.
func RateLimited(vendor string, retryAfter time.Duration) *ProviderError {
	return &ProviderError{
		Kind:       KindRateLimit,
		Vendor:     vendor,
		Message:    "rate limit exceeded",
		RetryAfter: retryAfter,
	}
}

// Unavailable creates a vendor-unreachable error wrapping the transport
// failure.
func Unavailable(vendor string, cause error) *ProviderError {
	return &ProviderError{
		Kind:    KindUnavailable,
		Vendor:  vendor,
		Message: "provider unavailable",
		Cause:   cause,
	}
}

// Config creates a configuration error (missing vendor, unsupported
// capability). Never triggers a fallback.
func Config(format string, args ...interface{}) *ProviderError {
	return &ProviderError{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

// Timeoutf creates a timeout error attributed to vendor.
func Timeoutf(vendor, format string, args ...interface{}) *ProviderError {
	return &ProviderError{Kind: KindTimeout, Vendor: vendor, Message: fmt.Sprintf(format, args...)}
}

// FromStatus maps an HTTP response status from a vendor into the taxonomy.
// Clients call this after their own body-specific checks.
func FromStatus(vendor string, status int, body string) *ProviderError {
	kind := KindInternal
	switch {
	case status == http.StatusTooManyRequests:
		kind = KindRateLimit
	case status == http.StatusUnauthorized:
		kind = KindAuthentication
	case status == http.StatusForbidden:
		kind = KindPermissionDenied
	case status == http.StatusNotFound:
		kind = KindInvalidSymbol
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		kind = KindValidation
	case status >= 500:
		kind = KindServiceUnavailable
	}
	return &ProviderError{
		Kind:       kind,
		Vendor:     vendor,
		Message:    fmt.Sprintf("HTTP %d: %s", status, body),
		StatusCode: status,
	}
}

// IsKind reports whether err is a ProviderError of the given kind.
func IsKind(err error, kind Kind) bool {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Kind == kind
}

// GetKind returns the kind of err, or KindInternal for non-provider errors.
func GetKind(err error) Kind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// AsProviderError extracts a ProviderError from err, wrapping unknown errors
// as KindInternal so HTTP handlers never see a raw transport failure.
func AsProviderError(err error, vendor string) *ProviderError {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return &ProviderError{Kind: KindInternal, Vendor: vendor, Message: err.Error(), Cause: err}
}
