package domain

import (
	"fmt"
	"net/http"
	"time"
)

// ErrorKind is the normalised outcome of an upstream provider error,
// independent of which family produced it. The ErrorClassifier's job is
// mapping a family's raw status/body into one of these.
type ErrorKind string

const (
	ErrorKindRateLimit      ErrorKind = "rate_limit"
	ErrorKindAuth           ErrorKind = "auth"
	ErrorKindInvalidRequest ErrorKind = "invalid_request"
	ErrorKindOverloaded     ErrorKind = "overloaded"
	ErrorKindTimeout        ErrorKind = "timeout"
	ErrorKindConnection     ErrorKind = "connection"
	ErrorKindUpstream5xx    ErrorKind = "upstream_5xx"
	ErrorKindUnknown        ErrorKind = "unknown"

	// The remaining kinds refine the generic buckets above with the
	// provider-response-body-derived taxonomy: a per-family code table
	// (see internal/adapter/classify) maps body error codes to these
	// before falling back to the status-code-only buckets above.
	ErrorKindInvalidAPIKey      ErrorKind = "invalid_api_key"
	ErrorKindTokenExpired       ErrorKind = "token_expired"
	ErrorKindContentTooLarge    ErrorKind = "content_too_large"
	ErrorKindInsufficientQuota  ErrorKind = "insufficient_quota"
	ErrorKindModelError         ErrorKind = "model_error"
	ErrorKindProviderResponse   ErrorKind = "provider_response_error"
	ErrorKindNetworkError       ErrorKind = "network_error"
	ErrorKindProviderNotFound   ErrorKind = "provider_not_found"
)

// ProviderError wraps an upstream failure with enough context to decide
// retry/failover behaviour and to render a response back to the client.
type ProviderError struct {
	Err        error
	ProviderID string
	Family     string
	Model      string
	StatusCode int
	Kind       ErrorKind
	Retryable  bool
	Body       string

	// RetryAfter is the upstream-advertised cooldown for a rate-limit
	// error (from a Retry-After header or a body field), zero when the
	// upstream gave none.
	RetryAfter time.Duration
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error [%s/%s model=%s]: kind=%s status=%d: %v",
		e.ProviderID, e.Family, e.Model, e.Kind, e.StatusCode, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// HTTPStatus maps an error kind to the status code returned to the
// client when no alternative could be dispatched.
func (e *ProviderError) HTTPStatus() int {
	switch e.Kind {
	case ErrorKindRateLimit:
		return http.StatusTooManyRequests
	case ErrorKindAuth:
		return http.StatusUnauthorized
	case ErrorKindInvalidRequest:
		return http.StatusBadRequest
	case ErrorKindOverloaded, ErrorKindUpstream5xx, ErrorKindInsufficientQuota:
		return http.StatusServiceUnavailable
	case ErrorKindTimeout:
		return http.StatusGatewayTimeout
	case ErrorKindConnection, ErrorKindNetworkError:
		return http.StatusBadGateway
	case ErrorKindInvalidAPIKey, ErrorKindTokenExpired:
		return http.StatusUnauthorized
	case ErrorKindContentTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrorKindProviderNotFound:
		return http.StatusNotFound
	case ErrorKindModelError, ErrorKindProviderResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// DispatchError is returned by the dispatcher itself (as opposed to a
// wrapped upstream ProviderError) for queue/capacity/routing outcomes.
type DispatchError struct {
	Reason     string // constants.RoutingReason*
	StatusCode int
	Err        error
}

func (e *DispatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dispatch failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("dispatch failed (%s)", e.Reason)
}

func (e *DispatchError) Unwrap() error { return e.Err }

func NewDispatchError(reason string, statusCode int, err error) *DispatchError {
	return &DispatchError{Reason: reason, StatusCode: statusCode, Err: err}
}
