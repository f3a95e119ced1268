// Package classify implements ports.ErrorClassifier, normalising a raw
// upstream HTTP status/body/headers or transport error into a
// domain.ProviderError.
package classify

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/PaesslerAG/jsonpath"

	"github.com/olla-run/olla/internal/core/domain"
)

// codeRule is one entry of a per-family body-error-code table: the body
// code a family uses for a given failure maps to a normalised kind and a
// retry verdict, overriding the generic status-code-only classification.
type codeRule struct {
	kind      domain.ErrorKind
	retryable bool
}

// familyCodeTable describes, for one provider family, the JSONPath used
// to pull an error code out of the response body and the code->rule map.
type familyCodeTable struct {
	codePath string
	codes    map[string]codeRule
}

// codeTables is the per-provider-family body-error-code table. Every
// family's error envelope nests an error code/type differently, so each
// gets its own JSONPath; the extracted string is then looked up below.
// Providers not listed fall back to status-code-only classification.
var codeTables = map[string]familyCodeTable{
	"openai": {
		codePath: "$.error.code",
		codes: map[string]codeRule{
			"invalid_api_key":        {domain.ErrorKindInvalidAPIKey, false},
			"token_expired":          {domain.ErrorKindTokenExpired, false},
			"context_length_exceeded": {domain.ErrorKindContentTooLarge, false},
			"insufficient_quota":     {domain.ErrorKindInsufficientQuota, false},
			"model_not_found":        {domain.ErrorKindProviderNotFound, false},
			"rate_limit_exceeded":    {domain.ErrorKindRateLimit, true},
			"server_error":           {domain.ErrorKindProviderResponse, true},
		},
	},
	"anthropic": {
		codePath: "$.error.type",
		codes: map[string]codeRule{
			"authentication_error":  {domain.ErrorKindInvalidAPIKey, false},
			"permission_error":      {domain.ErrorKindAuth, false},
			"not_found_error":       {domain.ErrorKindProviderNotFound, false},
			"request_too_large":     {domain.ErrorKindContentTooLarge, false},
			"rate_limit_error":      {domain.ErrorKindRateLimit, true},
			"overloaded_error":      {domain.ErrorKindOverloaded, true},
			"api_error":             {domain.ErrorKindProviderResponse, true},
		},
	},
	"iflow": {
		codePath: "$.error.code",
		codes: map[string]codeRule{
			"invalid_api_key":     {domain.ErrorKindInvalidAPIKey, false},
			"insufficient_quota":  {domain.ErrorKindInsufficientQuota, false},
			"rate_limit_exceeded": {domain.ErrorKindRateLimit, true},
		},
	},
}

type Classifier struct{}

func New() *Classifier {
	return &Classifier{}
}

func (c *Classifier) ClassifyHTTP(providerID, family, model string, statusCode int, body []byte, headers http.Header) *domain.ProviderError {
	kind, retryable := classifyStatus(statusCode)
	if bodyKind, bodyRetryable, ok := classifyBody(family, body); ok {
		kind, retryable = bodyKind, bodyRetryable
	}

	perr := &domain.ProviderError{
		ProviderID: providerID,
		Family:     family,
		Model:      model,
		StatusCode: statusCode,
		Kind:       kind,
		Retryable:  retryable,
		Body:       string(body),
	}
	if kind == domain.ErrorKindRateLimit {
		perr.RetryAfter = retryAfterFrom(headers, body)
	}
	return perr
}

func (c *Classifier) ClassifyTransport(providerID, family, model string, err error) *domain.ProviderError {
	kind := domain.ErrorKindConnection
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		kind = domain.ErrorKindTimeout
	case isConnectionError(err):
		kind = domain.ErrorKindConnection
	default:
		kind = domain.ErrorKindNetworkError
	}
	return &domain.ProviderError{
		Err:        err,
		ProviderID: providerID,
		Family:     family,
		Model:      model,
		Kind:       kind,
		Retryable:  true,
	}
}

// classifyBody runs the family's code table against the response body.
// Returns ok=false when the family has no table, the body isn't JSON, or
// no code was found — callers fall back to the status-only verdict.
func classifyBody(family string, body []byte) (domain.ErrorKind, bool, bool) {
	table, ok := codeTables[family]
	if !ok || len(body) == 0 {
		return "", false, false
	}

	var parsed interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", false, false
	}

	value, err := jsonpath.Get(table.codePath, parsed)
	if err != nil {
		return "", false, false
	}
	code, ok := value.(string)
	if !ok {
		return "", false, false
	}

	rule, ok := table.codes[code]
	if !ok {
		return "", false, false
	}
	return rule.kind, rule.retryable, true
}

// retryAfterFrom prefers the standard Retry-After header (seconds or
// HTTP-date); some families instead surface the cooldown in the body.
func retryAfterFrom(headers http.Header, body []byte) time.Duration {
	if headers != nil {
		if raw := headers.Get("Retry-After"); raw != "" {
			if secs, err := strconv.Atoi(raw); err == nil {
				return time.Duration(secs) * time.Second
			}
			if when, err := http.ParseTime(raw); err == nil {
				if d := time.Until(when); d > 0 {
					return d
				}
			}
		}
	}
	if len(body) == 0 {
		return 0
	}
	var parsed interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0
	}
	for _, path := range []string{"$.error.retry_after", "$.retry_after"} {
		if value, err := jsonpath.Get(path, parsed); err == nil {
			switch v := value.(type) {
			case float64:
				return time.Duration(v) * time.Second
			case string:
				if secs, err := strconv.ParseFloat(v, 64); err == nil {
					return time.Duration(secs * float64(time.Second))
				}
			}
		}
	}
	return 0
}

// isConnectionError recognises transient network failures worth a
// failover attempt: refused/reset connections, unreachable hosts, and
// DNS resolution failures, whether surfaced as typed errors or only as
// substrings buried in a wrapped dial error.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var syscallErr syscall.Errno
	if errors.As(err, &syscallErr) {
		switch syscallErr {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ECONNABORTED:
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range connectionErrorPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

var connectionErrorPatterns = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"network is unreachable",
	"no route to host",
	"connection timed out",
	"i/o timeout",
	"dial tcp",
	"connectex:",
}

func classifyStatus(statusCode int) (domain.ErrorKind, bool) {
	switch {
	case statusCode == http.StatusTooManyRequests || statusCode == 439 || statusCode == 449:
		return domain.ErrorKindRateLimit, true
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return domain.ErrorKindAuth, false
	case statusCode == http.StatusRequestEntityTooLarge:
		return domain.ErrorKindContentTooLarge, false
	case statusCode == http.StatusNotFound:
		return domain.ErrorKindProviderNotFound, false
	case statusCode == http.StatusBadRequest || statusCode == http.StatusUnprocessableEntity:
		return domain.ErrorKindInvalidRequest, false
	case statusCode == http.StatusServiceUnavailable:
		return domain.ErrorKindOverloaded, true
	case statusCode == http.StatusBadGateway || statusCode == http.StatusGatewayTimeout:
		return domain.ErrorKindUpstream5xx, true
	case statusCode >= 500:
		return domain.ErrorKindUpstream5xx, true
	case statusCode >= 200 && statusCode < 300:
		return "", false
	default:
		return domain.ErrorKindUnknown, false
	}
}
