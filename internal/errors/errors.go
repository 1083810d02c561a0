// Package errors defines the single typed error variant used across the
// core: the symbol, provider, router, adjustment, drift, and reconcile
// layers raise a *DomainError instead of an ad-hoc error type.
package errors

import (
	"fmt"
	"maps"
)

// Code enumerates the error taxonomy from the spec.
type Code string

const (
	CodeValidation        Code = "VALIDATION"
	CodeRouting           Code = "ROUTING"
	CodeProvider          Code = "PROVIDER"
	CodeRateLimit         Code = "RATE_LIMIT"
	CodeAuthentication    Code = "AUTHENTICATION"
	CodeNotFound          Code = "NOT_FOUND"
	CodeDataQuality       Code = "DATA_QUALITY"
	CodeReconcile         Code = "RECONCILE"
	CodeCache             Code = "CACHE"
	CodeNetwork           Code = "NETWORK"
	CodeTimeout           Code = "TIMEOUT"
	CodeNoProviderAvailable Code = "NO_PROVIDER_AVAILABLE"
	CodeCircuitBreakerOpen Code = "CIRCUIT_BREAKER_OPEN"
	CodeSystem            Code = "SYSTEM"
)

// DomainError is the core's one discriminated error variant.
type DomainError struct {
	Code      Code
	Message   string
	Layer     string
	Retryable bool
	Context   map[string]any
}

// New builds a DomainError, defensively copying context so callers can't
// mutate it after construction.
func New(code Code, layer, message string, retryable bool, context map[string]any) *DomainError {
	return &DomainError{
		Code:      code,
		Message:   message,
		Layer:     layer,
		Retryable: retryable,
		Context:   maps.Clone(context),
	}
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s[%s]: %s", e.Layer, e.Code, e.Message)
}

// WithContext returns a copy of e with the given key/value merged into context.
func (e *DomainError) WithContext(key string, value any) *DomainError {
	ctx := maps.Clone(e.Context)
	if ctx == nil {
		ctx = make(map[string]any, 1)
	}
	ctx[key] = value
	return &DomainError{Code: e.Code, Message: e.Message, Layer: e.Layer, Retryable: e.Retryable, Context: ctx}
}

// Payload returns a JSON-serializable view with stable field names, used by
// the CLI's stderr error emission (spec §6/§7).
func (e *DomainError) Payload() map[string]any {
	return map[string]any{
		"code":    string(e.Code),
		"message": e.Message,
		"layer":   e.Layer,
		"retryable": e.Retryable,
		"details": redact(e.Context),
	}
}

// sensitiveKeys are redacted before a DomainError's context is rendered
// user-visibly, per spec §7 "Secrets and credentials must be redacted".
var sensitiveKeys = map[string]bool{
	"api_key":      true,
	"apikey":       true,
	"token":        true,
	"access_token": true,
	"password":     true,
	"secret":       true,
	"client_secret": true,
	"authorization": true,
}

func redact(ctx map[string]any) map[string]any {
	if ctx == nil {
		return nil
	}
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		if sensitiveKeys[lower(k)] {
			out[k] = "REDACTED"
			continue
		}
		out[k] = v
	}
	return out
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// As reports whether err is a *DomainError and returns it.
func As(err error) (*DomainError, bool) {
	de, ok := err.(*DomainError)
	return de, ok
}

// CLIExitCode maps a DomainError's code to the process exit code contract
// in spec.md §6.
func (e *DomainError) CLIExitCode() int {
	switch e.Code {
	case CodeValidation:
		return 10
	case CodeDataQuality:
		return 30
	case CodeReconcile:
		return 40
	case CodeProvider, CodeRateLimit, CodeNoProviderAvailable, CodeCircuitBreakerOpen, CodeAuthentication, CodeNetwork, CodeTimeout:
		return 20
	default:
		return 1
	}
}
