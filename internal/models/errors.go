package models

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies why an attempt or a dispatch failed.
type ErrorKind string

const (
	KindConfiguration     ErrorKind = "configuration"
	KindTransientNetwork  ErrorKind = "transient_network"
	KindTimeout           ErrorKind = "timeout"
	KindRateLimited       ErrorKind = "rate_limited"
	KindClientRequest     ErrorKind = "client_request"
	KindMalformedResponse ErrorKind = "malformed_response"
	KindExhaustedRetries  ErrorKind = "exhausted_retries"
	KindCancelled         ErrorKind = "cancelled"
	KindInvalidRequest    ErrorKind = "invalid_request"
)

var (
	// ErrConfiguration marks missing or invalid credentials and endpoints.
	ErrConfiguration = errors.New("configuration error")

	// ErrExhaustedRetries is returned once every attempt has failed.
	ErrExhaustedRetries = errors.New("retries exhausted")

	// ErrInvalidRequest marks a GenerationRequest that violates its invariants.
	ErrInvalidRequest = errors.New("invalid request")
)

// DispatchError represents a classified failure from any provider or transport.
type DispatchError struct {
	Kind       ErrorKind `json:"kind"`
	Provider   Provider  `json:"provider,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	Message    string    `json:"message"`
	Err        error     `json:"-"`
}

// NewDispatchError creates a new dispatch error.
func NewDispatchError(kind ErrorKind, provider Provider, statusCode int, message string, cause error) *DispatchError {
	return &DispatchError{
		Kind:       kind,
		Provider:   provider,
		StatusCode: statusCode,
		Message:    message,
		Err:        cause,
	}
}

// Error implements the error interface.
func (e *DispatchError) Error() string {
	msg := string(e.Kind) + ": " + e.Message
	if e.Provider != "" {
		msg = string(e.Provider) + ": " + msg
	}
	if e.Err != nil && e.Err.Error() != e.Message {
		msg += " (" + e.Err.Error() + ")"
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *DispatchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the retry loop may spend another attempt on this error.
func (e *DispatchError) Retryable() bool {
	switch e.Kind {
	case KindConfiguration, KindInvalidRequest, KindCancelled:
		return false
	default:
		return true
	}
}

// KindOf extracts the ErrorKind of err, defaulting to transient_network.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Kind
	}
	switch {
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrInvalidRequest):
		return KindInvalidRequest
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindTransientNetwork
	}
}

// KindForStatus classifies a non-success HTTP status code.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout
	case status >= 500:
		return KindTransientNetwork
	case status >= 400:
		return KindClientRequest
	default:
		return KindMalformedResponse
	}
}

// ConfigurationError builds a non-retryable configuration failure.
func ConfigurationError(provider Provider, format string, args ...interface{}) *DispatchError {
	return NewDispatchError(KindConfiguration, provider, 0, fmt.Sprintf(format, args...), ErrConfiguration)
}
