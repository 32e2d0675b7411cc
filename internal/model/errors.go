package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidIntent marks caller errors detected before any provider is contacted.
	ErrInvalidIntent = errors.New("invalid swap intent")

	// ErrUnsupportedChainPair means no configured adapter can serve the intent's chains.
	ErrUnsupportedChainPair = errors.New("no provider supports this chain pair")

	// ErrContractViolation means an adapter produced a quote that breaks the Quote schema.
	ErrContractViolation = errors.New("quote contract violation")
)

// ErrorKind classifies adapter failures.
type ErrorKind string

const (
	KindUnsupportedChain  ErrorKind = "unsupported_chain"
	KindHTTPStatus        ErrorKind = "http_status"
	KindMalformedResponse ErrorKind = "malformed_response"
	KindNoLiquidity       ErrorKind = "no_liquidity"
	KindTransport         ErrorKind = "transport"
	KindRateLimited       ErrorKind = "rate_limited"
	KindInvalidInput      ErrorKind = "invalid_input"
)

// AdapterError is the typed failure every adapter returns instead of raw errors.
type AdapterError struct {
	Provider string
	Kind     ErrorKind
	Status   int
	Message  string
	Err      error
}

func (e *AdapterError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// Expected reports failures that say nothing about provider health: the provider
// answered correctly but could not or would not quote this intent.
func (e *AdapterError) Expected() bool {
	switch e.Kind {
	case KindNoLiquidity, KindUnsupportedChain, KindInvalidInput:
		return true
	case KindHTTPStatus:
		return e.Status >= 400 && e.Status < 500 && e.Status != 429
	}
	return false
}

// NewAdapterError builds an AdapterError with a formatted message.
func NewAdapterError(provider string, kind ErrorKind, format string, args ...interface{}) *AdapterError {
	return &AdapterError{
		Provider: provider,
		Kind:     kind,
		Message:  fmt.Sprintf(format, args...),
	}
}
