package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrURLUnavailable indicates a page-scoped fragment could not resolve the current request URL
	ErrURLUnavailable = errors.New("current url unavailable")

	// ErrInvalidScope indicates a directive named a scope other than site or page
	ErrInvalidScope = errors.New("invalid fragment scope")
)

// SerializationError is returned when fragment parameters cannot be encoded
// deterministically for fingerprinting.
type SerializationError struct {
	Err error
}

// Error implements the error interface.
func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialize fragment parameters: %v", e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *SerializationError) Unwrap() error {
	return e.Err
}

// InvalidDurationError is returned when a TTL expression cannot be parsed.
type InvalidDurationError struct {
	Expr string
	Err  error
}

// Error implements the error interface.
func (e *InvalidDurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid duration %q: %v", e.Expr, e.Err)
	}
	return fmt.Sprintf("invalid duration %q", e.Expr)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *InvalidDurationError) Unwrap() error {
	return e.Err
}

// StoreError wraps a failure talking to the backing key/value store.
type StoreError struct {
	// Op is the store operation: "get" or "put"
	Op  string
	Key string
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Key, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *StoreError) Unwrap() error {
	return e.Err
}
