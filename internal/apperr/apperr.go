// Package apperr defines the domain error kinds surfaced by services.
// Callers classify failures with errors.Is; the API layer maps them to
// HTTP status codes.
package apperr

import "errors"

var (
	// ErrNotFound is returned for a missing entity or an ownership mismatch.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState is returned for transitions the current status forbids.
	ErrInvalidState = errors.New("invalid state")
	// ErrEmptyCart is returned when checkout is attempted on an empty cart.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrConflict is returned when a concurrent operation already holds the
	// slot, e.g. a monitoring job already in flight for the AOI.
	ErrConflict = errors.New("conflict")
	// ErrProvider is returned when a payment gateway call fails.
	ErrProvider = errors.New("provider error")
	// ErrUnauthenticated is returned for webhook payloads with bad signatures.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrTimeout is returned when an operation exceeds its wall-clock budget.
	ErrTimeout = errors.New("timeout")
)
