package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// MaxQuantity is the largest quantity accepted for a single order line.
const MaxQuantity = 10000

var (
	// ErrNotFound is returned when an order does not exist or is not visible
	// to the caller.
	ErrNotFound = errors.New("order not found")
	// ErrNoLines is returned when an order is created without order lines.
	ErrNoLines = errors.New("at least one order line required")
	// ErrReservationHasOrder is returned by repositories when the reservation
	// is already attached to another order.
	ErrReservationHasOrder = errors.New("reservation already has an order")
)

// ValidationError indicates malformed or incomplete client input.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Reason: err.Error(), Err: err}
}
