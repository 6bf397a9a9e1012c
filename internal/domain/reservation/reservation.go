// Package reservation holds the slice of the reservation model that the
// payment flow consumes: the booked time span and the reserver's contact and
// billing details.
package reservation

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a requested reservation does not exist.
var ErrNotFound = errors.New("reservation not found")

// Reservation is a booked time span owned by the reservation calendar.
type Reservation struct {
	ID     string
	UserID string
	Begin  time.Time
	End    time.Time

	ReserverName  string
	ReserverEmail string
	BillingStreet string
	BillingZip    string
	BillingCity   string
}

// Transient builds an unsaved reservation that only carries a time span.
// Price checks use it to price order lines without touching the calendar.
func Transient(begin, end time.Time) *Reservation {
	return &Reservation{Begin: begin, End: end}
}

// Duration returns the length of the reservation, or zero when the span is
// empty or inverted.
func (r *Reservation) Duration() time.Duration {
	if r == nil || !r.End.After(r.Begin) {
		return 0
	}
	return r.End.Sub(r.Begin)
}

// Repository provides read access to reservations.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Reservation, error)
}
