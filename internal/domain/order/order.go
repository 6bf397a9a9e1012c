package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/respa-payments/internal/domain/product"
	"github.com/xenking/respa-payments/internal/domain/reservation"
)

// Order is a priced purchase attached to exactly one reservation.
//
// Prices are never stored on the order: they are derived from the lines and the
// live reservation span every time they are read.
type Order struct {
	ID            int64
	OrderNumber   string
	Status        Status
	ReservationID string
	Reservation   *reservation.Reservation
	Lines         []Line
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Line is a product bought as part of an order.
type Line struct {
	ID       int64
	Product  product.Product
	Quantity int
}

// UnitPrice returns the taxed price of a single unit of l.
func (o *Order) UnitPrice(l *Line) decimal.Decimal {
	return product.PriceForReservation(&l.Product, o.Reservation)
}

// UnitPretaxPrice returns the untaxed price of a single unit of l.
func (o *Order) UnitPretaxPrice(l *Line) decimal.Decimal {
	return product.PretaxPriceForReservation(&l.Product, o.Reservation)
}

// LinePrice returns the taxed price of l including its quantity.
func (o *Order) LinePrice(l *Line) decimal.Decimal {
	return o.UnitPrice(l).Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Price returns the order total.
func (o *Order) Price() decimal.Decimal {
	total := decimal.Zero
	for i := range o.Lines {
		total = total.Add(o.LinePrice(&o.Lines[i]))
	}
	return total
}

// Viewer identifies who is reading orders. The zero Viewer sees nothing.
type Viewer struct {
	UserID string
	All    bool
}

// CanView reports whether v may see orders of reservation r.
func (v Viewer) CanView(r *reservation.Reservation) bool {
	if v.All {
		return true
	}
	return r != nil && v.UserID != "" && r.UserID == v.UserID
}

// StatusChange is emitted after an order status transition was committed.
type StatusChange struct {
	OrderNumber   string
	ReservationID string
	From          Status
	To            Status
	At            time.Time
}

// Publisher delivers status changes to interested subsystems, e.g. the
// reservation calendar releasing or confirming the booked slot.
type Publisher interface {
	PublishStatusChange(ctx context.Context, change StatusChange) error
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create persists o with its lines and fills in the generated fields.
	// Returns ErrReservationHasOrder when the reservation already has an order.
	Create(ctx context.Context, o *Order) error
	// GetByNumber returns the order with lines, products and reservation.
	GetByNumber(ctx context.Context, number string) (*Order, error)
	// List returns orders whose reservation v may see, newest first.
	List(ctx context.Context, v Viewer) ([]*Order, error)
	// UpdateStatus locks the order row for the duration of decide and stores
	// the returned status when write is true. The order passed to decide has
	// no lines or reservation loaded.
	UpdateStatus(ctx context.Context, number string, decide func(o *Order) (next Status, write bool)) error
	// ListStale returns numbers of orders in status created before the given time.
	ListStale(ctx context.Context, status Status, before time.Time) ([]string, error)
	// DeleteWaiting removes the order and its lines if it is still waiting.
	// Returns ErrNotFound when no waiting order with that number exists.
	DeleteWaiting(ctx context.Context, number string) error
}
