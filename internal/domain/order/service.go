// Package order implements the order lifecycle: creation from a reservation
// and product lines, price checks, visibility-scoped reads and the payment
// status state machine.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/respa-payments/internal/domain/product"
	"github.com/xenking/respa-payments/internal/domain/reservation"
)

// LineRequest is a product and quantity requested by the client.
type LineRequest struct {
	ProductID string
	Quantity  int
}

// CreateOrderRequest holds the input for creating an order.
type CreateOrderRequest struct {
	ReservationID string
	Lines         []LineRequest
}

// CheckPriceRequest holds the input for a dry-run price calculation.
type CheckPriceRequest struct {
	Lines []LineRequest
	Begin time.Time
	End   time.Time
}

// Service encapsulates order business logic.
type Service struct {
	products     product.Repository
	reservations reservation.Repository
	orders       Repository
	publisher    Publisher
	now          func() time.Time
}

// ServiceOption configures optional Service dependencies.
type ServiceOption func(s *Service)

// WithPublisher sets the publisher notified about committed status changes.
func WithPublisher(p Publisher) ServiceOption {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	products product.Repository,
	reservations reservation.Repository,
	orders Repository,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		products:     products,
		reservations: reservations,
		orders:       orders,
		now:          time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreateOrder validates the request, persists a waiting order for the
// reservation and returns it with prices resolvable.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if req.ReservationID == "" {
		return nil, invalid("reservation", errors.New("reservation is required"))
	}
	lines, err := s.buildLines(ctx, req.Lines)
	if err != nil {
		return nil, err
	}

	r, err := s.reservations.GetByID(ctx, req.ReservationID)
	if err != nil {
		if errors.Is(err, reservation.ErrNotFound) {
			return nil, invalid("reservation", err)
		}
		return nil, errors.Wrap(err, "get reservation")
	}

	now := s.now().UTC()
	o := &Order{
		OrderNumber:   uuid.New().String(),
		Status:        StatusWaiting,
		ReservationID: r.ID,
		Reservation:   r,
		Lines:         lines,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		if errors.Is(err, ErrReservationHasOrder) {
			return nil, invalid("reservation", err)
		}
		return nil, errors.Wrap(err, "create order")
	}

	zctx.From(ctx).Info("Order created",
		zap.String("order_number", o.OrderNumber),
		zap.String("reservation_id", o.ReservationID),
		zap.Int("lines", len(o.Lines)),
	)
	return o, nil
}

// CheckPrice prices the requested lines against a transient reservation
// spanning Begin..End. Nothing is persisted; the returned order has no
// number and goes through the same pricing code as stored orders.
func (s *Service) CheckPrice(ctx context.Context, req CheckPriceRequest) (*Order, error) {
	lines, err := s.buildLines(ctx, req.Lines)
	if err != nil {
		return nil, err
	}
	return &Order{
		Status:      StatusWaiting,
		Reservation: reservation.Transient(req.Begin, req.End),
		Lines:       lines,
	}, nil
}

// GetOrder returns the order with the given number if v may see it.
func (s *Service) GetOrder(ctx context.Context, v Viewer, number string) (*Order, error) {
	o, err := s.orders.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if !v.CanView(o.Reservation) {
		return nil, ErrNotFound
	}
	return o, nil
}

// ListOrders returns the orders visible to v.
func (s *Service) ListOrders(ctx context.Context, v Viewer) ([]*Order, error) {
	if !v.All && v.UserID == "" {
		return []*Order{}, nil
	}
	orders, err := s.orders.List(ctx, v)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// Transition moves the order to target under the order row lock.
//
// Illegal transitions are logged and reported as Illegal without an error:
// a settled payment never flips. The returned error is reserved for missing
// orders and storage failures.
func (s *Service) Transition(ctx context.Context, number string, target Status) (Outcome, error) {
	if !target.Valid() {
		return 0, errors.Errorf("unknown status %q", target)
	}

	var (
		outcome Outcome
		change  StatusChange
	)
	err := s.orders.UpdateStatus(ctx, number, func(o *Order) (Status, bool) {
		outcome = Decide(o.Status, target)
		change = StatusChange{
			OrderNumber:   o.OrderNumber,
			ReservationID: o.ReservationID,
			From:          o.Status,
			To:            target,
			At:            s.now().UTC(),
		}
		return target, outcome == Applied
	})
	if err != nil {
		return 0, errors.Wrapf(err, "transition order %s", number)
	}

	lg := zctx.From(ctx).With(
		zap.String("order_number", number),
		zap.String("from", string(change.From)),
		zap.String("to", string(target)),
	)
	switch outcome {
	case Illegal:
		if change.From == StatusExpired && target == StatusConfirmed {
			// The customer paid for an order that was already expired.
			lg.Error("Payment confirmed for expired order, needs reconciliation")
			break
		}
		lg.Warn("Illegal order status transition ignored")
	case NoOp:
		lg.Debug("Order already in target status")
	case Applied:
		lg.Info("Order status changed")
		if s.publisher != nil {
			if err := s.publisher.PublishStatusChange(ctx, change); err != nil {
				lg.Error("Publish status change", zap.Error(err))
			}
		}
	}
	return outcome, nil
}

// Discard deletes a waiting order whose payment could not be started, which
// frees its reservation for a new attempt. Orders that already left waiting
// are kept.
func (s *Service) Discard(ctx context.Context, number string) error {
	if err := s.orders.DeleteWaiting(ctx, number); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return errors.Wrapf(err, "discard order %s", number)
	}
	zctx.From(ctx).Info("Order discarded", zap.String("order_number", number))
	return nil
}

// buildLines validates line requests and resolves their products in one batch.
func (s *Service) buildLines(ctx context.Context, reqs []LineRequest) ([]Line, error) {
	if len(reqs) == 0 {
		return nil, invalid("order_lines", ErrNoLines)
	}

	ids := make([]string, len(reqs))
	for i, l := range reqs {
		if l.Quantity < 0 {
			return nil, invalid("order_lines", fmt.Errorf("quantity must be positive for product %s", l.ProductID))
		}
		if l.Quantity > MaxQuantity {
			return nil, invalid("order_lines", fmt.Errorf("quantity exceeds %d for product %s", MaxQuantity, l.ProductID))
		}
		ids[i] = l.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	lines := make([]Line, len(reqs))
	for i, l := range reqs {
		p, ok := byID[l.ProductID]
		if !ok {
			return nil, invalid("order_lines", fmt.Errorf("%w: %s", product.ErrNotFound, l.ProductID))
		}
		qty := l.Quantity
		if qty == 0 {
			qty = 1
		}
		lines[i] = Line{Product: p, Quantity: qty}
	}
	return lines, nil
}
