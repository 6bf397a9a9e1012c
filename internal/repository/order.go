package repository

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/respa-payments/internal/domain/order"
	"github.com/xenking/respa-payments/internal/domain/product"
	"github.com/xenking/respa-payments/internal/domain/reservation"
)

// reservationOrderConstraint is the unique constraint that allows one order
// per reservation.
const reservationOrderConstraint = "orders_reservation_id_key"

const (
	insertOrderSQL = `INSERT INTO orders (order_number, status, reservation_id, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id`

	insertOrderLineSQL = `INSERT INTO order_lines (order_id, product_id, quantity)
	VALUES ($1, $2, $3)
	RETURNING id`

	orderWithReservationSQL = `SELECT o.id, o.order_number, o.status, o.created_at, o.updated_at,
		r.id, r.user_id, r.begin_at, r.end_at, r.reserver_name, r.reserver_email,
		r.billing_street, r.billing_zip, r.billing_city
	FROM orders o
	JOIN reservations r ON r.id = o.reservation_id`

	getOrderByNumberSQL = orderWithReservationSQL + ` WHERE o.order_number = $1`

	listOrdersSQL = orderWithReservationSQL + `
	WHERE $1::boolean OR r.user_id = $2
	ORDER BY o.created_at DESC, o.id DESC`

	listOrderLinesSQL = `SELECT l.order_id, l.id, l.quantity,
		p.id, p.sku, p.type, p.name, p.pretax_price, p.tax_percentage, p.price_type
	FROM order_lines l
	JOIN products p ON p.id = l.product_id
	WHERE l.order_id = ANY($1)
	ORDER BY l.order_id, l.id`

	lockOrderSQL = `SELECT id, order_number, status, reservation_id, created_at, updated_at
	FROM orders WHERE order_number = $1
	FOR UPDATE`

	updateOrderStatusSQL = `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`

	deleteWaitingOrderSQL = `DELETE FROM orders WHERE order_number = $1 AND status = 'waiting'`

	listStaleOrdersSQL = `SELECT order_number FROM orders
	WHERE status = $1 AND created_at < $2
	ORDER BY created_at`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order and its lines in one transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, insertOrderSQL,
		o.OrderNumber, string(o.Status), o.ReservationID, o.CreatedAt, o.UpdatedAt,
	).Scan(&o.ID)
	if err != nil {
		if isUniqueViolation(err, reservationOrderConstraint) {
			return order.ErrReservationHasOrder
		}
		return errors.Wrapf(err, "insert order %q", o.OrderNumber)
	}

	for i := range o.Lines {
		l := &o.Lines[i]
		if err := tx.QueryRow(ctx, insertOrderLineSQL, o.ID, l.Product.ID, l.Quantity).Scan(&l.ID); err != nil {
			return errors.Wrapf(err, "insert order line %q", l.Product.ID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}

// GetByNumber returns the order with its lines, products and reservation.
func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByNumberSQL, number)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %q", number)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", number)
	}
	if err := r.loadLines(ctx, []*order.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

// List returns orders visible to v, newest first.
func (r *OrderRepository) List(ctx context.Context, v order.Viewer) ([]*order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL, v.All, v.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	if err := r.loadLines(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateStatus locks the order row with SELECT ... FOR UPDATE, lets decide
// pick the next status and writes it before releasing the lock.
func (r *OrderRepository) UpdateStatus(
	ctx context.Context,
	number string,
	decide func(o *order.Order) (order.Status, bool),
) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		o      order.Order
		status string
	)
	err = tx.QueryRow(ctx, lockOrderSQL, number).Scan(
		&o.ID, &o.OrderNumber, &status, &o.ReservationID, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order.ErrNotFound
		}
		return errors.Wrap(err, "lock order")
	}
	o.Status = order.Status(status)

	next, write := decide(&o)
	if !write {
		return nil
	}
	if _, err := tx.Exec(ctx, updateOrderStatusSQL, o.ID, string(next)); err != nil {
		return errors.Wrap(err, "update status")
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}

// ListStale returns numbers of orders in status created before the cutoff,
// oldest first.
func (r *OrderRepository) ListStale(ctx context.Context, status order.Status, before time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx, listStaleOrdersSQL, string(status), before)
	if err != nil {
		return nil, errors.Wrap(err, "list stale orders")
	}
	numbers, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errors.Wrap(err, "list stale orders")
	}
	return numbers, nil
}

// DeleteWaiting removes a waiting order; its lines go with it through the
// cascading foreign key.
func (r *OrderRepository) DeleteWaiting(ctx context.Context, number string) error {
	tag, err := r.pool.Exec(ctx, deleteWaitingOrderSQL, number)
	if err != nil {
		return errors.Wrapf(err, "delete order %q", number)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// loadLines fetches the lines of all orders with a single query.
func (r *OrderRepository) loadLines(ctx context.Context, orders []*order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[int64]*order.Order, len(orders))
	ids := make([]int64, len(orders))
	for i, o := range orders {
		byID[o.ID] = o
		ids[i] = o.ID
		o.Lines = []order.Line{}
	}

	rows, err := r.pool.Query(ctx, listOrderLinesSQL, ids)
	if err != nil {
		return errors.Wrap(err, "list order lines")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID        int64
			l              order.Line
			typ, priceType string
		)
		err := rows.Scan(&orderID, &l.ID, &l.Quantity,
			&l.Product.ID, &l.Product.SKU, &typ, &l.Product.Name,
			&l.Product.PretaxPrice, &l.Product.TaxPercentage, &priceType,
		)
		if err != nil {
			return errors.Wrap(err, "scan order line")
		}
		l.Product.Type = product.Type(typ)
		l.Product.PriceType = product.PriceType(priceType)
		if o, ok := byID[orderID]; ok {
			o.Lines = append(o.Lines, l)
		}
	}
	return rows.Err()
}

func scanOrder(row pgx.CollectableRow) (*order.Order, error) {
	var (
		o      order.Order
		res    reservation.Reservation
		status string
	)
	err := row.Scan(&o.ID, &o.OrderNumber, &status, &o.CreatedAt, &o.UpdatedAt,
		&res.ID, &res.UserID, &res.Begin, &res.End, &res.ReserverName, &res.ReserverEmail,
		&res.BillingStreet, &res.BillingZip, &res.BillingCity,
	)
	if err != nil {
		return nil, err
	}
	o.Status = order.Status(status)
	o.ReservationID = res.ID
	o.Reservation = &res
	return &o, nil
}
