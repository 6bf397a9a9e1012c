package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/respa-payments/internal/domain/reservation"
)

const (
	reservationColumns = `id, user_id, begin_at, end_at, reserver_name, reserver_email,
	billing_street, billing_zip, billing_city`

	getReservationSQL = `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`

	upsertReservationSQL = `INSERT INTO reservations (` + reservationColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id) DO UPDATE SET
		user_id = EXCLUDED.user_id,
		begin_at = EXCLUDED.begin_at,
		end_at = EXCLUDED.end_at,
		reserver_name = EXCLUDED.reserver_name,
		reserver_email = EXCLUDED.reserver_email,
		billing_street = EXCLUDED.billing_street,
		billing_zip = EXCLUDED.billing_zip,
		billing_city = EXCLUDED.billing_city`
)

var _ reservation.Repository = (*ReservationRepository)(nil)

// ReservationRepository reads reservations from PostgreSQL.
type ReservationRepository struct {
	pool *pgxpool.Pool
}

// NewReservationRepository returns a ReservationRepository that uses the given pool.
func NewReservationRepository(pool *pgxpool.Pool) *ReservationRepository {
	return &ReservationRepository{pool: pool}
}

// GetByID returns the reservation with the given id.
func (r *ReservationRepository) GetByID(ctx context.Context, id string) (*reservation.Reservation, error) {
	var res reservation.Reservation
	err := r.pool.QueryRow(ctx, getReservationSQL, id).Scan(
		&res.ID, &res.UserID, &res.Begin, &res.End, &res.ReserverName, &res.ReserverEmail,
		&res.BillingStreet, &res.BillingZip, &res.BillingCity,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, reservation.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get reservation %q", id)
	}
	return &res, nil
}

// Upsert inserts or replaces res.
func (r *ReservationRepository) Upsert(ctx context.Context, res *reservation.Reservation) error {
	_, err := r.pool.Exec(ctx, upsertReservationSQL,
		res.ID, res.UserID, res.Begin, res.End, res.ReserverName, res.ReserverEmail,
		res.BillingStreet, res.BillingZip, res.BillingCity,
	)
	if err != nil {
		return errors.Wrapf(err, "upsert reservation %q", res.ID)
	}
	return nil
}
