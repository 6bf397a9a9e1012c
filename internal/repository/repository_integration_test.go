//go:build integration

package repository

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/respa-payments/internal/domain/auth"
	"github.com/xenking/respa-payments/internal/domain/order"
	"github.com/xenking/respa-payments/internal/domain/product"
	"github.com/xenking/respa-payments/internal/domain/reservation"
)

var pool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "respa",
				"POSTGRES_PASSWORD": "respa",
				"POSTGRES_DB":       "respa",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() { _ = pg.Terminate(context.Background()) }()

	host, err := pg.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := pg.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://respa:respa@%s:%s/respa?sslmode=disable", host, port.Port())
	pool, err = NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer pool.Close()

	if err := RunMigrations(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	// Migrations are idempotent.
	if err := RunMigrations(ctx, pool); err != nil {
		log.Fatalf("migrate twice: %v", err)
	}

	return m.Run()
}

type fixture struct {
	products     *ProductRepository
	reservations *ReservationRepository
	orders       *OrderRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		products:     NewProductRepository(pool),
		reservations: NewReservationRepository(pool),
		orders:       NewOrderRepository(pool),
	}
	ctx := context.Background()
	require.NoError(t, f.products.Upsert(ctx, &product.Product{
		ID: "room", SKU: "room-1", Type: product.TypeRent, Name: "Meeting room",
		PretaxPrice: decimal.RequireFromString("10.00"), TaxPercentage: decimal.NewFromInt(24),
		PriceType: product.PricePerHour,
	}))
	require.NoError(t, f.products.Upsert(ctx, &product.Product{
		ID: "coffee", SKU: "coffee-1", Type: product.TypeExtra, Name: "Coffee",
		PretaxPrice: decimal.RequireFromString("2.50"), TaxPercentage: decimal.NewFromInt(14),
		PriceType: product.PriceFixed,
	}))
	return f
}

func (f *fixture) reservation(t *testing.T, userID string) *reservation.Reservation {
	t.Helper()
	begin := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	r := &reservation.Reservation{
		ID:            uuid.NewString(),
		UserID:        userID,
		Begin:         begin,
		End:           begin.Add(2 * time.Hour),
		ReserverName:  "Ada Lovelace",
		ReserverEmail: "ada@example.com",
		BillingStreet: "Main street 1",
		BillingZip:    "00100",
		BillingCity:   "Helsinki",
	}
	require.NoError(t, f.reservations.Upsert(context.Background(), r))
	return r
}

func (f *fixture) order(t *testing.T, r *reservation.Reservation, createdAt time.Time) *order.Order {
	t.Helper()
	ctx := context.Background()
	products, err := f.products.GetByIDs(ctx, []string{"room", "coffee"})
	require.NoError(t, err)
	require.Len(t, products, 2)

	o := &order.Order{
		OrderNumber:   uuid.NewString(),
		Status:        order.StatusWaiting,
		ReservationID: r.ID,
		Reservation:   r,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
	for i, p := range products {
		o.Lines = append(o.Lines, order.Line{Product: p, Quantity: i + 1})
	}
	require.NoError(t, f.orders.Create(ctx, o))
	return o
}

func TestProductUpsertRejectsInvalidTax(t *testing.T) {
	f := newFixture(t)

	err := f.products.Upsert(context.Background(), &product.Product{
		ID: "bad", SKU: "bad", Type: product.TypeExtra, Name: "Bad",
		PretaxPrice: decimal.NewFromInt(1), TaxPercentage: decimal.NewFromInt(12),
		PriceType: product.PriceFixed,
	})
	require.Error(t, err)
}

func TestReservationNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.reservations.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, reservation.ErrNotFound)
}

func TestOrderRoundTrip(t *testing.T) {
	f := newFixture(t)
	r := f.reservation(t, "user-1")
	created := f.order(t, r, time.Now().UTC())

	got, err := f.orders.GetByNumber(context.Background(), created.OrderNumber)
	require.NoError(t, err)

	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, order.StatusWaiting, got.Status)
	assert.Equal(t, r.ID, got.Reservation.ID)
	assert.Equal(t, "user-1", got.Reservation.UserID)
	require.Len(t, got.Lines, 2)
	assert.True(t, created.Price().Equal(got.Price()), "created %s, loaded %s", created.Price(), got.Price())
}

func TestOrderNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.orders.GetByNumber(context.Background(), "missing")
	require.ErrorIs(t, err, order.ErrNotFound)

	err = f.orders.UpdateStatus(context.Background(), "missing", func(*order.Order) (order.Status, bool) {
		return order.StatusConfirmed, true
	})
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestOneOrderPerReservation(t *testing.T) {
	f := newFixture(t)
	r := f.reservation(t, "user-1")
	f.order(t, r, time.Now().UTC())

	err := f.orders.Create(context.Background(), &order.Order{
		OrderNumber:   uuid.NewString(),
		Status:        order.StatusWaiting,
		ReservationID: r.ID,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	})
	require.ErrorIs(t, err, order.ErrReservationHasOrder)
}

func TestDeleteWaiting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.reservation(t, "u")
	o := f.order(t, r, time.Now().UTC())

	require.NoError(t, f.orders.DeleteWaiting(ctx, o.OrderNumber))
	_, err := f.orders.GetByNumber(ctx, o.OrderNumber)
	require.ErrorIs(t, err, order.ErrNotFound)

	// The reservation accepts a new order once the waiting one is gone.
	again := f.order(t, r, time.Now().UTC())
	err = f.orders.UpdateStatus(ctx, again.OrderNumber, func(*order.Order) (order.Status, bool) {
		return order.StatusConfirmed, true
	})
	require.NoError(t, err)
	require.ErrorIs(t, f.orders.DeleteWaiting(ctx, again.OrderNumber), order.ErrNotFound)
}

func TestListScopedByViewer(t *testing.T) {
	f := newFixture(t)
	user := "user-" + uuid.NewString()
	mine := f.order(t, f.reservation(t, user), time.Now().UTC())
	f.order(t, f.reservation(t, "someone-else"), time.Now().UTC())

	got, err := f.orders.List(context.Background(), order.Viewer{UserID: user})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, mine.OrderNumber, got[0].OrderNumber)
	assert.Len(t, got[0].Lines, 2)

	all, err := f.orders.List(context.Background(), order.Viewer{All: true})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(all), 2)
}

func TestListStale(t *testing.T) {
	f := newFixture(t)
	cutoff := time.Now().UTC().Add(-time.Hour)
	old := f.order(t, f.reservation(t, "u"), cutoff.Add(-time.Minute))
	fresh := f.order(t, f.reservation(t, "u"), cutoff.Add(time.Minute))

	numbers, err := f.orders.ListStale(context.Background(), order.StatusWaiting, cutoff)
	require.NoError(t, err)
	assert.Contains(t, numbers, old.OrderNumber)
	assert.NotContains(t, numbers, fresh.OrderNumber)
}

func TestConcurrentTransitionsApplyOnce(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, f.reservation(t, "u"), time.Now().UTC())
	svc := order.NewService(f.products, f.reservations, f.orders)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := range 16 {
		target := order.StatusConfirmed
		if i%2 == 1 {
			target = order.StatusRejected
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := svc.Transition(context.Background(), o.OrderNumber, target)
			assert.NoError(t, err)
			if outcome == order.Applied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	got, err := f.orders.GetByNumber(context.Background(), o.OrderNumber)
	require.NoError(t, err)
	assert.True(t, got.Status.Final())
}

func TestAPIKeyLookup(t *testing.T) {
	keys := NewAPIKeyRepository(pool)
	ctx := context.Background()
	info := &auth.APIKeyInfo{
		ID:      "k1",
		KeyHash: "abcdef",
		Name:    "test",
		UserID:  "user-1",
		Scopes:  []string{auth.ScopeOrdersWrite},
	}
	require.NoError(t, keys.Upsert(ctx, info))

	got, err := keys.FindByHash(ctx, "abcdef")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
	assert.True(t, got.HasScope(auth.ScopeOrdersWrite))
	assert.False(t, got.HasScope(auth.ScopeOrdersReadAll))

	_, err = keys.FindByHash(ctx, "nope")
	require.Error(t, err)
}
