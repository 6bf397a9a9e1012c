package order

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xenking/respa-payments/internal/domain/product"
	"github.com/xenking/respa-payments/internal/domain/reservation"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byID   map[string]product.Product
	getErr error
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) {
	out := make([]product.Product, 0, len(m.byID))
	for _, p := range m.byID {
		out = append(out, p)
	}
	return out, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockProductRepo) Upsert(_ context.Context, p *product.Product) error {
	m.byID[p.ID] = *p
	return nil
}

type mockReservationRepo struct {
	byID map[string]*reservation.Reservation
}

func (m *mockReservationRepo) GetByID(_ context.Context, id string) (*reservation.Reservation, error) {
	r, ok := m.byID[id]
	if !ok {
		return nil, reservation.ErrNotFound
	}
	return r, nil
}

// memOrderRepo is an in-memory Repository. UpdateStatus holds a single mutex
// to mirror the row lock of the real store.
type memOrderRepo struct {
	mu       sync.Mutex
	byNumber map[string]*Order
	creates  int
	nextID   int64
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{byNumber: make(map[string]*Order)}
}

func (m *memOrderRepo) Create(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byNumber {
		if existing.ReservationID == o.ReservationID {
			return ErrReservationHasOrder
		}
	}
	m.creates++
	m.nextID++
	o.ID = m.nextID
	cp := *o
	m.byNumber[o.OrderNumber] = &cp
	return nil
}

func (m *memOrderRepo) GetByNumber(_ context.Context, number string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byNumber[number]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrderRepo) List(_ context.Context, v Viewer) ([]*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Order
	for _, o := range m.byNumber {
		if v.CanView(o.Reservation) {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memOrderRepo) UpdateStatus(_ context.Context, number string, decide func(o *Order) (Status, bool)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byNumber[number]
	if !ok {
		return ErrNotFound
	}
	header := &Order{ID: o.ID, OrderNumber: o.OrderNumber, Status: o.Status, ReservationID: o.ReservationID}
	next, write := decide(header)
	if write {
		o.Status = next
	}
	return nil
}

func (m *memOrderRepo) ListStale(_ context.Context, status Status, before time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for n, o := range m.byNumber {
		if o.Status == status && o.CreatedAt.Before(before) {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memOrderRepo) DeleteWaiting(_ context.Context, number string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byNumber[number]
	if !ok || o.Status != StatusWaiting {
		return ErrNotFound
	}
	delete(m.byNumber, number)
	return nil
}

func (m *memOrderRepo) status(t *testing.T, number string) Status {
	t.Helper()
	o, err := m.GetByNumber(context.Background(), number)
	require.NoError(t, err)
	return o.Status
}

type mockPublisher struct {
	mu      sync.Mutex
	changes []StatusChange
	err     error
}

func (m *mockPublisher) PublishStatusChange(_ context.Context, c StatusChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes = append(m.changes, c)
	return m.err
}

// --- Helpers ---

var (
	begin = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	end   = begin.Add(2 * time.Hour)
)

func testProducts() *mockProductRepo {
	return &mockProductRepo{byID: map[string]product.Product{
		"a": {
			ID: "a", SKU: "sku-a", Type: product.TypeRent, Name: "Room",
			PretaxPrice: decimal.RequireFromString("10.00"), TaxPercentage: decimal.NewFromInt(24),
			PriceType: product.PricePerHour,
		},
		"b": {
			ID: "b", SKU: "sku-b", Type: product.TypeExtra, Name: "Coffee",
			PretaxPrice: decimal.RequireFromString("2.50"), TaxPercentage: decimal.NewFromInt(14),
			PriceType: product.PriceFixed,
		},
	}}
}

func testReservations() *mockReservationRepo {
	return &mockReservationRepo{byID: map[string]*reservation.Reservation{
		"r1": {ID: "r1", UserID: "u1", Begin: begin, End: end, ReserverName: "Ada", ReserverEmail: "ada@example.com"},
		"r2": {ID: "r2", UserID: "u2", Begin: begin, End: end},
	}}
}

type fixture struct {
	svc    *Service
	orders *memOrderRepo
	pub    *mockPublisher
	now    time.Time
}

func newFixture() *fixture {
	f := &fixture{
		orders: newMemOrderRepo(),
		pub:    &mockPublisher{},
		now:    time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(testProducts(), testReservations(), f.orders,
		WithPublisher(f.pub),
		WithClock(func() time.Time { return f.now }),
	)
	return f
}

func (f *fixture) create(t *testing.T, reservationID string) *Order {
	t.Helper()
	o, err := f.svc.CreateOrder(context.Background(), CreateOrderRequest{
		ReservationID: reservationID,
		Lines: []LineRequest{
			{ProductID: "a", Quantity: 1},
			{ProductID: "b", Quantity: 2},
		},
	})
	require.NoError(t, err)
	return o
}

// --- Tests ---

func TestCreateOrder_EmptyLines(t *testing.T) {
	f := newFixture()

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderRequest{ReservationID: "r1"})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "order_lines", vErr.Field)
	assert.ErrorIs(t, err, ErrNoLines)
	assert.Zero(t, f.orders.creates, "nothing must be persisted")
}

func TestCreateOrder_UnknownProduct(t *testing.T) {
	f := newFixture()

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderRequest{
		ReservationID: "r1",
		Lines:         []LineRequest{{ProductID: "missing", Quantity: 1}},
	})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.ErrorIs(t, err, product.ErrNotFound)
	assert.Zero(t, f.orders.creates)
}

func TestCreateOrder_NegativeQuantity(t *testing.T) {
	f := newFixture()

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderRequest{
		ReservationID: "r1",
		Lines:         []LineRequest{{ProductID: "a", Quantity: -1}},
	})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestCreateOrder_QuantityTooLarge(t *testing.T) {
	f := newFixture()

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderRequest{
		ReservationID: "r1",
		Lines:         []LineRequest{{ProductID: "a", Quantity: MaxQuantity + 1}},
	})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "order_lines", vErr.Field)
	assert.Zero(t, f.orders.creates)

	_, err = f.svc.CheckPrice(context.Background(), CheckPriceRequest{
		Lines: []LineRequest{{ProductID: "a", Quantity: 9999999999}},
		Begin: begin,
		End:   end,
	})
	require.ErrorAs(t, err, &vErr, "check price rejects what create rejects")
}

func TestCreateOrder_MaxQuantityAccepted(t *testing.T) {
	f := newFixture()

	o, err := f.svc.CreateOrder(context.Background(), CreateOrderRequest{
		ReservationID: "r1",
		Lines:         []LineRequest{{ProductID: "b", Quantity: MaxQuantity}},
	})
	require.NoError(t, err)
	assert.Equal(t, MaxQuantity, o.Lines[0].Quantity)
}

func TestCreateOrder_UnknownReservation(t *testing.T) {
	f := newFixture()

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderRequest{
		ReservationID: "nope",
		Lines:         []LineRequest{{ProductID: "a"}},
	})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "reservation", vErr.Field)
}

func TestCreateOrder_ReservationAlreadyHasOrder(t *testing.T) {
	f := newFixture()
	f.create(t, "r1")

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderRequest{
		ReservationID: "r1",
		Lines:         []LineRequest{{ProductID: "b"}},
	})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.ErrorIs(t, err, ErrReservationHasOrder)
}

func TestCreateOrder_Success(t *testing.T) {
	f := newFixture()

	o := f.create(t, "r1")

	assert.NotEmpty(t, o.OrderNumber)
	assert.Equal(t, StatusWaiting, o.Status)
	require.Len(t, o.Lines, 2)
	// a: 10.00/h * 2h * 1.24 = 24.80; b: 2.50 * 1.14 = 2.85, twice.
	assert.Equal(t, "24.80", o.LinePrice(&o.Lines[0]).StringFixed(2))
	assert.Equal(t, "2.85", o.UnitPrice(&o.Lines[1]).StringFixed(2))
	assert.Equal(t, "5.70", o.LinePrice(&o.Lines[1]).StringFixed(2))
	assert.Equal(t, "30.50", o.Price().StringFixed(2))
}

func TestCreateOrder_DefaultQuantity(t *testing.T) {
	f := newFixture()

	o, err := f.svc.CreateOrder(context.Background(), CreateOrderRequest{
		ReservationID: "r1",
		Lines:         []LineRequest{{ProductID: "b"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, o.Lines[0].Quantity)
}

func TestCheckPrice_MatchesPersistedPricing(t *testing.T) {
	f := newFixture()
	lines := []LineRequest{{ProductID: "a", Quantity: 1}, {ProductID: "b", Quantity: 2}}

	persisted, err := f.svc.CreateOrder(context.Background(), CreateOrderRequest{ReservationID: "r1", Lines: lines})
	require.NoError(t, err)

	dry, err := f.svc.CheckPrice(context.Background(), CheckPriceRequest{Lines: lines, Begin: begin, End: end})
	require.NoError(t, err)

	assert.True(t, persisted.Price().Equal(dry.Price()), "persisted %s, dry run %s", persisted.Price(), dry.Price())
	for i := range lines {
		assert.True(t, persisted.LinePrice(&persisted.Lines[i]).Equal(dry.LinePrice(&dry.Lines[i])))
	}
	assert.Equal(t, 1, f.orders.creates, "check price must not persist")
	assert.Empty(t, dry.OrderNumber)
}

func TestCheckPrice_InvertedSpanIsZeroForHourly(t *testing.T) {
	f := newFixture()

	dry, err := f.svc.CheckPrice(context.Background(), CheckPriceRequest{
		Lines: []LineRequest{{ProductID: "a", Quantity: 3}},
		Begin: end,
		End:   begin,
	})
	require.NoError(t, err)
	assert.True(t, decimal.Zero.Equal(dry.Price()))
}

func TestCheckPrice_EmptyLines(t *testing.T) {
	f := newFixture()

	_, err := f.svc.CheckPrice(context.Background(), CheckPriceRequest{Begin: begin, End: end})
	require.ErrorIs(t, err, ErrNoLines)
}

func TestGetOrder_Visibility(t *testing.T) {
	f := newFixture()
	o := f.create(t, "r1")
	ctx := context.Background()

	got, err := f.svc.GetOrder(ctx, Viewer{UserID: "u1"}, o.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, o.OrderNumber, got.OrderNumber)

	_, err = f.svc.GetOrder(ctx, Viewer{UserID: "u2"}, o.OrderNumber)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.GetOrder(ctx, Viewer{}, o.OrderNumber)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.GetOrder(ctx, Viewer{All: true}, o.OrderNumber)
	require.NoError(t, err)

	_, err = f.svc.GetOrder(ctx, Viewer{All: true}, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListOrders_Scoped(t *testing.T) {
	f := newFixture()
	f.create(t, "r1")
	f.create(t, "r2")
	ctx := context.Background()

	mine, err := f.svc.ListOrders(ctx, Viewer{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "r1", mine[0].ReservationID)

	all, err := f.svc.ListOrders(ctx, Viewer{All: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	none, err := f.svc.ListOrders(ctx, Viewer{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTransition_ConfirmIsIdempotent(t *testing.T) {
	f := newFixture()
	o := f.create(t, "r1")
	ctx := context.Background()

	outcome, err := f.svc.Transition(ctx, o.OrderNumber, StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)

	outcome, err = f.svc.Transition(ctx, o.OrderNumber, StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, NoOp, outcome)

	assert.Equal(t, StatusConfirmed, f.orders.status(t, o.OrderNumber))
	require.Len(t, f.pub.changes, 1, "duplicates must not re-trigger side effects")
	assert.Equal(t, StatusChange{
		OrderNumber:   o.OrderNumber,
		ReservationID: "r1",
		From:          StatusWaiting,
		To:            StatusConfirmed,
		At:            f.now,
	}, f.pub.changes[0])
}

func TestTransition_SettledNeverFlips(t *testing.T) {
	tests := []struct {
		settled Status
		target  Status
	}{
		{StatusConfirmed, StatusRejected},
		{StatusRejected, StatusConfirmed},
		{StatusExpired, StatusConfirmed},
		{StatusConfirmed, StatusWaiting},
	}
	for _, tt := range tests {
		t.Run(string(tt.settled)+"->"+string(tt.target), func(t *testing.T) {
			f := newFixture()
			o := f.create(t, "r1")
			ctx := context.Background()

			_, err := f.svc.Transition(ctx, o.OrderNumber, tt.settled)
			require.NoError(t, err)

			outcome, err := f.svc.Transition(ctx, o.OrderNumber, tt.target)
			require.NoError(t, err)
			assert.Equal(t, Illegal, outcome)
			assert.Equal(t, tt.settled, f.orders.status(t, o.OrderNumber))
		})
	}
}

func TestTransition_NotFound(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Transition(context.Background(), "missing", StatusConfirmed)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTransition_PublishErrorDoesNotFail(t *testing.T) {
	f := newFixture()
	f.pub.err = errors.New("broker down")
	o := f.create(t, "r1")

	outcome, err := f.svc.Transition(context.Background(), o.OrderNumber, StatusRejected)
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)
}

func TestTransition_ConcurrentCallbacks(t *testing.T) {
	f := newFixture()
	o := f.create(t, "r1")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[Outcome]int{}
	)
	for i := range 20 {
		target := StatusConfirmed
		if i%2 == 1 {
			target = StatusRejected
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := f.svc.Transition(context.Background(), o.OrderNumber, target)
			assert.NoError(t, err)
			mu.Lock()
			outcomes[outcome]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, outcomes[Applied], "exactly one callback wins")
	assert.Len(t, f.pub.changes, 1)
	final := f.orders.status(t, o.OrderNumber)
	assert.Equal(t, f.pub.changes[0].To, final)
}

func TestDiscard_FreesReservation(t *testing.T) {
	f := newFixture()
	o := f.create(t, "r1")

	require.NoError(t, f.svc.Discard(context.Background(), o.OrderNumber))

	_, err := f.svc.GetOrder(context.Background(), Viewer{All: true}, o.OrderNumber)
	require.ErrorIs(t, err, ErrNotFound)

	again := f.create(t, "r1")
	assert.NotEqual(t, o.OrderNumber, again.OrderNumber)
}

func TestDiscard_KeepsSettledOrder(t *testing.T) {
	f := newFixture()
	o := f.create(t, "r1")
	_, err := f.svc.Transition(context.Background(), o.OrderNumber, StatusConfirmed)
	require.NoError(t, err)

	err = f.svc.Discard(context.Background(), o.OrderNumber)

	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, StatusConfirmed, f.orders.status(t, o.OrderNumber))
}

func TestExpireStale(t *testing.T) {
	f := newFixture()
	old := f.create(t, "r1")
	settled := f.create(t, "r2")
	ctx := context.Background()

	_, err := f.svc.Transition(ctx, settled.OrderNumber, StatusConfirmed)
	require.NoError(t, err)

	n, err := f.svc.ExpireStale(ctx, f.now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, StatusExpired, f.orders.status(t, old.OrderNumber))
	assert.Equal(t, StatusConfirmed, f.orders.status(t, settled.OrderNumber))

	// A late success callback cannot resurrect an expired order.
	outcome, err := f.svc.Transition(ctx, old.OrderNumber, StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, Illegal, outcome)
}

func TestTransition_ConfirmAfterExpiryLoggedAsError(t *testing.T) {
	f := newFixture()
	o := f.create(t, "r1")
	core, logs := observer.New(zapcore.DebugLevel)
	ctx := zctx.Base(context.Background(), zap.New(core))

	_, err := f.svc.Transition(ctx, o.OrderNumber, StatusExpired)
	require.NoError(t, err)
	outcome, err := f.svc.Transition(ctx, o.OrderNumber, StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, Illegal, outcome)

	errs := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "expired order")

	// Other illegal flips stay warnings.
	_, err = f.svc.Transition(ctx, o.OrderNumber, StatusRejected)
	require.NoError(t, err)
	assert.Len(t, logs.FilterLevelExact(zapcore.ErrorLevel).All(), 1)
	assert.NotEmpty(t, logs.FilterLevelExact(zapcore.WarnLevel).All())
}

func TestExpireStale_NothingOldEnough(t *testing.T) {
	f := newFixture()
	f.create(t, "r1")

	n, err := f.svc.ExpireStale(context.Background(), f.now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunExpiry_StopsOnCancel(t *testing.T) {
	f := newFixture()
	o := f.create(t, "r1")
	f.now = f.now.Add(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.svc.RunExpiry(ctx, time.Hour, 30*time.Minute)
	}()

	require.Eventually(t, func() bool {
		return f.orders.status(t, o.OrderNumber) == StatusExpired
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("RunExpiry did not stop")
	}
}
