package service

import (
	"context"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking/internal/clock"
	"github.com/iliyamo/cinema-booking/internal/database"
	"github.com/iliyamo/cinema-booking/internal/database/dbtest"
	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/payment"
	"github.com/iliyamo/cinema-booking/internal/queue"
	"github.com/iliyamo/cinema-booking/internal/repository"
)

const testGatewaySecret = "gateway-test-secret"

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.BookingEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.BookingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []queue.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]queue.EventType, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	db         *database.DB
	clock      *clock.Mock
	events     *recordingPublisher
	ledger     *Ledger
	booking    *BookingService
	reconciler *Reconciler
	sweeper    *Sweeper
	loyalty    *LoyaltyService
	showID     uint64
	seats      []uint64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.New(t)
	clk := clock.NewMock(testStart)
	events := &recordingPublisher{}
	gw := payment.New(payment.Config{
		BaseURL:    "https://pay.example.test/checkout",
		MerchantID: "CINEMA01",
		Secret:     testGatewaySecret,
		ReturnURL:  "https://cinema.example.test/v1/payments/callback",
	})
	ledger := NewLedger(db, clk, 10*time.Minute)
	showID, seats := dbtest.Showtime(t, db, 1, 2, 5)
	return &fixture{
		db:         db,
		clock:      clk,
		events:     events,
		ledger:     ledger,
		booking:    NewBookingService(db, ledger, gw, events, clk, BookingOptions{Horizon: 10 * time.Minute, PointValue: 1000}),
		reconciler: NewReconciler(db, ledger, gw, events, clk, []byte("fingerprint-key")),
		sweeper:    NewSweeper(db, ledger, events, nil, clk, time.Minute),
		loyalty:    NewLoyaltyService(db, clk),
		showID:     showID,
		seats:      seats,
	}
}

func (f *fixture) hold(t *testing.T, holder uint64, seats ...uint64) HoldResult {
	t.Helper()
	res, err := f.ledger.Hold(context.Background(), HoldRequest{ShowtimeID: f.showID, SeatIDs: seats, HolderID: holder})
	require.NoError(t, err)
	return res
}

func priced(price int64, seats ...uint64) []PricedSeat {
	out := make([]PricedSeat, len(seats))
	for i, s := range seats {
		out[i] = PricedSeat{SeatID: s, Price: price}
	}
	return out
}

// order holds the seats for user and creates an order priced 100,000 per seat.
func (f *fixture) order(t *testing.T, user uint64, seats ...uint64) OrderSummary {
	t.Helper()
	f.hold(t, user, seats...)
	sum, err := f.booking.CreateOrder(context.Background(), CreateOrderRequest{
		UserID: user, ShowtimeID: f.showID, Seats: priced(100_000, seats...),
	})
	require.NoError(t, err)
	return sum
}

func (f *fixture) orderByCode(t *testing.T, code string) model.Order {
	t.Helper()
	o, err := repository.NewOrderRepo(f.db).GetByCode(context.Background(), code)
	require.NoError(t, err)
	return o
}

func (f *fixture) account(t *testing.T, user uint64) model.LoyaltyAccount {
	t.Helper()
	acc, err := repository.NewLoyaltyRepo(f.db).Get(context.Background(), user)
	require.NoError(t, err)
	return acc
}

func (f *fixture) seatStatus(t *testing.T, seatID uint64) model.SeatStatus {
	t.Helper()
	seats, err := f.ledger.Availability(context.Background(), f.showID)
	require.NoError(t, err)
	for _, s := range seats {
		if s.ID == seatID {
			return s.Status
		}
	}
	t.Fatalf("seat %d not in showtime", seatID)
	return ""
}

func (f *fixture) count(t *testing.T, query string, args ...interface{}) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.GetContext(context.Background(), &n, query, args...))
	return n
}

func signedCallback(code string, amount int64, response, txnNo string) url.Values {
	v := url.Values{}
	v.Set(payment.ParamTxnRef, code)
	v.Set(payment.ParamAmount, strconv.FormatInt(amount, 10))
	v.Set(payment.ParamResponseCode, response)
	v.Set(payment.ParamTransactionNo, txnNo)
	v.Set(payment.ParamSecureHash, payment.Sign(testGatewaySecret, v))
	return v
}
