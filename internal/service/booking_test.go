package service

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking/internal/database/dbtest"
	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/payment"
	"github.com/iliyamo/cinema-booking/internal/queue"
	"github.com/iliyamo/cinema-booking/internal/repository"
)

func validationCode(t *testing.T, err error) string {
	t.Helper()
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	return ve.Code
}

func TestCreateOrder_HappyPath(t *testing.T) {
	f := newFixture(t)
	a1, a2 := f.seats[0], f.seats[1]

	sum := f.order(t, 1, a1, a2)
	assert.True(t, strings.HasPrefix(sum.OrderCode, "ORD-"))
	assert.Equal(t, model.OrderPending, sum.Status)
	assert.Equal(t, int64(200_000), sum.Subtotal)
	assert.Equal(t, int64(200_000), sum.TotalAmount)
	assert.Equal(t, testStart.Add(10*time.Minute), sum.BookingExpiresAt)

	assert.Equal(t, model.SeatSold, f.seatStatus(t, a1))
	assert.Equal(t, model.SeatSold, f.seatStatus(t, a2))

	o, err := f.booking.GetOrder(context.Background(), 1, sum.OrderCode)
	require.NoError(t, err)
	require.Len(t, o.Items, 2)
	assert.ElementsMatch(t, []uint64{a1, a2}, o.SeatIDs())
	assert.Empty(t, o.Tickets)
}

func TestCreateOrder_WithAddons(t *testing.T) {
	f := newFixture(t)
	f.hold(t, 1, f.seats[0])
	sum, err := f.booking.CreateOrder(context.Background(), CreateOrderRequest{
		UserID: 1, ShowtimeID: f.showID,
		Seats:  priced(90_000, f.seats[0]),
		Addons: []AddonItem{{AddonID: 4, Quantity: 2, Price: 35_000}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(160_000), sum.TotalAmount)
}

func TestCreateOrder_RollsBackWhenAHoldIsMissing(t *testing.T) {
	f := newFixture(t)
	a1, a2 := f.seats[0], f.seats[1]
	f.hold(t, 1, a1)

	_, err := f.booking.CreateOrder(context.Background(), CreateOrderRequest{
		UserID: 1, ShowtimeID: f.showID, Seats: priced(100_000, a1, a2),
	})
	assert.ErrorIs(t, err, ErrHoldNotFound)
	assert.Equal(t, 0, f.count(t, `SELECT COUNT(*) FROM orders`))
	assert.Equal(t, 0, f.count(t, `SELECT COUNT(*) FROM order_items`))
	assert.Equal(t, model.SeatHeld, f.seatStatus(t, a1))
}

func TestCreateOrder_ExpiredHold(t *testing.T) {
	f := newFixture(t)
	f.hold(t, 1, f.seats[0])
	f.clock.Advance(10*time.Minute + time.Second)

	_, err := f.booking.CreateOrder(context.Background(), CreateOrderRequest{
		UserID: 1, ShowtimeID: f.showID, Seats: priced(100_000, f.seats[0]),
	})
	assert.ErrorIs(t, err, ErrExpired)
}

func TestCreateOrder_RejectsBadItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.hold(t, 1, f.seats[0])

	_, err := f.booking.CreateOrder(ctx, CreateOrderRequest{UserID: 1, ShowtimeID: f.showID})
	assert.Equal(t, CodeInvalidSeats, validationCode(t, err))

	_, err = f.booking.CreateOrder(ctx, CreateOrderRequest{
		UserID: 1, ShowtimeID: f.showID, Seats: []PricedSeat{{f.seats[0], 1}, {f.seats[0], 1}},
	})
	assert.Equal(t, CodeInvalidSeats, validationCode(t, err))

	_, err = f.booking.CreateOrder(ctx, CreateOrderRequest{
		UserID: 1, ShowtimeID: f.showID, Seats: priced(1, f.seats[0]),
		Addons: []AddonItem{{AddonID: 1, Quantity: -1, Price: 1}},
	})
	assert.Equal(t, CodeInvalidItems, validationCode(t, err))

	_, err = f.booking.CreateOrder(ctx, CreateOrderRequest{
		UserID: 1, ShowtimeID: f.showID, Seats: priced(1<<62, f.seats[0]),
		Addons: []AddonItem{{AddonID: 1, Quantity: 1, Price: 1 << 62}, {AddonID: 2, Quantity: 1, Price: 1 << 62}},
	})
	assert.Equal(t, CodeInvalidItems, validationCode(t, err), "an overflowing total is rejected")
	assert.Zero(t, f.count(t, `SELECT COUNT(*) FROM orders`))
}

func TestCreateOrder_LoyaltyDiscountIsCapped(t *testing.T) {
	f := newFixture(t)
	dbtest.LoyaltyAccount(t, f.db, 1, 500, model.DefaultTier, 0, testStart.Year())
	f.hold(t, 1, f.seats[0], f.seats[1])

	sum, err := f.booking.CreateOrder(context.Background(), CreateOrderRequest{
		UserID: 1, ShowtimeID: f.showID, Seats: priced(100_000, f.seats[0], f.seats[1]), LoyaltyPoints: 150,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100_000), sum.LoyaltyDiscount)
	assert.Equal(t, int64(100), sum.PointsUsed)
	assert.Equal(t, int64(100_000), sum.TotalAmount)
	assert.Equal(t, int64(400), f.account(t, 1).Points, "redeemed points are reserved with the order")
}

func TestLoyaltyPoints_CannotBeRedeemedTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dbtest.LoyaltyAccount(t, f.db, 1, 100, model.DefaultTier, 0, testStart.Year())
	_, err := f.db.ExecContext(ctx, `UPDATE loyalty_tiers SET earn_rate_bp = 0`)
	require.NoError(t, err)

	redeem := func(seat uint64) (OrderSummary, error) {
		f.hold(t, 1, seat)
		return f.booking.CreateOrder(ctx, CreateOrderRequest{
			UserID: 1, ShowtimeID: f.showID, Seats: priced(200_000, seat), LoyaltyPoints: 100,
		})
	}

	first, err := redeem(f.seats[0])
	require.NoError(t, err)
	assert.Equal(t, int64(100), first.PointsUsed)
	assert.Equal(t, int64(0), f.account(t, 1).Points)

	_, err = redeem(f.seats[1])
	assert.Equal(t, CodeInsufficientPoints, validationCode(t, err), "the same points back one order only")

	_, err = f.reconciler.ProcessGatewayCallback(ctx, signedCallback(first.OrderCode, first.TotalAmount, payment.ResponseSuccess, "GW-P1"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), f.account(t, 1).Points)

	_, err = f.reconciler.Refund(ctx, first.OrderID, "customer request")
	require.NoError(t, err)
	assert.Equal(t, int64(100), f.account(t, 1).Points, "pay then refund nets to zero")

	// a cancelled order gives its points back
	second, err := redeem(f.seats[1])
	require.NoError(t, err)
	assert.Equal(t, int64(0), f.account(t, 1).Points)
	_, err = f.booking.CancelOrder(ctx, 1, second.OrderCode)
	require.NoError(t, err)
	assert.Equal(t, int64(100), f.account(t, 1).Points)

	// so does one that lapses
	_, err = redeem(f.seats[2])
	require.NoError(t, err)
	f.clock.Advance(11 * time.Minute)
	rep, err := f.sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.CancelledOrders)
	assert.Equal(t, int64(100), f.account(t, 1).Points)

	txs, err := repository.NewLoyaltyRepo(f.db).Transactions(ctx, second.OrderID)
	require.NoError(t, err)
	assert.Equal(t, map[model.LoyaltyTxKind]int64{model.LoyaltyRedeem: 100, model.LoyaltyRestore: 100}, txs)
}

func TestCreateOrder_InsufficientPoints(t *testing.T) {
	f := newFixture(t)
	dbtest.LoyaltyAccount(t, f.db, 1, 10, model.DefaultTier, 0, testStart.Year())
	f.hold(t, 1, f.seats[0])

	_, err := f.booking.CreateOrder(context.Background(), CreateOrderRequest{
		UserID: 1, ShowtimeID: f.showID, Seats: priced(100_000, f.seats[0]), LoyaltyPoints: 11,
	})
	assert.Equal(t, CodeInsufficientPoints, validationCode(t, err))

	_, err = f.booking.CreateOrder(context.Background(), CreateOrderRequest{
		UserID: 2, ShowtimeID: f.showID, Seats: priced(100_000, f.seats[0]), LoyaltyPoints: 1,
	})
	assert.Equal(t, CodeInsufficientPoints, validationCode(t, err), "no account means no points")
}

func springPromo() dbtest.Promotion {
	return dbtest.Promotion{
		Code: "SPRING", Type: string(model.DiscountPercentage), Value: 10, MaxDiscount: 15_000,
		UsageLimit: 1, StartsAt: testStart.Add(-24 * time.Hour), EndsAt: testStart.Add(24 * time.Hour),
	}
}

func TestCreateOrder_PromotionExhaustion(t *testing.T) {
	f := newFixture(t)
	dbtest.InsertPromotion(t, f.db, springPromo())
	ctx := context.Background()

	f.hold(t, 1, f.seats[0], f.seats[1])
	first, err := f.booking.CreateOrder(ctx, CreateOrderRequest{
		UserID: 1, ShowtimeID: f.showID, Seats: priced(100_000, f.seats[0], f.seats[1]), PromotionCode: "SPRING",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(15_000), first.PromotionDiscount, "10% capped at max_discount")
	assert.Equal(t, int64(185_000), first.TotalAmount)

	f.hold(t, 2, f.seats[2])
	_, err = f.booking.CreateOrder(ctx, CreateOrderRequest{
		UserID: 2, ShowtimeID: f.showID, Seats: priced(100_000, f.seats[2]), PromotionCode: "SPRING",
	})
	assert.Equal(t, CodePromotionExhausted, validationCode(t, err))
	assert.Equal(t, model.SeatHeld, f.seatStatus(t, f.seats[2]))

	// cancelling the first order gives the usage back
	_, err = f.booking.CancelOrder(ctx, 1, first.OrderCode)
	require.NoError(t, err)
	_, err = f.booking.CreateOrder(ctx, CreateOrderRequest{
		UserID: 2, ShowtimeID: f.showID, Seats: priced(100_000, f.seats[2]), PromotionCode: "SPRING",
	})
	require.NoError(t, err)
}

func TestCreateOrder_PromotionRules(t *testing.T) {
	f := newFixture(t)
	p := springPromo()
	p.UsageLimit, p.PerUserLimit, p.MinOrderAmount = 0, 1, 150_000
	dbtest.InsertPromotion(t, f.db, p)
	ctx := context.Background()

	f.hold(t, 1, f.seats[0], f.seats[1], f.seats[2])
	_, err := f.booking.CreateOrder(ctx, CreateOrderRequest{
		UserID: 1, ShowtimeID: f.showID, Seats: priced(100_000, f.seats[0]), PromotionCode: "SPRING",
	})
	assert.Equal(t, CodePromotionMinAmount, validationCode(t, err))

	_, err = f.booking.CreateOrder(ctx, CreateOrderRequest{
		UserID: 1, ShowtimeID: f.showID, Seats: priced(100_000, f.seats[0], f.seats[1]), PromotionCode: "SPRING",
	})
	require.NoError(t, err)

	_, err = f.booking.CreateOrder(ctx, CreateOrderRequest{
		UserID: 1, ShowtimeID: f.showID, Seats: priced(200_000, f.seats[2]), PromotionCode: "SPRING",
	})
	assert.Equal(t, CodePromotionUserLimit, validationCode(t, err))

	_, err = f.booking.CreateOrder(ctx, CreateOrderRequest{
		UserID: 1, ShowtimeID: f.showID, Seats: priced(200_000, f.seats[2]), PromotionCode: "NOPE",
	})
	assert.Equal(t, CodePromotionNotFound, validationCode(t, err))
}

func TestGetOrder_OwnerOnly(t *testing.T) {
	f := newFixture(t)
	sum := f.order(t, 1, f.seats[0])

	_, err := f.booking.GetOrder(context.Background(), 2, sum.OrderCode)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.booking.GetOrder(context.Background(), 1, "ORD-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sum := f.order(t, 1, f.seats[0], f.seats[1])

	_, err := f.booking.CancelOrder(ctx, 2, sum.OrderCode)
	assert.ErrorIs(t, err, ErrForbidden)

	o, err := f.booking.CancelOrder(ctx, 1, sum.OrderCode)
	require.NoError(t, err)
	assert.Equal(t, model.OrderCancelled, o.Status)
	assert.Equal(t, model.SeatFree, f.seatStatus(t, f.seats[0]))
	assert.Equal(t, model.SeatFree, f.seatStatus(t, f.seats[1]))

	_, err = f.booking.CancelOrder(ctx, 1, sum.OrderCode)
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Contains(t, f.events.types(), queue.EventOrderCancelled)
}

func TestPaymentURL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sum := f.order(t, 1, f.seats[0])

	raw, err := f.booking.PaymentURL(ctx, 1, sum.OrderCode, "203.0.113.7")
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, sum.OrderCode, q.Get(payment.ParamTxnRef))
	assert.Equal(t, "100000", q.Get(payment.ParamAmount))
	assert.Equal(t, "203.0.113.7", q.Get(payment.ParamClientIP))
	assert.Equal(t, payment.Sign(testGatewaySecret, q), q.Get(payment.ParamSecureHash))

	_, err = f.booking.PaymentURL(ctx, 2, sum.OrderCode, "203.0.113.7")
	assert.ErrorIs(t, err, ErrForbidden)

	f.clock.Advance(11 * time.Minute)
	_, err = f.booking.PaymentURL(ctx, 1, sum.OrderCode, "203.0.113.7")
	assert.ErrorIs(t, err, ErrOrderExpired)
}
