package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking/internal/database/dbtest"
	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/payment"
	"github.com/iliyamo/cinema-booking/internal/queue"
	"github.com/iliyamo/cinema-booking/internal/repository"
	"github.com/iliyamo/cinema-booking/internal/utils"
)

func TestCallback_HappyPathAndReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sum := f.order(t, 1, f.seats[0], f.seats[1])
	cb := signedCallback(sum.OrderCode, 200_000, payment.ResponseSuccess, "GW-1001")

	res, err := f.reconciler.ProcessGatewayCallback(ctx, cb)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.Duplicate)
	assert.Equal(t, sum.OrderID, res.OrderID)

	o, err := f.booking.GetOrder(ctx, 1, sum.OrderCode)
	require.NoError(t, err)
	assert.Equal(t, model.OrderPaid, o.Status)
	require.NotNil(t, o.PaidAt)
	assert.Equal(t, int64(200), o.PointsEarned, "floor(200000/1000 × 1.00)")
	require.Len(t, o.Tickets, 2)
	for _, tk := range o.Tickets {
		assert.Equal(t, model.TicketIssued, tk.Status)
		assert.Equal(t, int64(100_000), tk.Price)
		want, err := utils.Fingerprint([]byte("fingerprint-key"), tk.ID, sum.OrderCode, f.showID, tk.SeatID)
		require.NoError(t, err)
		assert.Equal(t, want, tk.Fingerprint)
	}
	assert.NotEqual(t, o.Tickets[0].Fingerprint, o.Tickets[1].Fingerprint)

	acc := f.account(t, 1)
	assert.Equal(t, int64(200), acc.Points)
	assert.Equal(t, int64(200_000), acc.YearlySpent)

	replay, err := f.reconciler.ProcessGatewayCallback(ctx, cb)
	require.NoError(t, err)
	assert.True(t, replay.Success)
	assert.True(t, replay.Duplicate)
	assert.Equal(t, 2, f.count(t, `SELECT COUNT(*) FROM tickets WHERE order_id = ?`, sum.OrderID))
	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM payments WHERE order_id = ?`, sum.OrderID))
	assert.Equal(t, int64(200), f.account(t, 1).Points, "points credited once")
	assert.Equal(t, []queue.EventType{queue.EventOrderPaid}, f.events.types())
}

func TestCallback_SettledOrdersIgnoreAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	paid := f.order(t, 1, f.seats[0])
	_, err := f.reconciler.ProcessGatewayCallback(ctx, signedCallback(paid.OrderCode, 100_000, payment.ResponseSuccess, "GW-A"))
	require.NoError(t, err)
	res, err := f.reconciler.ProcessGatewayCallback(ctx, signedCallback(paid.OrderCode, 1, payment.ResponseSuccess, "GW-A"))
	require.NoError(t, err, "a paid order answers replays idempotently")
	assert.True(t, res.Success)
	assert.True(t, res.Duplicate)

	declined := f.order(t, 2, f.seats[1])
	_, err = f.reconciler.ProcessGatewayCallback(ctx, signedCallback(declined.OrderCode, 100_000, "24", "GW-B"))
	require.NoError(t, err)
	res, err = f.reconciler.ProcessGatewayCallback(ctx, signedCallback(declined.OrderCode, 5, "24", "GW-B"))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.True(t, res.Duplicate)
	assert.Equal(t, reasonNotPending, res.Reason)

	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM payments WHERE order_id = ?`, paid.OrderID))
	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM payments WHERE order_id = ?`, declined.OrderID))
}

func TestCallback_RejectsForgeryWithoutWriting(t *testing.T) {
	f := newFixture(t)
	sum := f.order(t, 1, f.seats[0])

	cb := signedCallback(sum.OrderCode, 100_000, payment.ResponseSuccess, "GW-1")
	cb.Set(payment.ParamAmount, "1")
	_, err := f.reconciler.ProcessGatewayCallback(context.Background(), cb)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = f.reconciler.ProcessGatewayCallback(context.Background(),
		signedCallback(sum.OrderCode, 1, payment.ResponseSuccess, "GW-1"))
	assert.ErrorIs(t, err, ErrAmountMismatch)

	_, err = f.reconciler.ProcessGatewayCallback(context.Background(),
		signedCallback("ORD-unknown", 1, payment.ResponseSuccess, "GW-1"))
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, model.OrderPending, f.orderByCode(t, sum.OrderCode).Status)
	assert.Equal(t, 0, f.count(t, `SELECT COUNT(*) FROM payments`))
}

func TestCallback_DeclineCancelsAndReleases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sum := f.order(t, 1, f.seats[0])
	cb := signedCallback(sum.OrderCode, 100_000, "24", "GW-2")

	res, err := f.reconciler.ProcessGatewayCallback(ctx, cb)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, model.OrderCancelled, f.orderByCode(t, sum.OrderCode).Status)
	assert.Equal(t, model.SeatFree, f.seatStatus(t, f.seats[0]))

	p, err := repository.NewPaymentRepo(f.db).LatestByOrder(ctx, sum.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentFailed, p.Status)

	replay, err := f.reconciler.ProcessGatewayCallback(ctx, cb)
	require.NoError(t, err)
	assert.False(t, replay.Success)
	assert.True(t, replay.Duplicate)
	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM payments`))
}

func TestCallback_LateSuccessAfterTimeout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sum := f.order(t, 1, f.seats[0], f.seats[1])

	f.clock.Advance(11 * time.Minute)
	rep, err := f.sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.CancelledOrders)
	assert.Equal(t, model.SeatFree, f.seatStatus(t, f.seats[0]))

	res, err := f.reconciler.ProcessGatewayCallback(ctx, signedCallback(sum.OrderCode, 200_000, payment.ResponseSuccess, "GW-3"))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "order is not pending", res.Reason)
	assert.Equal(t, model.OrderCancelled, f.orderByCode(t, sum.OrderCode).Status)
	assert.Equal(t, 0, f.count(t, `SELECT COUNT(*) FROM tickets`))
}

func TestRefund_ReversesLoyalty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dbtest.LoyaltyAccount(t, f.db, 1, 300, model.DefaultTier, 4_950_000, testStart.Year())

	f.hold(t, 1, f.seats[0])
	sum, err := f.booking.CreateOrder(ctx, CreateOrderRequest{
		UserID: 1, ShowtimeID: f.showID, Seats: priced(200_000, f.seats[0]), LoyaltyPoints: 50,
	})
	require.NoError(t, err)
	require.Equal(t, int64(150_000), sum.TotalAmount)

	_, err = f.reconciler.ProcessGatewayCallback(ctx, signedCallback(sum.OrderCode, 150_000, payment.ResponseSuccess, "GW-4"))
	require.NoError(t, err)

	paid := f.account(t, 1)
	assert.Equal(t, int64(300-50+150), paid.Points)
	assert.Equal(t, int64(5_100_000), paid.YearlySpent)
	assert.Equal(t, "SILVER", paid.Tier, "yearly spend crossed the SILVER threshold")

	o, err := f.reconciler.Refund(ctx, sum.OrderID, "customer request")
	require.NoError(t, err)
	assert.Equal(t, model.OrderRefunded, o.Status)

	refunded := f.account(t, 1)
	assert.Equal(t, int64(300), refunded.Points, "pay then refund nets to zero")
	assert.Equal(t, int64(4_950_000), refunded.YearlySpent)
	assert.Equal(t, "SILVER", refunded.Tier, "refunds never downgrade")

	tickets, err := repository.NewTicketRepo(f.db).ListByOrder(ctx, sum.OrderID)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, model.TicketRefunded, tickets[0].Status)
	p, err := repository.NewPaymentRepo(f.db).LatestByOrder(ctx, sum.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentRefunded, p.Status)
	assert.Equal(t, model.SeatFree, f.seatStatus(t, f.seats[0]))

	txs, err := repository.NewLoyaltyRepo(f.db).Transactions(ctx, sum.OrderID)
	require.NoError(t, err)
	assert.Equal(t, map[model.LoyaltyTxKind]int64{
		model.LoyaltyRedeem: 50, model.LoyaltyEarn: 150, model.LoyaltyRestore: 50, model.LoyaltyRevoke: 150,
	}, txs)

	_, err = f.reconciler.Refund(ctx, sum.OrderID, "again")
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, []queue.EventType{queue.EventOrderPaid, queue.EventOrderRefunded}, f.events.types())
}

func TestRefund_ClampsSpentPoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sum := f.order(t, 1, f.seats[0])
	_, err := f.reconciler.ProcessGatewayCallback(ctx, signedCallback(sum.OrderCode, 100_000, payment.ResponseSuccess, "GW-5"))
	require.NoError(t, err)

	// the earned points were already spent elsewhere
	_, err = f.db.ExecContext(ctx, `UPDATE loyalty_accounts SET points = 40 WHERE user_id = 1`)
	require.NoError(t, err)

	_, err = f.reconciler.Refund(ctx, sum.OrderID, "duplicate purchase")
	require.NoError(t, err)
	assert.Equal(t, int64(0), f.account(t, 1).Points)
}

func TestRefund_OnlyFromPaid(t *testing.T) {
	f := newFixture(t)
	sum := f.order(t, 1, f.seats[0])

	_, err := f.reconciler.Refund(context.Background(), sum.OrderID, "x")
	assert.ErrorIs(t, err, ErrIllegalTransition)
	_, err = f.reconciler.Refund(context.Background(), 9999, "x")
	assert.ErrorIs(t, err, ErrNotFound)
}
