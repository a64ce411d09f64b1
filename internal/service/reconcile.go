package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/iliyamo/cinema-booking/internal/clock"
	"github.com/iliyamo/cinema-booking/internal/database"
	"github.com/iliyamo/cinema-booking/internal/logging"
	"github.com/iliyamo/cinema-booking/internal/metrics"
	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/payment"
	"github.com/iliyamo/cinema-booking/internal/queue"
	"github.com/iliyamo/cinema-booking/internal/repository"
	"github.com/iliyamo/cinema-booking/internal/utils"
)

const reasonNotPending = "order is not pending"

// CallbackResult is what the gateway's return page and webhook receive.
type CallbackResult struct {
	Success   bool   `json:"success"`
	OrderCode string `json:"order_code,omitempty"`
	OrderID   uint64 `json:"order_id,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Reconciler applies verified gateway outcomes to orders and handles
// refunds.  Every outcome is one transaction under the order's row lock.
type Reconciler struct {
	db             *database.DB
	orders         *repository.OrderRepo
	tickets        *repository.TicketRepo
	payments       *repository.PaymentRepo
	loyalty        *repository.LoyaltyRepo
	ledger         *Ledger
	cancels        *canceller
	gateway        *payment.Gateway
	events         queue.Publisher
	clock          clock.Clock
	fingerprintKey []byte
}

func NewReconciler(db *database.DB, ledger *Ledger, gw *payment.Gateway, events queue.Publisher, clk clock.Clock, fingerprintKey []byte) *Reconciler {
	if events == nil {
		events = queue.NopPublisher{}
	}
	return &Reconciler{
		db:             db,
		orders:         repository.NewOrderRepo(db),
		tickets:        repository.NewTicketRepo(db),
		payments:       repository.NewPaymentRepo(db),
		loyalty:        repository.NewLoyaltyRepo(db),
		ledger:         ledger,
		cancels:        newCanceller(db, ledger, clk),
		gateway:        gw,
		events:         events,
		clock:          clk,
		fingerprintKey: fingerprintKey,
	}
}

// ProcessGatewayCallback verifies a callback and applies it.  Replays return
// the first outcome without writing anything.
func (r *Reconciler) ProcessGatewayCallback(ctx context.Context, params url.Values) (res CallbackResult, err error) {
	ctx, span := tracer.Start(ctx, "Reconciler.ProcessGatewayCallback")
	defer func() { endSpan(span, err) }()
	log := logging.FromContext(ctx)

	cb, err := r.gateway.Verify(params)
	if err != nil {
		outcome := "invalid_signature"
		if errors.Is(err, payment.ErrMalformedCallback) {
			outcome = "malformed"
		}
		metrics.Callbacks.WithLabelValues(outcome).Inc()
		log.WithError(err).WithField("txn_ref", params.Get(payment.ParamTxnRef)).Warn("rejected gateway callback")
		return CallbackResult{}, err
	}
	span.SetAttributes(attribute.String("order_code", cb.TxnRef), attribute.String("response_code", cb.ResponseCode))

	var ev *queue.BookingEvent
	err = r.db.WithTx(ctx, func(ctx context.Context) error {
		ev = nil
		o, err := r.orders.GetByCodeForUpdate(ctx, cb.TxnRef)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		res = CallbackResult{OrderCode: o.Code, OrderID: o.ID}

		// settled orders answer replays with their outcome, whatever the amount
		switch o.Status {
		case model.OrderPaid:
			res.Success, res.Duplicate = true, true
			return nil
		case model.OrderCancelled, model.OrderRefunded:
			res.Reason = reasonNotPending
			res.Duplicate, err = r.replayedDecline(ctx, o.ID, cb)
			if err != nil {
				return err
			}
			if cb.Success() && !res.Duplicate {
				log.WithFields(logrus.Fields{"order_code": o.Code, "status": o.Status}).
					Warn("successful payment for an order that is no longer pending")
			}
			return nil
		}

		if cb.Amount != o.TotalAmount {
			return fmt.Errorf("%w: got %d, order %s totals %d", ErrAmountMismatch, cb.Amount, o.Code, o.TotalAmount)
		}

		seatIDs, err := r.cancels.seatIDs(ctx, o.ID)
		if err != nil {
			return err
		}
		if cb.Success() {
			if o, err = r.markPaid(ctx, o, cb); err != nil {
				return err
			}
			res.Success = true
			e := orderEvent(queue.EventOrderPaid, o, seatIDs, "", r.clock.Now())
			ev = &e
			return nil
		}

		reason := "payment declined (" + cb.ResponseCode + ")"
		if o, err = r.cancels.cancel(ctx, o, reason, "payment_declined"); err != nil {
			return err
		}
		if err := r.recordPayment(ctx, o, cb, model.PaymentFailed); err != nil {
			return err
		}
		res.Reason = reason
		e := orderEvent(queue.EventOrderCancelled, o, seatIDs, reason, r.clock.Now())
		ev = &e
		return nil
	})

	outcome := "error"
	switch {
	case err != nil && errors.Is(err, ErrAmountMismatch):
		outcome = "amount_mismatch"
		log.WithError(err).Warn("rejected gateway callback")
	case err != nil && errors.Is(err, ErrNotFound):
		outcome = "unknown_order"
	case err != nil:
	case res.Duplicate:
		outcome = "duplicate"
	case res.Success:
		outcome = "paid"
	case res.Reason == reasonNotPending:
		outcome = "not_pending"
	default:
		outcome = "declined"
	}
	metrics.Callbacks.WithLabelValues(outcome).Inc()
	if err != nil {
		return CallbackResult{}, err
	}

	log.WithFields(logrus.Fields{"order_code": res.OrderCode, "outcome": outcome}).Info("gateway callback processed")
	if ev != nil {
		publish(ctx, r.events, *ev)
	}
	return res, nil
}

// replayedDecline reports whether this callback already cancelled the order.
func (r *Reconciler) replayedDecline(ctx context.Context, orderID uint64, cb payment.Callback) (bool, error) {
	p, err := r.payments.LatestByOrder(ctx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.Status == model.PaymentFailed && p.ResponseCode == cb.ResponseCode && p.TransactionNo == cb.TransactionNo, nil
}

// markPaid applies a successful payment: order PAID, payment recorded,
// tickets minted, points earned, tier upgraded when the new
// yearly spend reaches a higher threshold.
func (r *Reconciler) markPaid(ctx context.Context, o model.Order, cb payment.Callback) (model.Order, error) {
	next, err := o.Status.Transition(model.OrderPaid)
	if err != nil {
		return model.Order{}, err
	}
	now := r.clock.Now()

	if err := r.loyalty.Ensure(ctx, o.UserID, now); err != nil {
		return model.Order{}, fmt.Errorf("ensure loyalty account: %w", err)
	}
	acc, err := r.loyalty.GetForUpdate(ctx, o.UserID)
	if err != nil {
		return model.Order{}, err
	}
	tiers, err := r.loyalty.Tiers(ctx)
	if err != nil {
		return model.Order{}, err
	}
	current := tierByName(tiers, acc.Tier)
	earned := earnedPoints(o.TotalAmount, current.EarnRateBP)

	n, err := r.orders.MarkPaid(ctx, o.ID, earned, now)
	if err != nil {
		return model.Order{}, err
	}
	if n == 0 {
		return model.Order{}, fmt.Errorf("%w: order %s changed concurrently", ErrIllegalTransition, o.Code)
	}
	if err := r.recordPayment(ctx, o, cb, model.PaymentSuccess); err != nil {
		return model.Order{}, err
	}
	if err := r.issueTickets(ctx, o, now); err != nil {
		return model.Order{}, err
	}

	if err := r.loyalty.ApplyPayment(ctx, o.UserID, earned, o.TotalAmount, now); err != nil {
		return model.Order{}, err
	}
	if err := r.loyalty.AddTransaction(ctx, o.UserID, o.ID, model.LoyaltyEarn, earned, now); err != nil {
		return model.Order{}, err
	}
	// tiers only move up here
	if target := tierFor(tiers, acc.YearlySpent+o.TotalAmount); target.Rank > current.Rank {
		if err := r.loyalty.SetTier(ctx, o.UserID, target.Name, now); err != nil {
			return model.Order{}, err
		}
		logging.FromContext(ctx).WithFields(logrus.Fields{"user_id": o.UserID, "tier": target.Name}).Info("loyalty tier upgraded")
	}

	metrics.OrderTransitions.WithLabelValues(string(next), "payment").Inc()
	o.Status = next
	o.PointsEarned = earned
	o.PaidAt = &now
	o.UpdatedAt = now
	return o, nil
}

func (r *Reconciler) issueTickets(ctx context.Context, o model.Order, now time.Time) error {
	items, err := r.orders.Items(ctx, o.ID)
	if err != nil {
		return err
	}
	var tickets []model.Ticket
	for _, it := range items {
		if it.Kind != model.ItemSeat || it.SeatID == nil {
			continue
		}
		id := uuid.NewString()
		fp, err := utils.Fingerprint(r.fingerprintKey, id, o.Code, o.ShowtimeID, *it.SeatID)
		if err != nil {
			return fmt.Errorf("fingerprint ticket: %w", err)
		}
		tickets = append(tickets, model.Ticket{
			ID:          id,
			OrderID:     o.ID,
			ShowtimeID:  o.ShowtimeID,
			SeatID:      *it.SeatID,
			Price:       it.UnitPrice,
			Status:      model.TicketIssued,
			Fingerprint: fp,
			CreatedAt:   now,
		})
	}
	return r.tickets.InsertBatch(ctx, tickets)
}

func (r *Reconciler) recordPayment(ctx context.Context, o model.Order, cb payment.Callback, status model.PaymentStatus) error {
	return r.payments.Insert(ctx, &model.Payment{
		OrderID:       o.ID,
		Provider:      r.gateway.Provider(),
		TxnRef:        cb.TxnRef,
		TransactionNo: cb.TransactionNo,
		Amount:        cb.Amount,
		ResponseCode:  cb.ResponseCode,
		Status:        status,
		RawPayload:    cb.Raw.Encode(),
		CreatedAt:     r.clock.Now(),
	})
}

// Refund reverses a PAID order: tickets and payment REFUNDED, loyalty
// effects undone with balances floored at zero, seats returned to sale.
// The loyalty tier is left as is.
func (r *Reconciler) Refund(ctx context.Context, orderID uint64, reason string) (o model.Order, err error) {
	ctx, span := tracer.Start(ctx, "Reconciler.Refund", trace.WithAttributes(attribute.Int64("order_id", int64(orderID))))
	defer func() { endSpan(span, err) }()

	var seatIDs []uint64
	err = r.db.WithTx(ctx, func(ctx context.Context) error {
		o, err = r.orders.GetByIDForUpdate(ctx, orderID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		next, err := o.Status.Transition(model.OrderRefunded)
		if err != nil {
			return err
		}
		now := r.clock.Now()

		n, err := r.orders.UpdateStatus(ctx, o.ID, model.OrderPaid, next, reason, now)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: order %s changed concurrently", ErrIllegalTransition, o.Code)
		}
		if _, err := r.tickets.UpdateStatusByOrder(ctx, o.ID, model.TicketIssued, model.TicketRefunded, now); err != nil {
			return err
		}
		if _, err := r.payments.MarkRefunded(ctx, o.ID, now); err != nil {
			return err
		}
		if err := r.loyalty.ReverseOrder(ctx, o.UserID, o.PointsUsed, o.PointsEarned, o.TotalAmount, now); err != nil {
			return err
		}
		if err := r.loyalty.AddTransaction(ctx, o.UserID, o.ID, model.LoyaltyRestore, o.PointsUsed, now); err != nil {
			return err
		}
		if err := r.loyalty.AddTransaction(ctx, o.UserID, o.ID, model.LoyaltyRevoke, o.PointsEarned, now); err != nil {
			return err
		}
		if seatIDs, err = r.cancels.seatIDs(ctx, o.ID); err != nil {
			return err
		}
		if _, err := r.ledger.ReleaseOrder(ctx, o.ID); err != nil {
			return err
		}

		o.Status = next
		o.CancelReason = reason
		o.UpdatedAt = now
		return nil
	})
	if err != nil {
		return model.Order{}, err
	}

	metrics.OrderTransitions.WithLabelValues(string(o.Status), "refund").Inc()
	logging.FromContext(ctx).WithFields(logrus.Fields{"order_code": o.Code, "reason": reason}).Info("order refunded")
	publish(ctx, r.events, orderEvent(queue.EventOrderRefunded, o, seatIDs, reason, r.clock.Now()))
	return o, nil
}
