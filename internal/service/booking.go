package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v3"
	"github.com/samber/lo"
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
)

const orderCodePrefix = "ORD-"

type BookingOptions struct {
	// Horizon is how long a PENDING order waits for payment.
	Horizon time.Duration
	// PointValue is the currency value of one loyalty point.
	PointValue int64
}

// BookingService turns held seats into orders and manages an order until it
// is handed to the payment gateway.
type BookingService struct {
	db         *database.DB
	ledger     *Ledger
	orders     *repository.OrderRepo
	tickets    *repository.TicketRepo
	promotions *repository.PromotionRepo
	loyalty    *repository.LoyaltyRepo
	gateway    *payment.Gateway
	events     queue.Publisher
	cancels    *canceller
	clock      clock.Clock
	opts       BookingOptions
}

func NewBookingService(db *database.DB, ledger *Ledger, gw *payment.Gateway, events queue.Publisher, clk clock.Clock, opts BookingOptions) *BookingService {
	if opts.Horizon <= 0 {
		opts.Horizon = 10 * time.Minute
	}
	if opts.PointValue <= 0 {
		opts.PointValue = 1000
	}
	if events == nil {
		events = queue.NopPublisher{}
	}
	return &BookingService{
		db:         db,
		ledger:     ledger,
		orders:     repository.NewOrderRepo(db),
		tickets:    repository.NewTicketRepo(db),
		promotions: repository.NewPromotionRepo(db),
		loyalty:    repository.NewLoyaltyRepo(db),
		gateway:    gw,
		events:     events,
		cancels:    newCanceller(db, ledger, clk),
		clock:      clk,
		opts:       opts,
	}
}

type CreateOrderRequest struct {
	UserID        uint64       `json:"-"`
	ShowtimeID    uint64       `json:"showtime_id"`
	Seats         []PricedSeat `json:"seats"`
	Addons        []AddonItem  `json:"addons"`
	LoyaltyPoints int64        `json:"loyalty_points"`
	PromotionCode string       `json:"promotion_code"`
}

type OrderSummary struct {
	OrderID           uint64            `json:"order_id"`
	OrderCode         string            `json:"order_code"`
	Status            model.OrderStatus `json:"status"`
	Subtotal          int64             `json:"subtotal"`
	LoyaltyDiscount   int64             `json:"loyalty_discount"`
	PromotionDiscount int64             `json:"promotion_discount"`
	PointsUsed        int64             `json:"points_used"`
	TotalAmount       int64             `json:"total_amount"`
	BookingExpiresAt  time.Time         `json:"booking_expires_at"`
}

func summarize(o model.Order) OrderSummary {
	return OrderSummary{
		OrderID:           o.ID,
		OrderCode:         o.Code,
		Status:            o.Status,
		Subtotal:          o.Subtotal,
		LoyaltyDiscount:   o.LoyaltyDiscount,
		PromotionDiscount: o.PromotionDiscount,
		PointsUsed:        o.PointsUsed,
		TotalAmount:       o.TotalAmount,
		BookingExpiresAt:  o.BookingExpiresAt,
	}
}

// CreateOrder prices the request, persists a PENDING order and confirms the
// caller's holds against it, all in one transaction.  If any seat is no
// longer held nothing is written.
func (s *BookingService) CreateOrder(ctx context.Context, req CreateOrderRequest) (sum OrderSummary, err error) {
	ctx, span := tracer.Start(ctx, "BookingService.CreateOrder", trace.WithAttributes(
		attribute.Int64("showtime_id", int64(req.ShowtimeID)),
		attribute.Int("seats", len(req.Seats)),
	))
	defer func() { endSpan(span, err) }()

	seatIDs, err := orderSeats(req.Seats)
	if err != nil {
		return OrderSummary{}, err
	}
	sub, err := subtotal(req.Seats, req.Addons)
	if err != nil {
		return OrderSummary{}, err
	}
	if req.LoyaltyPoints < 0 {
		return OrderSummary{}, invalid(CodeInsufficientPoints, "loyalty points must not be negative")
	}

	var order model.Order
	err = s.db.WithTx(ctx, func(ctx context.Context) error {
		now := s.clock.Now()

		loyaltyOff, pointsUsed, err := s.redeemablePoints(ctx, req.UserID, req.LoyaltyPoints, sub)
		if err != nil {
			return err
		}

		var promo *model.Promotion
		var promoOff int64
		if code := strings.TrimSpace(req.PromotionCode); code != "" {
			p, err := s.eligiblePromotion(ctx, code, req.UserID, sub, now)
			if err != nil {
				return err
			}
			promo = &p
			promoOff = promotionDiscount(p, sub, sub-loyaltyOff)
		}

		order = model.Order{
			Code:              orderCodePrefix + shortuuid.New(),
			UserID:            req.UserID,
			ShowtimeID:        req.ShowtimeID,
			Subtotal:          sub,
			LoyaltyDiscount:   loyaltyOff,
			PromotionDiscount: promoOff,
			PointsUsed:        pointsUsed,
			TotalAmount:       sub - loyaltyOff - promoOff,
			Status:            model.OrderPending,
			BookingExpiresAt:  now.Add(s.opts.Horizon),
			CreatedAt:         now,
			UpdatedAt:         now,
			Items:             orderItems(req.Seats, req.Addons),
		}
		if promo != nil {
			order.PromotionID = &promo.ID
		}
		if err := s.orders.Create(ctx, &order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		if err := s.reservePoints(ctx, order, now); err != nil {
			return err
		}

		if _, err := s.ledger.Confirm(ctx, req.ShowtimeID, seatIDs, req.UserID, order.ID); err != nil {
			return err
		}

		if promo != nil {
			err := s.promotions.Consume(ctx, promo.ID, req.UserID, order.ID, now)
			if errors.Is(err, repository.ErrConflict) {
				return invalid(CodePromotionExhausted, "promotion %s has been fully used", promo.Code)
			}
			if err != nil {
				return fmt.Errorf("consume promotion: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return OrderSummary{}, err
	}

	metrics.OrdersCreated.Inc()
	logging.FromContext(ctx).WithFields(logrus.Fields{
		"order_code": order.Code,
		"user_id":    order.UserID,
		"total":      order.TotalAmount,
	}).Info("order created")
	return summarize(order), nil
}

func (s *BookingService) redeemablePoints(ctx context.Context, userID uint64, requested, sub int64) (discount, used int64, err error) {
	if requested == 0 {
		return 0, 0, nil
	}
	acc, err := s.loyalty.Get(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return 0, 0, err
	}
	if acc.Points < requested {
		return 0, 0, invalid(CodeInsufficientPoints, "requested %d points but the balance is %d", requested, acc.Points)
	}
	discount, used = loyaltyDiscount(sub, requested, s.opts.PointValue)
	return discount, used, nil
}

// reservePoints takes the redeemed points off the balance inside the order's
// transaction.  The conditional debit settles races between orders drawing
// on the same balance.
func (s *BookingService) reservePoints(ctx context.Context, o model.Order, now time.Time) error {
	if o.PointsUsed == 0 {
		return nil
	}
	ok, err := s.loyalty.Reserve(ctx, o.UserID, o.PointsUsed, now)
	if err != nil {
		return fmt.Errorf("reserve points: %w", err)
	}
	if !ok {
		return invalid(CodeInsufficientPoints, "the loyalty balance no longer covers %d points", o.PointsUsed)
	}
	return s.loyalty.AddTransaction(ctx, o.UserID, o.ID, model.LoyaltyRedeem, o.PointsUsed, now)
}

func (s *BookingService) eligiblePromotion(ctx context.Context, code string, userID uint64, sub int64, now time.Time) (model.Promotion, error) {
	p, err := s.promotions.GetByCodeForUpdate(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Promotion{}, invalid(CodePromotionNotFound, "promotion %s does not exist", code)
	}
	if err != nil {
		return model.Promotion{}, err
	}
	used := 0
	if p.PerUserLimit > 0 {
		if used, err = s.promotions.CountUserUsages(ctx, p.ID, userID); err != nil {
			return model.Promotion{}, err
		}
	}
	return p, checkPromotion(p, used, sub, now)
}

// orderSeats validates the seat lines and returns their ids.
func orderSeats(seats []PricedSeat) ([]uint64, error) {
	ids := lo.Map(seats, func(s PricedSeat, _ int) uint64 { return s.SeatID })
	norm, err := normalizeSeats(ids)
	if err != nil {
		return nil, err
	}
	if len(norm) != len(ids) {
		return nil, invalid(CodeInvalidSeats, "a seat may appear only once per order")
	}
	return norm, nil
}

func orderItems(seats []PricedSeat, addons []AddonItem) []model.OrderItem {
	items := make([]model.OrderItem, 0, len(seats)+len(addons))
	for _, s := range seats {
		seatID := s.SeatID
		items = append(items, model.OrderItem{
			Kind: model.ItemSeat, SeatID: &seatID, Quantity: 1, UnitPrice: s.Price, LineTotal: s.Price,
		})
	}
	for _, a := range addons {
		addonID := a.AddonID
		items = append(items, model.OrderItem{
			Kind: model.ItemAddon, AddonID: &addonID, Quantity: a.Quantity, UnitPrice: a.Price,
			LineTotal: a.Price * int64(a.Quantity),
		})
	}
	return items
}

// GetOrder returns an order with its items and tickets.  Only the owner may
// read it.
func (s *BookingService) GetOrder(ctx context.Context, userID uint64, code string) (model.Order, error) {
	o, err := s.ownedOrder(ctx, userID, code)
	if err != nil {
		return model.Order{}, err
	}
	if o.Items, err = s.orders.Items(ctx, o.ID); err != nil {
		return model.Order{}, err
	}
	if o.Tickets, err = s.tickets.ListByOrder(ctx, o.ID); err != nil {
		return model.Order{}, err
	}
	return o, nil
}

func (s *BookingService) ownedOrder(ctx context.Context, userID uint64, code string) (model.Order, error) {
	o, err := s.orders.GetByCode(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Order{}, ErrNotFound
	}
	if err != nil {
		return model.Order{}, err
	}
	if o.UserID != userID {
		return model.Order{}, ErrForbidden
	}
	return o, nil
}

// CancelOrder cancels the caller's own PENDING order and returns its seats
// to sale.
func (s *BookingService) CancelOrder(ctx context.Context, userID uint64, code string) (o model.Order, err error) {
	ctx, span := tracer.Start(ctx, "BookingService.CancelOrder")
	defer func() { endSpan(span, err) }()

	var seatIDs []uint64
	err = s.db.WithTx(ctx, func(ctx context.Context) error {
		locked, err := s.orders.GetByCodeForUpdate(ctx, code)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if locked.UserID != userID {
			return ErrForbidden
		}
		if seatIDs, err = s.cancels.seatIDs(ctx, locked.ID); err != nil {
			return err
		}
		o, err = s.cancels.cancel(ctx, locked, "cancelled by customer", "customer")
		return err
	})
	if err != nil {
		return model.Order{}, err
	}
	publish(ctx, s.events, orderEvent(queue.EventOrderCancelled, o, seatIDs, o.CancelReason, s.clock.Now()))
	return o, nil
}

// PaymentURL builds the hosted payment page URL for the caller's own
// PENDING order.  Nothing is written.
func (s *BookingService) PaymentURL(ctx context.Context, userID uint64, code, clientIP string) (string, error) {
	o, err := s.ownedOrder(ctx, userID, code)
	if err != nil {
		return "", err
	}
	if o.Status != model.OrderPending {
		return "", fmt.Errorf("%w: order %s is %s", ErrIllegalTransition, o.Code, o.Status)
	}
	now := s.clock.Now()
	if o.BookingExpiresAt.Before(now) {
		return "", ErrOrderExpired
	}
	if o.TotalAmount <= 0 {
		return "", invalid(CodeInvalidItems, "order %s has nothing to pay", o.Code)
	}
	return s.gateway.BuildRedirectURL(payment.RedirectRequest{
		OrderCode:   o.Code,
		Amount:      o.TotalAmount,
		Description: "Payment for order " + o.Code,
		ClientIP:    clientIP,
		CreatedAt:   now,
		ExpiresAt:   o.BookingExpiresAt,
	})
}

// canceller is the one cancellation path for PENDING orders, used by
// explicit cancels, declined payments and the sweeper.
type canceller struct {
	orders     *repository.OrderRepo
	tickets    *repository.TicketRepo
	promotions *repository.PromotionRepo
	loyalty    *repository.LoyaltyRepo
	ledger     *Ledger
	clock      clock.Clock
}

func newCanceller(db *database.DB, ledger *Ledger, clk clock.Clock) *canceller {
	return &canceller{
		orders:     repository.NewOrderRepo(db),
		tickets:    repository.NewTicketRepo(db),
		promotions: repository.NewPromotionRepo(db),
		loyalty:    repository.NewLoyaltyRepo(db),
		ledger:     ledger,
		clock:      clk,
	}
}

// cancel moves a row-locked order from PENDING to CANCELLED, cancels its
// tickets, frees its seats and returns its reserved points and promotion
// usage.  It must run
// inside the caller's transaction.
func (c *canceller) cancel(ctx context.Context, o model.Order, reason, cause string) (model.Order, error) {
	next, err := o.Status.Transition(model.OrderCancelled)
	if err != nil {
		return model.Order{}, err
	}
	now := c.clock.Now()
	n, err := c.orders.UpdateStatus(ctx, o.ID, model.OrderPending, next, reason, now)
	if err != nil {
		return model.Order{}, err
	}
	if n == 0 {
		return model.Order{}, fmt.Errorf("%w: order %s changed concurrently", ErrIllegalTransition, o.Code)
	}
	if _, err := c.tickets.UpdateStatusByOrder(ctx, o.ID, model.TicketIssued, model.TicketCancelled, now); err != nil {
		return model.Order{}, err
	}
	if _, err := c.ledger.ReleaseOrder(ctx, o.ID); err != nil {
		return model.Order{}, err
	}
	if _, err := c.promotions.ReleaseByOrder(ctx, o.ID); err != nil {
		return model.Order{}, err
	}
	if o.PointsUsed > 0 {
		if err := c.loyalty.Restore(ctx, o.UserID, o.PointsUsed, now); err != nil {
			return model.Order{}, err
		}
		if err := c.loyalty.AddTransaction(ctx, o.UserID, o.ID, model.LoyaltyRestore, o.PointsUsed, now); err != nil {
			return model.Order{}, err
		}
	}
	metrics.OrderTransitions.WithLabelValues(string(next), cause).Inc()

	o.Status = next
	o.CancelReason = reason
	o.UpdatedAt = now
	return o, nil
}

func (c *canceller) seatIDs(ctx context.Context, orderID uint64) ([]uint64, error) {
	items, err := c.orders.Items(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return model.Order{Items: items}.SeatIDs(), nil
}

func orderEvent(t queue.EventType, o model.Order, seatIDs []uint64, reason string, at time.Time) queue.BookingEvent {
	ev := queue.NewEvent(t, at)
	ev.OrderID = o.ID
	ev.OrderCode = o.Code
	ev.UserID = o.UserID
	ev.ShowtimeID = o.ShowtimeID
	ev.SeatIDs = seatIDs
	ev.TotalAmount = o.TotalAmount
	ev.Reason = reason
	return ev
}

// publish hands a committed change to the broker.  Failures are logged and
// counted, never returned.
func publish(ctx context.Context, p queue.Publisher, ev queue.BookingEvent) {
	if err := p.Publish(ctx, ev); err != nil {
		metrics.EventsPublished.WithLabelValues(string(ev.Type), "error").Inc()
		logging.FromContext(ctx).WithError(err).WithField("order_code", ev.OrderCode).Warn("publish booking event")
		return
	}
	metrics.EventsPublished.WithLabelValues(string(ev.Type), "ok").Inc()
}
