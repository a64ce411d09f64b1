package model

import "time"

// OrderStatus follows PENDING -> {PAID, CANCELLED}, PAID -> REFUNDED.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderPaid      OrderStatus = "PAID"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderRefunded  OrderStatus = "REFUNDED"
)

var orderTransitions = transitions[OrderStatus]{
	OrderPending: {OrderPaid, OrderCancelled},
	OrderPaid:    {OrderRefunded},
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return orderTransitions.allows(s, next)
}

func (s OrderStatus) Transition(next OrderStatus) (OrderStatus, error) {
	return orderTransitions.move("order", s, next)
}

type ItemKind string

const (
	ItemSeat  ItemKind = "SEAT"
	ItemAddon ItemKind = "ADDON"
)

// Order aggregates priced seats and add-ons for a single showtime.
// TotalAmount + LoyaltyDiscount + PromotionDiscount always equals Subtotal.
type Order struct {
	ID                uint64      `json:"id"`
	Code              string      `json:"order_code"`
	UserID            uint64      `json:"user_id"`
	ShowtimeID        uint64      `json:"showtime_id"`
	Subtotal          int64       `json:"subtotal"`
	LoyaltyDiscount   int64       `json:"loyalty_discount"`
	PromotionDiscount int64       `json:"promotion_discount"`
	PointsUsed        int64       `json:"points_used"`
	PointsEarned      int64       `json:"points_earned"`
	PromotionID       *uint64     `json:"promotion_id,omitempty"`
	TotalAmount       int64       `json:"total_amount"`
	Status            OrderStatus `json:"status"`
	BookingExpiresAt  time.Time   `json:"booking_expires_at"`
	PaidAt            *time.Time  `json:"paid_at,omitempty"`
	CancelReason      string      `json:"cancel_reason,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
	Items             []OrderItem `json:"items,omitempty"`
	Tickets           []Ticket    `json:"tickets,omitempty"`
}

// SeatIDs returns the seats of the order's SEAT items.
func (o Order) SeatIDs() []uint64 {
	ids := make([]uint64, 0, len(o.Items))
	for _, it := range o.Items {
		if it.Kind == ItemSeat && it.SeatID != nil {
			ids = append(ids, *it.SeatID)
		}
	}
	return ids
}

// OrderItem is a priced line.  Prices are the snapshot taken when the order
// was created and are never re-derived.
type OrderItem struct {
	ID        uint64   `json:"id"`
	OrderID   uint64   `json:"-"`
	Kind      ItemKind `json:"kind"`
	SeatID    *uint64  `json:"seat_id,omitempty"`
	AddonID   *uint64  `json:"addon_id,omitempty"`
	Quantity  int      `json:"quantity"`
	UnitPrice int64    `json:"unit_price"`
	LineTotal int64    `json:"line_total"`
}
