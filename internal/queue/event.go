// Package queue defines the booking events published after an order changes
// state, the broker publishers that carry them, and the audit consumer.
package queue

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventOrderPaid      EventType = "order.paid"
	EventOrderCancelled EventType = "order.cancelled"
	EventOrderRefunded  EventType = "order.refunded"
)

// BookingEvent is published once the transaction that caused it has
// committed.  It carries enough for consumers to log, notify or feed
// analytics without querying the primary database.
type BookingEvent struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	OrderID     uint64    `json:"order_id"`
	OrderCode   string    `json:"order_code"`
	UserID      uint64    `json:"user_id"`
	ShowtimeID  uint64    `json:"showtime_id"`
	SeatIDs     []uint64  `json:"seat_ids"`
	TotalAmount int64     `json:"total_amount"`
	Reason      string    `json:"reason,omitempty"`
	OccurredAt  string    `json:"occurred_at"`
}

// NewEvent stamps a fresh id and the occurrence time.
func NewEvent(t EventType, at time.Time) BookingEvent {
	return BookingEvent{
		ID:         uuid.NewString(),
		Type:       t,
		OccurredAt: at.UTC().Format(time.RFC3339),
	}
}
