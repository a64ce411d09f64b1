package model

import "time"

type TicketStatus string

const (
	TicketIssued    TicketStatus = "ISSUED"
	TicketCancelled TicketStatus = "CANCELLED"
	TicketRefunded  TicketStatus = "REFUNDED"
)

var ticketTransitions = transitions[TicketStatus]{
	TicketIssued: {TicketCancelled, TicketRefunded},
}

func (s TicketStatus) CanTransitionTo(next TicketStatus) bool {
	return ticketTransitions.allows(s, next)
}

// Ticket is minted once per seat of a paid order.
type Ticket struct {
	ID          string       `json:"id"`
	OrderID     uint64       `json:"order_id"`
	ShowtimeID  uint64       `json:"showtime_id"`
	SeatID      uint64       `json:"seat_id"`
	Price       int64        `json:"price"`
	Status      TicketStatus `json:"status"`
	Fingerprint string       `json:"fingerprint"`
	CreatedAt   time.Time    `json:"created_at"`
}
