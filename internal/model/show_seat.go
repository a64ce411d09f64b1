package model

import "time"

type SeatStatus string

const (
	SeatFree SeatStatus = "FREE"
	SeatHeld SeatStatus = "HELD"
	SeatSold SeatStatus = "SOLD"
)

// SeatAvailability is a catalog seat as seen by a buyer of one showtime.
// HeldUntil is set only for seats in SeatHeld.
//
// Fields:
//  Seat      – the catalog seat.
//  Status    – FREE, HELD or SOLD (confirmed to an order).
//  HeldUntil – expiry of the active hold.
type SeatAvailability struct {
	Seat
	Status    SeatStatus `json:"status"`
	HeldUntil *time.Time `json:"held_until,omitempty"`
}
