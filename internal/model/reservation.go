package model

import "time"

// ReservationState is the lifecycle of a seat claim.  RELEASED and EXPIRED
// are terminal and the ledger deletes rows on reaching them, so only HELD and
// CONFIRMED are ever persisted.
type ReservationState string

const (
	ReservationHeld      ReservationState = "HELD"
	ReservationConfirmed ReservationState = "CONFIRMED"
	ReservationReleased  ReservationState = "RELEASED"
	ReservationExpired   ReservationState = "EXPIRED"
)

var reservationTransitions = transitions[ReservationState]{
	ReservationHeld:      {ReservationConfirmed, ReservationReleased, ReservationExpired},
	ReservationConfirmed: {ReservationReleased},
}

func (s ReservationState) CanTransitionTo(next ReservationState) bool {
	return reservationTransitions.allows(s, next)
}

func (s ReservationState) Transition(next ReservationState) (ReservationState, error) {
	return reservationTransitions.move("reservation", s, next)
}

// Active reports whether the state occupies the seat.
func (s ReservationState) Active() bool {
	return s == ReservationHeld || s == ReservationConfirmed
}

// SystemHolder marks reservations taken by the box office for group bookings.
const SystemHolder uint64 = 0

// Reservation is a time-bounded, exclusive claim on one seat for one
// showtime.
//
// Fields:
//  ShowtimeID, SeatID – natural key; at most one active row per pair.
//  HolderID           – user holding the seat, SystemHolder for group bookings.
//  State              – HELD or CONFIRMED while persisted.
//  OrderID            – order backed by this seat once CONFIRMED.
//  ExpiresAt          – end of the hold; ignored once CONFIRMED.
type Reservation struct {
	ID         uint64           // reservations.id
	ShowtimeID uint64           // reservations.showtime_id
	SeatID     uint64           // reservations.seat_id
	HolderID   uint64           // reservations.holder_id
	State      ReservationState // reservations.state
	OrderID    *uint64          // reservations.order_id (nullable)
	CreatedAt  time.Time        // reservations.created_at
	ExpiresAt  time.Time        // reservations.expires_at
	UpdatedAt  time.Time        // reservations.updated_at
}

// Expired reports whether a HELD reservation is past its deadline at now.
func (r Reservation) Expired(now time.Time) bool {
	return r.State == ReservationHeld && r.ExpiresAt.Before(now)
}
