package model

// Seat describes a physical seat in a room.  Seats are uniquely identified by
// their room, row label and seat number, and are immutable for the lifetime
// of a showtime.
//
// Fields:
//  ID         – primary key identifier.
//  RoomID     – room to which this seat belongs.
//  RowLabel   – letter or string designating the row.
//  SeatNumber – number of the seat within the row.
//  SeatType   – type of seat (STANDARD, VIP, ACCESSIBLE).
type Seat struct {
	ID         uint64 `json:"id"`          // seats.id
	RoomID     uint64 `json:"room_id"`     // seats.room_id
	RowLabel   string `json:"row_label"`   // seats.row_label
	SeatNumber uint32 `json:"seat_number"` // seats.seat_number
	SeatType   string `json:"seat_type"`   // seats.seat_type
}
