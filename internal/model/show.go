package model

import "time"

// Showtime is catalog data: a screening in a room.  The booking core only
// reads it.
//
// Fields:
//  ID         – primary key identifier.
//  RoomID     – room whose seats are sold for this showtime.
//  MovieTitle – display title.
//  StartsAt   – when the screening begins.
type Showtime struct {
	ID         uint64    `json:"id"`          // showtimes.id
	RoomID     uint64    `json:"room_id"`     // showtimes.room_id
	MovieTitle string    `json:"movie_title"` // showtimes.movie_title
	StartsAt   time.Time `json:"starts_at"`   // showtimes.starts_at
}
