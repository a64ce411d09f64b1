package repository // repository defines read access to the seat catalog

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/cinema-booking/internal/database"
	"github.com/iliyamo/cinema-booking/internal/model"
)

// seatRow mirrors the seats table.
type seatRow struct {
	ID         uint64 `db:"id"`          // primary key
	RoomID     uint64 `db:"room_id"`     // room the seat belongs to
	RowLabel   string `db:"row_label"`   // e.g. A, B, AA
	SeatNumber uint32 `db:"seat_number"` // position in the row (1-based)
	SeatType   string `db:"seat_type"`   // STANDARD | VIP | ACCESSIBLE
}

func (s seatRow) toModel() model.Seat {
	return model.Seat{ID: s.ID, RoomID: s.RoomID, RowLabel: s.RowLabel, SeatNumber: s.SeatNumber, SeatType: s.SeatType}
}

// SeatRepo reads seats through the showtime that sells them.  The booking
// core never writes the catalog.
type SeatRepo struct {
	db *database.DB
}

// NewSeatRepo constructs a SeatRepo with the given DB handle.
func NewSeatRepo(db *database.DB) *SeatRepo {
	return &SeatRepo{db: db}
}

// ExistingForShowtime returns the subset of seatIDs that belong to the room
// of the given showtime.
func (r *SeatRepo) ExistingForShowtime(ctx context.Context, showtimeID uint64, seatIDs []uint64) ([]uint64, error) {
	if len(seatIDs) == 0 {
		return nil, nil
	}
	q, args, err := sqlx.In(
		`SELECT s.id FROM seats s
		 JOIN showtimes st ON st.room_id = s.room_id
		 WHERE st.id = ? AND s.id IN (?)`,
		showtimeID, seatIDs)
	if err != nil {
		return nil, err
	}
	ext := r.db.Ext(ctx)
	var ids []uint64
	if err := sqlx.SelectContext(ctx, ext, &ids, ext.Rebind(q), args...); err != nil {
		return nil, err
	}
	return ids, nil
}

// ListByShowtime returns the room layout of a showtime ordered by row and
// number.
func (r *SeatRepo) ListByShowtime(ctx context.Context, showtimeID uint64) ([]model.Seat, error) {
	ext := r.db.Ext(ctx)
	var rows []seatRow
	err := sqlx.SelectContext(ctx, ext, &rows,
		`SELECT s.id, s.room_id, s.row_label, s.seat_number, s.seat_type
		 FROM seats s
		 JOIN showtimes st ON st.room_id = s.room_id
		 WHERE st.id = ?
		 ORDER BY s.row_label, s.seat_number`, showtimeID)
	if err != nil {
		return nil, err
	}
	seats := make([]model.Seat, len(rows))
	for i, row := range rows {
		seats[i] = row.toModel()
	}
	return seats, nil
}
