package repository

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/cinema-booking/internal/database"
	"github.com/iliyamo/cinema-booking/internal/model"
)

// reservationRow mirrors the reservations table.
type reservationRow struct {
	ID         uint64        `db:"id"`
	ShowtimeID uint64        `db:"showtime_id"`
	SeatID     uint64        `db:"seat_id"`
	HolderID   uint64        `db:"holder_id"`
	State      string        `db:"state"`
	OrderID    *uint64       `db:"order_id"`
	CreatedAt  database.Time `db:"created_at"`
	ExpiresAt  database.Time `db:"expires_at"`
	UpdatedAt  database.Time `db:"updated_at"`
}

func (r reservationRow) toModel() model.Reservation {
	return model.Reservation{
		ID:         r.ID,
		ShowtimeID: r.ShowtimeID,
		SeatID:     r.SeatID,
		HolderID:   r.HolderID,
		State:      model.ReservationState(r.State),
		OrderID:    r.OrderID,
		CreatedAt:  r.CreatedAt.Time,
		ExpiresAt:  r.ExpiresAt.Time,
		UpdatedAt:  r.UpdatedAt.Time,
	}
}

const reservationColumns = `id, showtime_id, seat_id, holder_id, state, order_id, created_at, expires_at, updated_at`

// ReservationRepo is the storage of the reservation ledger.  The unique key
// on (showtime_id, seat_id) is what keeps two writers from holding the same
// seat; released and expired rows are deleted so the key only ever covers
// active claims.
type ReservationRepo struct {
	db *database.DB
}

func NewReservationRepo(db *database.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// DeleteExpiredForSeats drops HELD rows of the given seats whose deadline
// passed before now.
func (r *ReservationRepo) DeleteExpiredForSeats(ctx context.Context, showtimeID uint64, seatIDs []uint64, now time.Time) (int64, error) {
	q, args, err := sqlx.In(
		`DELETE FROM reservations
		 WHERE showtime_id = ? AND state = ? AND expires_at < ? AND seat_id IN (?)`,
		showtimeID, model.ReservationHeld, database.TS(now), seatIDs)
	if err != nil {
		return 0, err
	}
	return r.exec(ctx, q, args...)
}

// LockSeats returns the rows currently occupying the given seats, locking
// them for the rest of the transaction where the dialect supports it.
func (r *ReservationRepo) LockSeats(ctx context.Context, showtimeID uint64, seatIDs []uint64) ([]model.Reservation, error) {
	return r.forSeats(ctx, showtimeID, seatIDs, r.db.ForUpdate())
}

// ListForSeats is LockSeats without the row lock.
func (r *ReservationRepo) ListForSeats(ctx context.Context, showtimeID uint64, seatIDs []uint64) ([]model.Reservation, error) {
	return r.forSeats(ctx, showtimeID, seatIDs, "")
}

func (r *ReservationRepo) forSeats(ctx context.Context, showtimeID uint64, seatIDs []uint64, suffix string) ([]model.Reservation, error) {
	q, args, err := sqlx.In(
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE showtime_id = ? AND seat_id IN (?) ORDER BY seat_id`+suffix,
		showtimeID, seatIDs)
	if err != nil {
		return nil, err
	}
	return r.selectRows(ctx, q, args...)
}

// Extend pushes the deadline of the holder's HELD rows for the given seats.
func (r *ReservationRepo) Extend(ctx context.Context, showtimeID, holderID uint64, seatIDs []uint64, expiresAt, now time.Time) (int64, error) {
	q, args, err := sqlx.In(
		`UPDATE reservations SET expires_at = ?, updated_at = ?
		 WHERE showtime_id = ? AND holder_id = ? AND state = ? AND seat_id IN (?)`,
		database.TS(expiresAt), database.TS(now), showtimeID, holderID, model.ReservationHeld, seatIDs)
	if err != nil {
		return 0, err
	}
	return r.exec(ctx, q, args...)
}

// InsertHeld creates HELD rows in a single statement.  A concurrent writer
// that got there first surfaces as a unique violation.
func (r *ReservationRepo) InsertHeld(ctx context.Context, showtimeID, holderID uint64, seatIDs []uint64, expiresAt, now time.Time) error {
	if len(seatIDs) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO reservations (showtime_id, seat_id, holder_id, state, created_at, expires_at, updated_at) VALUES `)
	args := make([]interface{}, 0, len(seatIDs)*7)
	ts, exp := database.TS(now), database.TS(expiresAt)
	for i, sid := range seatIDs {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?)")
		args = append(args, showtimeID, sid, holderID, model.ReservationHeld, ts, exp, ts)
	}
	_, err := r.db.Ext(ctx).ExecContext(ctx, sb.String(), args...)
	return err
}

// DeleteHeld removes the holder's HELD rows.  An empty seatIDs removes every
// seat the holder holds on the showtime.
func (r *ReservationRepo) DeleteHeld(ctx context.Context, showtimeID, holderID uint64, seatIDs []uint64) (int64, error) {
	if len(seatIDs) == 0 {
		return r.exec(ctx,
			`DELETE FROM reservations WHERE showtime_id = ? AND holder_id = ? AND state = ?`,
			showtimeID, holderID, model.ReservationHeld)
	}
	q, args, err := sqlx.In(
		`DELETE FROM reservations
		 WHERE showtime_id = ? AND holder_id = ? AND state = ? AND seat_id IN (?)`,
		showtimeID, holderID, model.ReservationHeld, seatIDs)
	if err != nil {
		return 0, err
	}
	return r.exec(ctx, q, args...)
}

// Confirm moves the holder's unexpired HELD rows to CONFIRMED and binds them
// to orderID.  The caller compares the result with len(seatIDs).
func (r *ReservationRepo) Confirm(ctx context.Context, showtimeID, holderID uint64, seatIDs []uint64, orderID uint64, now time.Time) (int64, error) {
	q, args, err := sqlx.In(
		`UPDATE reservations SET state = ?, order_id = ?, updated_at = ?
		 WHERE showtime_id = ? AND holder_id = ? AND state = ? AND expires_at >= ? AND seat_id IN (?)`,
		model.ReservationConfirmed, orderID, database.TS(now),
		showtimeID, holderID, model.ReservationHeld, database.TS(now), seatIDs)
	if err != nil {
		return 0, err
	}
	return r.exec(ctx, q, args...)
}

// DeleteExpired drops every HELD row whose deadline passed before now,
// regardless of holder or showtime.
func (r *ReservationRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.exec(ctx,
		`DELETE FROM reservations WHERE state = ? AND expires_at < ?`,
		model.ReservationHeld, database.TS(now))
}

// DeleteByOrder frees the seats backing an order.
func (r *ReservationRepo) DeleteByOrder(ctx context.Context, orderID uint64) (int64, error) {
	return r.exec(ctx, `DELETE FROM reservations WHERE order_id = ?`, orderID)
}

// ListByShowtime returns all persisted rows of a showtime.
func (r *ReservationRepo) ListByShowtime(ctx context.Context, showtimeID uint64) ([]model.Reservation, error) {
	return r.selectRows(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE showtime_id = ? ORDER BY seat_id`, showtimeID)
}

// ListByHolder returns the rows a holder has on a showtime.
func (r *ReservationRepo) ListByHolder(ctx context.Context, showtimeID, holderID uint64) ([]model.Reservation, error) {
	return r.selectRows(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE showtime_id = ? AND holder_id = ? ORDER BY seat_id`,
		showtimeID, holderID)
}

func (r *ReservationRepo) selectRows(ctx context.Context, q string, args ...interface{}) ([]model.Reservation, error) {
	ext := r.db.Ext(ctx)
	var rows []reservationRow
	if err := sqlx.SelectContext(ctx, ext, &rows, ext.Rebind(q), args...); err != nil {
		return nil, err
	}
	out := make([]model.Reservation, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}
	return out, nil
}

func (r *ReservationRepo) exec(ctx context.Context, q string, args ...interface{}) (int64, error) {
	ext := r.db.Ext(ctx)
	res, err := ext.ExecContext(ctx, ext.Rebind(q), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
