package repository

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/cinema-booking/internal/database"
	"github.com/iliyamo/cinema-booking/internal/model"
)

type ticketRow struct {
	ID          string        `db:"id"`
	OrderID     uint64        `db:"order_id"`
	ShowtimeID  uint64        `db:"showtime_id"`
	SeatID      uint64        `db:"seat_id"`
	Price       int64         `db:"price"`
	Status      string        `db:"status"`
	Fingerprint string        `db:"fingerprint"`
	CreatedAt   database.Time `db:"created_at"`
}

// TicketRepo stores tickets.  UNIQUE(order_id, seat_id) guarantees a seat of
// an order is ticketed at most once.
type TicketRepo struct {
	db *database.DB
}

func NewTicketRepo(db *database.DB) *TicketRepo { return &TicketRepo{db: db} }

// InsertBatch writes all tickets of an order in one statement.
func (r *TicketRepo) InsertBatch(ctx context.Context, tickets []model.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO tickets (id, order_id, showtime_id, seat_id, price, status, fingerprint, created_at, updated_at) VALUES `)
	args := make([]interface{}, 0, len(tickets)*9)
	for i, t := range tickets {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?)")
		ts := database.TS(t.CreatedAt)
		args = append(args, t.ID, t.OrderID, t.ShowtimeID, t.SeatID, t.Price, t.Status, t.Fingerprint, ts, ts)
	}
	_, err := r.db.Ext(ctx).ExecContext(ctx, sb.String(), args...)
	return err
}

func (r *TicketRepo) ListByOrder(ctx context.Context, orderID uint64) ([]model.Ticket, error) {
	var rows []ticketRow
	err := sqlx.SelectContext(ctx, r.db.Ext(ctx), &rows,
		`SELECT id, order_id, showtime_id, seat_id, price, status, fingerprint, created_at
		 FROM tickets WHERE order_id = ? ORDER BY seat_id`, orderID)
	if err != nil {
		return nil, err
	}
	out := make([]model.Ticket, len(rows))
	for i, row := range rows {
		out[i] = model.Ticket{
			ID:          row.ID,
			OrderID:     row.OrderID,
			ShowtimeID:  row.ShowtimeID,
			SeatID:      row.SeatID,
			Price:       row.Price,
			Status:      model.TicketStatus(row.Status),
			Fingerprint: row.Fingerprint,
			CreatedAt:   row.CreatedAt.Time,
		}
	}
	return out, nil
}

// UpdateStatusByOrder moves every ticket of an order that is in from to to.
func (r *TicketRepo) UpdateStatusByOrder(ctx context.Context, orderID uint64, from, to model.TicketStatus, now time.Time) (int64, error) {
	res, err := r.db.Ext(ctx).ExecContext(ctx,
		`UPDATE tickets SET status = ?, updated_at = ? WHERE order_id = ? AND status = ?`,
		to, database.TS(now), orderID, from)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
