package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/cinema-booking/internal/database"
	"github.com/iliyamo/cinema-booking/internal/model"
)

// OrderRepo provides persistence for orders and their line items.  Status
// changes are conditional updates guarded by the expected current status, so
// a caller that lost a race sees zero affected rows instead of overwriting.
type OrderRepo struct {
	db *database.DB
}

// NewOrderRepo returns a new OrderRepo bound to the given database.
func NewOrderRepo(db *database.DB) *OrderRepo { return &OrderRepo{db: db} }

// orderRow mirrors the schema of the orders table.
type orderRow struct {
	ID                uint64            `db:"id"`
	Code              string            `db:"order_code"`
	UserID            uint64            `db:"user_id"`
	ShowtimeID        uint64            `db:"showtime_id"`
	Subtotal          int64             `db:"subtotal"`
	LoyaltyDiscount   int64             `db:"loyalty_discount"`
	PromotionDiscount int64             `db:"promotion_discount"`
	PointsUsed        int64             `db:"points_used"`
	PointsEarned      int64             `db:"points_earned"`
	PromotionID       *uint64           `db:"promotion_id"`
	TotalAmount       int64             `db:"total_amount"`
	Status            string            `db:"status"`
	BookingExpiresAt  database.Time     `db:"booking_expires_at"`
	PaidAt            database.NullTime `db:"paid_at"`
	CancelReason      string            `db:"cancel_reason"`
	CreatedAt         database.Time     `db:"created_at"`
	UpdatedAt         database.Time     `db:"updated_at"`
}

func (o orderRow) toModel() model.Order {
	return model.Order{
		ID:                o.ID,
		Code:              o.Code,
		UserID:            o.UserID,
		ShowtimeID:        o.ShowtimeID,
		Subtotal:          o.Subtotal,
		LoyaltyDiscount:   o.LoyaltyDiscount,
		PromotionDiscount: o.PromotionDiscount,
		PointsUsed:        o.PointsUsed,
		PointsEarned:      o.PointsEarned,
		PromotionID:       o.PromotionID,
		TotalAmount:       o.TotalAmount,
		Status:            model.OrderStatus(o.Status),
		BookingExpiresAt:  o.BookingExpiresAt.Time,
		PaidAt:            o.PaidAt.Ptr(),
		CancelReason:      o.CancelReason,
		CreatedAt:         o.CreatedAt.Time,
		UpdatedAt:         o.UpdatedAt.Time,
	}
}

const orderColumns = `id, order_code, user_id, showtime_id, subtotal, loyalty_discount, promotion_discount,
	points_used, points_earned, promotion_id, total_amount, status, booking_expires_at, paid_at,
	cancel_reason, created_at, updated_at`

// orderItemRow mirrors the order_items table.
type orderItemRow struct {
	ID        uint64  `db:"id"`
	OrderID   uint64  `db:"order_id"`
	Kind      string  `db:"kind"`
	SeatID    *uint64 `db:"seat_id"`
	AddonID   *uint64 `db:"addon_id"`
	Quantity  int     `db:"quantity"`
	UnitPrice int64   `db:"unit_price"`
	LineTotal int64   `db:"line_total"`
}

// Create inserts the order and its items.  The generated ID is written back
// to o and to every item.
func (r *OrderRepo) Create(ctx context.Context, o *model.Order) error {
	ext := r.db.Ext(ctx)
	res, err := ext.ExecContext(ctx,
		`INSERT INTO orders (order_code, user_id, showtime_id, subtotal, loyalty_discount, promotion_discount,
			points_used, points_earned, promotion_id, total_amount, status, booking_expires_at, cancel_reason,
			created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?, '', ?, ?)`,
		o.Code, o.UserID, o.ShowtimeID, o.Subtotal, o.LoyaltyDiscount, o.PromotionDiscount,
		o.PointsUsed, o.PromotionID, o.TotalAmount, o.Status, database.TS(o.BookingExpiresAt),
		database.TS(o.CreatedAt), database.TS(o.UpdatedAt))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	o.ID = uint64(id)
	for i := range o.Items {
		o.Items[i].OrderID = o.ID
	}
	return r.createItems(ctx, o.Items)
}

// createItems inserts all line items in a single statement.
func (r *OrderRepo) createItems(ctx context.Context, items []model.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO order_items (order_id, kind, seat_id, addon_id, quantity, unit_price, line_total) VALUES `)
	args := make([]interface{}, 0, len(items)*7)
	for i, it := range items {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?)")
		args = append(args, it.OrderID, it.Kind, it.SeatID, it.AddonID, it.Quantity, it.UnitPrice, it.LineTotal)
	}
	_, err := r.db.Ext(ctx).ExecContext(ctx, sb.String(), args...)
	return err
}

// GetByCode loads an order by its public code.
func (r *OrderRepo) GetByCode(ctx context.Context, code string) (model.Order, error) {
	return r.get(ctx, "order_code = ?", code, false)
}

// GetByCodeForUpdate loads and row-locks an order by its public code.  It
// must be called inside a transaction.
func (r *OrderRepo) GetByCodeForUpdate(ctx context.Context, code string) (model.Order, error) {
	return r.get(ctx, "order_code = ?", code, true)
}

// GetByID loads an order by primary key.
func (r *OrderRepo) GetByID(ctx context.Context, id uint64) (model.Order, error) {
	return r.get(ctx, "id = ?", id, false)
}

// GetByIDForUpdate loads and row-locks an order by primary key.
func (r *OrderRepo) GetByIDForUpdate(ctx context.Context, id uint64) (model.Order, error) {
	return r.get(ctx, "id = ?", id, true)
}

func (r *OrderRepo) get(ctx context.Context, where string, arg interface{}, lock bool) (model.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE ` + where
	if lock {
		q += r.db.ForUpdate()
	}
	var row orderRow
	err := sqlx.GetContext(ctx, r.db.Ext(ctx), &row, q, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Order{}, ErrNotFound
	}
	if err != nil {
		return model.Order{}, err
	}
	return row.toModel(), nil
}

// Items returns the line items of an order in insertion order.
func (r *OrderRepo) Items(ctx context.Context, orderID uint64) ([]model.OrderItem, error) {
	var rows []orderItemRow
	err := sqlx.SelectContext(ctx, r.db.Ext(ctx), &rows,
		`SELECT id, order_id, kind, seat_id, addon_id, quantity, unit_price, line_total
		 FROM order_items WHERE order_id = ? ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	items := make([]model.OrderItem, len(rows))
	for i, row := range rows {
		items[i] = model.OrderItem{
			ID:        row.ID,
			OrderID:   row.OrderID,
			Kind:      model.ItemKind(row.Kind),
			SeatID:    row.SeatID,
			AddonID:   row.AddonID,
			Quantity:  row.Quantity,
			UnitPrice: row.UnitPrice,
			LineTotal: row.LineTotal,
		}
	}
	return items, nil
}

// UpdateStatus moves an order from one status to another.  It returns the
// number of rows changed, zero when the order was no longer in from.
func (r *OrderRepo) UpdateStatus(ctx context.Context, id uint64, from, to model.OrderStatus, reason string, now time.Time) (int64, error) {
	res, err := r.db.Ext(ctx).ExecContext(ctx,
		`UPDATE orders SET status = ?, cancel_reason = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, reason, database.TS(now), id, from)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkPaid moves a PENDING order to PAID and records the points it earned.
func (r *OrderRepo) MarkPaid(ctx context.Context, id uint64, pointsEarned int64, now time.Time) (int64, error) {
	ts := database.TS(now)
	res, err := r.db.Ext(ctx).ExecContext(ctx,
		`UPDATE orders SET status = ?, points_earned = ?, paid_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		model.OrderPaid, pointsEarned, ts, ts, id, model.OrderPending)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListExpiredPending returns up to limit ids of PENDING orders whose booking
// window closed before now, oldest first.
func (r *OrderRepo) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]uint64, error) {
	var ids []uint64
	err := sqlx.SelectContext(ctx, r.db.Ext(ctx), &ids,
		`SELECT id FROM orders WHERE status = ? AND booking_expires_at < ? ORDER BY booking_expires_at LIMIT ?`,
		model.OrderPending, database.TS(now), limit)
	return ids, err
}
