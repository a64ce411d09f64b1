package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/cinema-booking/internal/database"
	"github.com/iliyamo/cinema-booking/internal/model"
)

type paymentRow struct {
	ID            uint64        `db:"id"`
	OrderID       uint64        `db:"order_id"`
	Provider      string        `db:"provider"`
	TxnRef        string        `db:"txn_ref"`
	TransactionNo string        `db:"transaction_no"`
	Amount        int64         `db:"amount"`
	ResponseCode  string        `db:"response_code"`
	Status        string        `db:"status"`
	RawPayload    string        `db:"raw_payload"`
	CreatedAt     database.Time `db:"created_at"`
}

// PaymentRepo records gateway outcomes.
type PaymentRepo struct {
	db *database.DB
}

func NewPaymentRepo(db *database.DB) *PaymentRepo { return &PaymentRepo{db: db} }

func (r *PaymentRepo) Insert(ctx context.Context, p *model.Payment) error {
	ts := database.TS(p.CreatedAt)
	res, err := r.db.Ext(ctx).ExecContext(ctx,
		`INSERT INTO payments (order_id, provider, txn_ref, transaction_no, amount, response_code, status,
			raw_payload, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.OrderID, p.Provider, p.TxnRef, p.TransactionNo, p.Amount, p.ResponseCode, p.Status,
		p.RawPayload, ts, ts)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}

// LatestByOrder returns the most recent payment of an order, ErrNotFound if
// none was recorded.
func (r *PaymentRepo) LatestByOrder(ctx context.Context, orderID uint64) (model.Payment, error) {
	var row paymentRow
	err := sqlx.GetContext(ctx, r.db.Ext(ctx), &row,
		`SELECT id, order_id, provider, txn_ref, transaction_no, amount, response_code, status, raw_payload, created_at
		 FROM payments WHERE order_id = ? ORDER BY id DESC LIMIT 1`, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Payment{}, ErrNotFound
	}
	if err != nil {
		return model.Payment{}, err
	}
	return model.Payment{
		ID:            row.ID,
		OrderID:       row.OrderID,
		Provider:      row.Provider,
		TxnRef:        row.TxnRef,
		TransactionNo: row.TransactionNo,
		Amount:        row.Amount,
		ResponseCode:  row.ResponseCode,
		Status:        model.PaymentStatus(row.Status),
		RawPayload:    row.RawPayload,
		CreatedAt:     row.CreatedAt.Time,
	}, nil
}

// MarkRefunded flips the order's successful payment to REFUNDED.
func (r *PaymentRepo) MarkRefunded(ctx context.Context, orderID uint64, now time.Time) (int64, error) {
	res, err := r.db.Ext(ctx).ExecContext(ctx,
		`UPDATE payments SET status = ?, updated_at = ? WHERE order_id = ? AND status = ?`,
		model.PaymentRefunded, database.TS(now), orderID, model.PaymentSuccess)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
