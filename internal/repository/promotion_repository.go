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

type promotionRow struct {
	ID             uint64        `db:"id"`
	Code           string        `db:"code"`
	DiscountType   string        `db:"discount_type"`
	DiscountValue  int64         `db:"discount_value"`
	MaxDiscount    int64         `db:"max_discount"`
	MinOrderAmount int64         `db:"min_order_amount"`
	UsageLimit     int           `db:"usage_limit"`
	UsedCount      int           `db:"used_count"`
	PerUserLimit   int           `db:"per_user_limit"`
	StartsAt       database.Time `db:"starts_at"`
	EndsAt         database.Time `db:"ends_at"`
	IsActive       bool          `db:"is_active"`
}

// PromotionRepo reads promotion definitions and keeps their usage counters.
// Counters only move through single-statement conditional updates.
type PromotionRepo struct {
	db *database.DB
}

func NewPromotionRepo(db *database.DB) *PromotionRepo { return &PromotionRepo{db: db} }

// GetByCodeForUpdate loads and row-locks a promotion.
func (r *PromotionRepo) GetByCodeForUpdate(ctx context.Context, code string) (model.Promotion, error) {
	var row promotionRow
	err := sqlx.GetContext(ctx, r.db.Ext(ctx), &row,
		`SELECT id, code, discount_type, discount_value, max_discount, min_order_amount, usage_limit,
			used_count, per_user_limit, starts_at, ends_at, is_active
		 FROM promotions WHERE code = ?`+r.db.ForUpdate(), code)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Promotion{}, ErrNotFound
	}
	if err != nil {
		return model.Promotion{}, err
	}
	return model.Promotion{
		ID:             row.ID,
		Code:           row.Code,
		DiscountType:   model.DiscountType(row.DiscountType),
		DiscountValue:  row.DiscountValue,
		MaxDiscount:    row.MaxDiscount,
		MinOrderAmount: row.MinOrderAmount,
		UsageLimit:     row.UsageLimit,
		UsedCount:      row.UsedCount,
		PerUserLimit:   row.PerUserLimit,
		StartsAt:       row.StartsAt.Time,
		EndsAt:         row.EndsAt.Time,
		IsActive:       row.IsActive,
	}, nil
}

// CountUserUsages counts how many live orders of a user used a promotion.
func (r *PromotionRepo) CountUserUsages(ctx context.Context, promotionID, userID uint64) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, r.db.Ext(ctx), &n,
		`SELECT COUNT(*) FROM promotion_usages WHERE promotion_id = ? AND user_id = ?`, promotionID, userID)
	return n, err
}

// Consume increments used_count unless the usage limit is already reached.
// ErrConflict means the limit was hit.
func (r *PromotionRepo) Consume(ctx context.Context, promotionID, userID, orderID uint64, now time.Time) error {
	ext := r.db.Ext(ctx)
	res, err := ext.ExecContext(ctx,
		`UPDATE promotions SET used_count = used_count + 1
		 WHERE id = ? AND (usage_limit = 0 OR used_count < usage_limit)`, promotionID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	_, err = ext.ExecContext(ctx,
		`INSERT INTO promotion_usages (promotion_id, user_id, order_id, created_at) VALUES (?, ?, ?, ?)`,
		promotionID, userID, orderID, database.TS(now))
	return err
}

// ReleaseByOrder returns an order's promotion usage, if any.  It reports
// whether a usage existed.
func (r *PromotionRepo) ReleaseByOrder(ctx context.Context, orderID uint64) (bool, error) {
	ext := r.db.Ext(ctx)
	var promotionID uint64
	err := sqlx.GetContext(ctx, ext, &promotionID,
		`SELECT promotion_id FROM promotion_usages WHERE order_id = ?`, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if _, err := ext.ExecContext(ctx, `DELETE FROM promotion_usages WHERE order_id = ?`, orderID); err != nil {
		return false, err
	}
	_, err = ext.ExecContext(ctx,
		`UPDATE promotions SET used_count = used_count - 1 WHERE id = ? AND used_count > 0`, promotionID)
	return err == nil, err
}
