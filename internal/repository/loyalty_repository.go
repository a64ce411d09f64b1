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

type loyaltyAccountRow struct {
	UserID      uint64        `db:"user_id"`
	Points      int64         `db:"points"`
	Tier        string        `db:"tier"`
	TotalSpent  int64         `db:"total_spent"`
	YearlySpent int64         `db:"yearly_spent"`
	SpentYear   int           `db:"spent_year"`
	UpdatedAt   database.Time `db:"updated_at"`
}

// LoyaltyRepo keeps point balances and spend counters.  Every mutation is a
// single arithmetic UPDATE so concurrent orders never lose an increment.
// Debits are conditional (Reserve) or clamped at zero (ReverseOrder).
type LoyaltyRepo struct {
	db *database.DB
}

func NewLoyaltyRepo(db *database.DB) *LoyaltyRepo { return &LoyaltyRepo{db: db} }

// Get returns ErrNotFound when the user has no account yet.
func (r *LoyaltyRepo) Get(ctx context.Context, userID uint64) (model.LoyaltyAccount, error) {
	return r.get(ctx, userID, false)
}

// GetForUpdate row-locks the account.
func (r *LoyaltyRepo) GetForUpdate(ctx context.Context, userID uint64) (model.LoyaltyAccount, error) {
	return r.get(ctx, userID, true)
}

func (r *LoyaltyRepo) get(ctx context.Context, userID uint64, lock bool) (model.LoyaltyAccount, error) {
	q := `SELECT user_id, points, tier, total_spent, yearly_spent, spent_year, updated_at
		  FROM loyalty_accounts WHERE user_id = ?`
	if lock {
		q += r.db.ForUpdate()
	}
	var row loyaltyAccountRow
	err := sqlx.GetContext(ctx, r.db.Ext(ctx), &row, q, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.LoyaltyAccount{}, ErrNotFound
	}
	if err != nil {
		return model.LoyaltyAccount{}, err
	}
	return model.LoyaltyAccount{
		UserID:      row.UserID,
		Points:      row.Points,
		Tier:        row.Tier,
		TotalSpent:  row.TotalSpent,
		YearlySpent: row.YearlySpent,
		SpentYear:   row.SpentYear,
		UpdatedAt:   row.UpdatedAt.Time,
	}, nil
}

// Ensure creates an empty account for the user unless one exists.
func (r *LoyaltyRepo) Ensure(ctx context.Context, userID uint64, now time.Time) error {
	_, err := r.db.Ext(ctx).ExecContext(ctx,
		`INSERT INTO loyalty_accounts (user_id, points, tier, total_spent, yearly_spent, spent_year, updated_at)
		 VALUES (?, 0, ?, 0, 0, ?, ?)`,
		userID, model.DefaultTier, now.Year(), database.TS(now))
	if database.IsUniqueViolation(err) {
		return nil
	}
	return err
}

// Reserve takes points off the balance when, and only when, the balance
// covers them.  It reports false when it does not.
func (r *LoyaltyRepo) Reserve(ctx context.Context, userID uint64, points int64, now time.Time) (bool, error) {
	res, err := r.db.Ext(ctx).ExecContext(ctx,
		`UPDATE loyalty_accounts SET points = points - ?, updated_at = ?
		 WHERE user_id = ? AND points >= ?`,
		points, database.TS(now), userID, points)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// Restore gives reserved points back.
func (r *LoyaltyRepo) Restore(ctx context.Context, userID uint64, points int64, now time.Time) error {
	_, err := r.db.Ext(ctx).ExecContext(ctx,
		`UPDATE loyalty_accounts SET points = points + ?, updated_at = ? WHERE user_id = ?`,
		points, database.TS(now), userID)
	return err
}

// ApplyPayment credits pointsEarned and adds amount to both spend counters.
// Redeemed points were already taken by Reserve.
func (r *LoyaltyRepo) ApplyPayment(ctx context.Context, userID uint64, pointsEarned, amount int64, now time.Time) error {
	_, err := r.db.Ext(ctx).ExecContext(ctx,
		`UPDATE loyalty_accounts
		 SET points = points + ?,
		     total_spent = total_spent + ?,
		     yearly_spent = yearly_spent + ?,
		     updated_at = ?
		 WHERE user_id = ?`,
		pointsEarned, amount, amount, database.TS(now), userID)
	return err
}

// ReverseOrder returns pointsUsed, revokes pointsEarned and takes amount off
// the spend counters, flooring every counter at zero.
func (r *LoyaltyRepo) ReverseOrder(ctx context.Context, userID uint64, pointsUsed, pointsEarned, amount int64, now time.Time) error {
	delta := pointsUsed - pointsEarned
	_, err := r.db.Ext(ctx).ExecContext(ctx,
		`UPDATE loyalty_accounts
		 SET points = CASE WHEN points + ? < 0 THEN 0 ELSE points + ? END,
		     total_spent = CASE WHEN total_spent < ? THEN 0 ELSE total_spent - ? END,
		     yearly_spent = CASE WHEN yearly_spent < ? THEN 0 ELSE yearly_spent - ? END,
		     updated_at = ?
		 WHERE user_id = ?`,
		delta, delta, amount, amount, amount, amount, database.TS(now), userID)
	return err
}

func (r *LoyaltyRepo) SetTier(ctx context.Context, userID uint64, tier string, now time.Time) error {
	_, err := r.db.Ext(ctx).ExecContext(ctx,
		`UPDATE loyalty_accounts SET tier = ?, updated_at = ? WHERE user_id = ?`,
		tier, database.TS(now), userID)
	return err
}

// Tiers returns the tier table ordered from lowest to highest rank.
func (r *LoyaltyRepo) Tiers(ctx context.Context) ([]model.LoyaltyTier, error) {
	var tiers []model.LoyaltyTier
	rank := r.db.RankColumn()
	err := sqlx.SelectContext(ctx, r.db.Ext(ctx), &tiers,
		`SELECT name, `+rank+`, min_yearly_spent, earn_rate_bp FROM loyalty_tiers ORDER BY `+rank)
	return tiers, err
}

// ResetYear zeroes yearly_spent of accounts last counted in an earlier year.
func (r *LoyaltyRepo) ResetYear(ctx context.Context, year int, now time.Time) (int64, error) {
	res, err := r.db.Ext(ctx).ExecContext(ctx,
		`UPDATE loyalty_accounts SET yearly_spent = 0, spent_year = ?, updated_at = ? WHERE spent_year < ?`,
		year, database.TS(now), year)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// AddTransaction appends an audit row.  Zero-point entries are skipped.
func (r *LoyaltyRepo) AddTransaction(ctx context.Context, userID, orderID uint64, kind model.LoyaltyTxKind, points int64, now time.Time) error {
	if points == 0 {
		return nil
	}
	_, err := r.db.Ext(ctx).ExecContext(ctx,
		`INSERT INTO loyalty_transactions (user_id, order_id, kind, points, created_at) VALUES (?, ?, ?, ?, ?)`,
		userID, orderID, kind, points, database.TS(now))
	return err
}

// Transactions lists an order's loyalty audit rows.
func (r *LoyaltyRepo) Transactions(ctx context.Context, orderID uint64) (map[model.LoyaltyTxKind]int64, error) {
	var rows []struct {
		Kind   string `db:"kind"`
		Points int64  `db:"points"`
	}
	err := sqlx.SelectContext(ctx, r.db.Ext(ctx), &rows,
		`SELECT kind, points FROM loyalty_transactions WHERE order_id = ?`, orderID)
	if err != nil {
		return nil, err
	}
	out := make(map[model.LoyaltyTxKind]int64, len(rows))
	for _, row := range rows {
		out[model.LoyaltyTxKind(row.Kind)] += row.Points
	}
	return out, nil
}
