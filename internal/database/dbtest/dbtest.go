// Package dbtest opens migrated in-memory SQLite databases for tests.
package dbtest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/lithammer/shortuuid/v3"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking/internal/database"
)

// New returns a fresh, migrated database private to t.
func New(t testing.TB) *database.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", shortuuid.New())
	db, err := database.Open(database.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

// Showtime seeds a room with rows × perRow seats and one showtime in it.
// Seat ids are returned in row-major order.
func Showtime(t testing.TB, db *database.DB, roomID uint64, rows, perRow int) (uint64, []uint64) {
	t.Helper()
	ctx := context.Background()
	res, err := db.ExecContext(ctx,
		`INSERT INTO showtimes (room_id, movie_title, starts_at) VALUES (?, ?, ?)`,
		roomID, "Test Feature", database.TS(time.Now().Add(48*time.Hour)))
	require.NoError(t, err)
	showID, err := res.LastInsertId()
	require.NoError(t, err)

	var seatIDs []uint64
	for r := 0; r < rows; r++ {
		label := string(rune('A' + r))
		for n := 1; n <= perRow; n++ {
			res, err := db.ExecContext(ctx,
				`INSERT INTO seats (room_id, row_label, seat_number, seat_type) VALUES (?, ?, ?, 'STANDARD')`,
				roomID, label, n)
			require.NoError(t, err)
			id, err := res.LastInsertId()
			require.NoError(t, err)
			seatIDs = append(seatIDs, uint64(id))
		}
	}
	return uint64(showID), seatIDs
}

// Promotion inserts a promotion row and returns its id.
type Promotion struct {
	Code           string
	Type           string
	Value          int64
	MaxDiscount    int64
	MinOrderAmount int64
	UsageLimit     int
	PerUserLimit   int
	StartsAt       time.Time
	EndsAt         time.Time
	Inactive       bool
}

func InsertPromotion(t testing.TB, db *database.DB, p Promotion) uint64 {
	t.Helper()
	active := 1
	if p.Inactive {
		active = 0
	}
	res, err := db.ExecContext(context.Background(),
		`INSERT INTO promotions (code, discount_type, discount_value, max_discount, min_order_amount,
			usage_limit, used_count, per_user_limit, starts_at, ends_at, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?)`,
		p.Code, p.Type, p.Value, p.MaxDiscount, p.MinOrderAmount, p.UsageLimit, p.PerUserLimit,
		database.TS(p.StartsAt), database.TS(p.EndsAt), active)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return uint64(id)
}

// LoyaltyAccount creates or overwrites a loyalty account.
func LoyaltyAccount(t testing.TB, db *database.DB, userID uint64, points int64, tier string, yearlySpent int64, year int) {
	t.Helper()
	ctx := context.Background()
	_, err := db.ExecContext(ctx, `DELETE FROM loyalty_accounts WHERE user_id = ?`, userID)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx,
		`INSERT INTO loyalty_accounts (user_id, points, tier, total_spent, yearly_spent, spent_year, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userID, points, tier, yearlySpent, yearlySpent, year, database.TS(time.Now()))
	require.NoError(t, err)
}
