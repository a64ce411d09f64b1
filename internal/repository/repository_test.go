package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking/internal/database"
	"github.com/iliyamo/cinema-booking/internal/database/dbtest"
	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/repository"
)

var t0 = time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)

func TestReservationRepo_UniqueSeat(t *testing.T) {
	db := dbtest.New(t)
	repo := repository.NewReservationRepo(db)
	ctx := context.Background()
	show, seats := dbtest.Showtime(t, db, 1, 1, 3)

	require.NoError(t, repo.InsertHeld(ctx, show, 10, seats[:2], t0.Add(time.Minute), t0))
	err := repo.InsertHeld(ctx, show, 11, seats[1:], t0.Add(time.Minute), t0)
	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err))

	rows, err := repo.ListByShowtime(ctx, show)
	require.NoError(t, err)
	require.Len(t, rows, 2, "the failed batch must not leave a partial insert")
	for _, r := range rows {
		assert.Equal(t, uint64(10), r.HolderID)
		assert.Equal(t, model.ReservationHeld, r.State)
		assert.True(t, r.ExpiresAt.Equal(t0.Add(time.Minute)))
	}
}

func TestReservationRepo_ConfirmSkipsExpired(t *testing.T) {
	db := dbtest.New(t)
	repo := repository.NewReservationRepo(db)
	ctx := context.Background()
	show, seats := dbtest.Showtime(t, db, 1, 1, 2)

	require.NoError(t, repo.InsertHeld(ctx, show, 10, seats[:1], t0.Add(time.Minute), t0))
	require.NoError(t, repo.InsertHeld(ctx, show, 10, seats[1:], t0.Add(-time.Second), t0.Add(-time.Minute)))

	n, err := repo.Confirm(ctx, show, 10, seats, 99, t0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	swept, err := repo.DeleteExpired(ctx, t0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), swept)

	freed, err := repo.DeleteByOrder(ctx, 99)
	require.NoError(t, err)
	assert.Equal(t, int64(1), freed)
}

func TestLoyaltyRepo_ReverseClampsAtZero(t *testing.T) {
	db := dbtest.New(t)
	repo := repository.NewLoyaltyRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.Ensure(ctx, 5, t0))
	require.NoError(t, repo.Ensure(ctx, 5, t0), "second ensure is a no-op")
	require.NoError(t, repo.ApplyPayment(ctx, 5, 40, 100_000, t0))

	// points spent elsewhere meanwhile
	_, err := db.ExecContext(ctx, `UPDATE loyalty_accounts SET points = 10 WHERE user_id = 5`)
	require.NoError(t, err)

	require.NoError(t, repo.ReverseOrder(ctx, 5, 0, 40, 150_000, t0))
	acc, err := repo.Get(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(0), acc.Points)
	assert.Equal(t, int64(0), acc.TotalSpent)
	assert.Equal(t, int64(0), acc.YearlySpent)
}

func TestLoyaltyRepo_ReserveNeverOverdraws(t *testing.T) {
	db := dbtest.New(t)
	repo := repository.NewLoyaltyRepo(db)
	ctx := context.Background()

	ok, err := repo.Reserve(ctx, 6, 1, t0)
	require.NoError(t, err)
	assert.False(t, ok, "no account")

	dbtest.LoyaltyAccount(t, db, 6, 100, model.DefaultTier, 0, t0.Year())
	ok, err = repo.Reserve(ctx, 6, 60, t0)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.Reserve(ctx, 6, 60, t0)
	require.NoError(t, err)
	assert.False(t, ok, "only 40 left")

	require.NoError(t, repo.Restore(ctx, 6, 60, t0))
	acc, err := repo.Get(ctx, 6)
	require.NoError(t, err)
	assert.Equal(t, int64(100), acc.Points)
}

func TestLoyaltyRepo_TiersOrdered(t *testing.T) {
	db := dbtest.New(t)
	tiers, err := repository.NewLoyaltyRepo(db).Tiers(context.Background())
	require.NoError(t, err)
	require.Len(t, tiers, 4)
	assert.Equal(t, "BRONZE", tiers[0].Name)
	assert.Equal(t, "PLATINUM", tiers[3].Name)
	assert.Equal(t, 200, tiers[3].EarnRateBP)
}

func TestOrderRepo_NotFound(t *testing.T) {
	db := dbtest.New(t)
	_, err := repository.NewOrderRepo(db).GetByCode(context.Background(), "ORD-missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
