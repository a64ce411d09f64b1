package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/cinema-booking/internal/database"
	"github.com/iliyamo/cinema-booking/internal/model"
)

type showtimeRow struct {
	ID         uint64        `db:"id"`
	RoomID     uint64        `db:"room_id"`
	MovieTitle string        `db:"movie_title"`
	StartsAt   database.Time `db:"starts_at"`
}

// ShowtimeRepo reads showtimes from the catalog.
type ShowtimeRepo struct {
	db *database.DB
}

func NewShowtimeRepo(db *database.DB) *ShowtimeRepo { return &ShowtimeRepo{db: db} }

// GetByID returns ErrNotFound for an unknown showtime.
func (r *ShowtimeRepo) GetByID(ctx context.Context, id uint64) (model.Showtime, error) {
	var row showtimeRow
	err := sqlx.GetContext(ctx, r.db.Ext(ctx), &row,
		`SELECT id, room_id, movie_title, starts_at FROM showtimes WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Showtime{}, ErrNotFound
	}
	if err != nil {
		return model.Showtime{}, err
	}
	return model.Showtime{ID: row.ID, RoomID: row.RoomID, MovieTitle: row.MovieTitle, StartsAt: row.StartsAt.Time}, nil
}
