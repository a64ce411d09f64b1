package service

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/iliyamo/cinema-booking/internal/clock"
	"github.com/iliyamo/cinema-booking/internal/database"
	"github.com/iliyamo/cinema-booking/internal/logging"
	"github.com/iliyamo/cinema-booking/internal/metrics"
	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/repository"
)

const holdAttempts = 3

// Ledger owns every reservation row.  Other components request transitions
// through it and never write the reservations table themselves.
type Ledger struct {
	db           *database.DB
	reservations *repository.ReservationRepo
	seats        *repository.SeatRepo
	showtimes    *repository.ShowtimeRepo
	clock        clock.Clock
	defaultTTL   time.Duration
}

func NewLedger(db *database.DB, clk clock.Clock, defaultTTL time.Duration) *Ledger {
	return &Ledger{
		db:           db,
		reservations: repository.NewReservationRepo(db),
		seats:        repository.NewSeatRepo(db),
		showtimes:    repository.NewShowtimeRepo(db),
		clock:        clk,
		defaultTTL:   defaultTTL,
	}
}

type HoldRequest struct {
	ShowtimeID uint64
	SeatIDs    []uint64
	HolderID   uint64
	TTL        time.Duration // zero, or anything above the ledger default, uses the default
}

type HoldResult struct {
	ShowtimeID   uint64    `json:"showtime_id"`
	GrantedSeats []uint64  `json:"seat_ids"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Hold claims every requested seat for the holder or none of them.  Seats the
// holder already holds are extended to the new deadline.
func (l *Ledger) Hold(ctx context.Context, req HoldRequest) (res HoldResult, err error) {
	ctx, span := tracer.Start(ctx, "Ledger.Hold", trace.WithAttributes(
		attribute.Int64("showtime_id", int64(req.ShowtimeID)),
		attribute.Int("seats", len(req.SeatIDs)),
	))
	defer func() { endSpan(span, err) }()

	seatIDs, err := normalizeSeats(req.SeatIDs)
	if err != nil {
		return HoldResult{}, err
	}
	ttl := req.TTL
	if ttl <= 0 || ttl > l.defaultTTL {
		ttl = l.defaultTTL
	}

	for attempt := 1; ; attempt++ {
		res, err = l.hold(ctx, req.ShowtimeID, req.HolderID, seatIDs, ttl)
		if !database.IsRetryable(err) || attempt == holdAttempts {
			break
		}
	}

	if database.IsUniqueViolation(err) {
		// lost the insert race; report who holds what now
		err = l.conflictAfterRace(ctx, req.ShowtimeID, req.HolderID, seatIDs)
	}

	log := logging.FromContext(ctx).WithField("showtime_id", req.ShowtimeID).WithField("holder_id", req.HolderID)
	var conflict *ConflictError
	switch {
	case err == nil:
		metrics.HoldRequests.WithLabelValues("granted").Inc()
		log.WithField("seats", res.GrantedSeats).Info("seats held")
	case errors.As(err, &conflict):
		metrics.HoldRequests.WithLabelValues("conflict").Inc()
		log.WithField("unavailable", conflict.SeatIDs).Info("hold rejected")
	case errors.Is(err, ErrValidation):
		metrics.HoldRequests.WithLabelValues("invalid").Inc()
	default:
		metrics.HoldRequests.WithLabelValues("error").Inc()
	}
	return res, err
}

func (l *Ledger) hold(ctx context.Context, showtimeID, holderID uint64, seatIDs []uint64, ttl time.Duration) (HoldResult, error) {
	var res HoldResult
	err := l.db.WithTx(ctx, func(ctx context.Context) error {
		now := l.clock.Now()

		existing, err := l.seats.ExistingForShowtime(ctx, showtimeID, seatIDs)
		if err != nil {
			return err
		}
		if len(existing) != len(seatIDs) {
			return invalid(CodeInvalidSeats, "seats %v are not part of showtime %d", lo.Without(seatIDs, existing...), showtimeID)
		}

		// lazily reclaim lapsed holds on exactly these seats
		if _, err := l.reservations.DeleteExpiredForSeats(ctx, showtimeID, seatIDs, now); err != nil {
			return err
		}

		rows, err := l.reservations.LockSeats(ctx, showtimeID, seatIDs)
		if err != nil {
			return err
		}
		var own, taken []uint64
		for _, r := range rows {
			if r.HolderID == holderID && r.State == model.ReservationHeld {
				own = append(own, r.SeatID)
			} else {
				taken = append(taken, r.SeatID)
			}
		}
		if len(taken) > 0 {
			return &ConflictError{ShowtimeID: showtimeID, SeatIDs: taken}
		}

		expiresAt := now.Add(ttl)
		if len(own) > 0 {
			if _, err := l.reservations.Extend(ctx, showtimeID, holderID, own, expiresAt, now); err != nil {
				return err
			}
		}
		if err := l.reservations.InsertHeld(ctx, showtimeID, holderID, lo.Without(seatIDs, own...), expiresAt, now); err != nil {
			return err
		}
		res = HoldResult{ShowtimeID: showtimeID, GrantedSeats: seatIDs, ExpiresAt: expiresAt}
		return nil
	})
	return res, err
}

func (l *Ledger) conflictAfterRace(ctx context.Context, showtimeID, holderID uint64, seatIDs []uint64) error {
	rows, err := l.reservations.ListForSeats(ctx, showtimeID, seatIDs)
	if err != nil {
		return err
	}
	now := l.clock.Now()
	taken := lo.FilterMap(rows, func(r model.Reservation, _ int) (uint64, bool) {
		return r.SeatID, r.HolderID != holderID && !r.Expired(now)
	})
	if len(taken) == 0 {
		taken = seatIDs
	}
	return &ConflictError{ShowtimeID: showtimeID, SeatIDs: taken}
}

// Release removes the holder's HELD rows.  An empty seatIDs releases all
// seats the holder holds on the showtime.  Rows in any other state, or held
// by someone else, are left alone.
func (l *Ledger) Release(ctx context.Context, showtimeID uint64, seatIDs []uint64, holderID uint64) (int, error) {
	ids := lo.Uniq(lo.Compact(seatIDs))
	if len(seatIDs) > 0 && len(ids) == 0 {
		return 0, nil
	}
	n, err := l.reservations.DeleteHeld(ctx, showtimeID, holderID, ids)
	if err != nil {
		return 0, err
	}
	metrics.SeatsReleased.WithLabelValues("released").Add(float64(n))
	return int(n), nil
}

// Confirm binds the holder's still-valid holds to an order.  If any seat is
// no longer held, nothing is confirmed and ErrHoldNotFound is returned.  Run
// inside the caller's transaction so the order and the seats commit
// together.
func (l *Ledger) Confirm(ctx context.Context, showtimeID uint64, seatIDs []uint64, holderID, orderID uint64) (int, error) {
	seatIDs, err := normalizeSeats(seatIDs)
	if err != nil {
		return 0, err
	}
	var n int64
	err = l.db.WithTx(ctx, func(ctx context.Context) error {
		var err error
		n, err = l.reservations.Confirm(ctx, showtimeID, holderID, seatIDs, orderID, l.clock.Now())
		if err != nil {
			return err
		}
		if int(n) != len(seatIDs) {
			return ErrHoldNotFound
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Sweep deletes every HELD row whose deadline passed before now.
func (l *Ledger) Sweep(ctx context.Context, now time.Time) (int, error) {
	n, err := l.reservations.DeleteExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	metrics.SeatsReleased.WithLabelValues("expired").Add(float64(n))
	return int(n), nil
}

// ReleaseOrder frees the CONFIRMED seats backing an order.
func (l *Ledger) ReleaseOrder(ctx context.Context, orderID uint64) (int, error) {
	n, err := l.reservations.DeleteByOrder(ctx, orderID)
	if err != nil {
		return 0, err
	}
	metrics.SeatsReleased.WithLabelValues("order").Add(float64(n))
	return int(n), nil
}

// Availability reports each seat of the showtime as FREE, HELD or SOLD.
// Holds past their deadline count as FREE even before the sweeper runs.
func (l *Ledger) Availability(ctx context.Context, showtimeID uint64) ([]model.SeatAvailability, error) {
	if _, err := l.showtimes.GetByID(ctx, showtimeID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	seats, err := l.seats.ListByShowtime(ctx, showtimeID)
	if err != nil {
		return nil, err
	}
	rows, err := l.reservations.ListByShowtime(ctx, showtimeID)
	if err != nil {
		return nil, err
	}
	now := l.clock.Now()
	bySeat := lo.KeyBy(rows, func(r model.Reservation) uint64 { return r.SeatID })

	out := make([]model.SeatAvailability, len(seats))
	for i, s := range seats {
		out[i] = model.SeatAvailability{Seat: s, Status: model.SeatFree}
		r, ok := bySeat[s.ID]
		switch {
		case !ok || r.Expired(now):
		case r.State == model.ReservationConfirmed:
			out[i].Status = model.SeatSold
		default:
			until := r.ExpiresAt
			out[i].Status = model.SeatHeld
			out[i].HeldUntil = &until
		}
	}
	return out, nil
}

// Holds returns the holder's live holds on a showtime, ordered by seat.
// Lapsed holds and confirmed seats are left out.
func (l *Ledger) Holds(ctx context.Context, showtimeID, holderID uint64) ([]HoldResult, error) {
	rows, err := l.reservations.ListByHolder(ctx, showtimeID, holderID)
	if err != nil {
		return nil, err
	}
	now := l.clock.Now()
	live := lo.Filter(rows, func(r model.Reservation, _ int) bool {
		return r.State == model.ReservationHeld && !r.Expired(now)
	})
	// seats extended together share a deadline
	byExpiry := lo.GroupBy(live, func(r model.Reservation) int64 { return r.ExpiresAt.UnixNano() })
	out := make([]HoldResult, 0, len(byExpiry))
	for _, group := range byExpiry {
		out = append(out, HoldResult{
			ShowtimeID:   showtimeID,
			GrantedSeats: lo.Map(group, func(r model.Reservation, _ int) uint64 { return r.SeatID }),
			ExpiresAt:    group[0].ExpiresAt,
		})
	}
	slices.SortFunc(out, func(a, b HoldResult) int { return a.ExpiresAt.Compare(b.ExpiresAt) })
	return out, nil
}

// normalizeSeats dedupes and sorts a batch.  Sorting gives every writer the
// same lock order.
func normalizeSeats(ids []uint64) ([]uint64, error) {
	if len(ids) == 0 {
		return nil, invalid(CodeInvalidSeats, "at least one seat is required")
	}
	if lo.Contains(ids, 0) {
		return nil, invalid(CodeInvalidSeats, "seat ids must be positive")
	}
	out := lo.Uniq(ids)
	slices.Sort(out)
	return out, nil
}
