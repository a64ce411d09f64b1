package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/cinema-booking/internal/clock"
	"github.com/iliyamo/cinema-booking/internal/database"
	"github.com/iliyamo/cinema-booking/internal/metrics"
	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/queue"
	"github.com/iliyamo/cinema-booking/internal/repository"
)

const (
	sweepBatch    = 200
	sweepLeaseKey = "booking:sweeper"
	expiredReason = "expired"
)

// Locker grants a short exclusive lease so only one instance sweeps per tick.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

type SweepReport struct {
	ExpiredHolds    int  `json:"expired_holds"`
	CancelledOrders int  `json:"cancelled_orders"`
	Skipped         bool `json:"skipped,omitempty"`
}

// Sweeper reclaims lapsed holds and cancels PENDING orders whose booking
// window has closed.  It only touches rows whose deadline already passed, so
// it never races a live hold.
type Sweeper struct {
	db       *database.DB
	ledger   *Ledger
	orders   *repository.OrderRepo
	cancels  *canceller
	events   queue.Publisher
	locker   Locker
	clock    clock.Clock
	interval time.Duration
	log      *logrus.Entry
}

// NewSweeper builds a sweeper.  locker may be nil on a single instance.
func NewSweeper(db *database.DB, ledger *Ledger, events queue.Publisher, locker Locker, clk clock.Clock, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if events == nil {
		events = queue.NopPublisher{}
	}
	return &Sweeper{
		db:       db,
		ledger:   ledger,
		orders:   repository.NewOrderRepo(db),
		cancels:  newCanceller(db, ledger, clk),
		events:   events,
		locker:   locker,
		clock:    clk,
		interval: interval,
		log:      logrus.WithField("component", "sweeper"),
	}
}

// Run sweeps every interval until ctx is cancelled.  A failed cycle is
// logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	s.log.WithField("interval", s.interval.String()).Info("sweeper started")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return nil
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.log.WithError(err).Error("sweep failed")
			}
		}
	}
}

// RunOnce performs the reservation sweep, then the pending-order sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (rep SweepReport, err error) {
	ctx, span := tracer.Start(ctx, "Sweeper.RunOnce")
	defer func() { endSpan(span, err) }()

	if s.locker != nil {
		ok, err := s.locker.TryLock(ctx, sweepLeaseKey, s.interval)
		if err != nil {
			// sweeping twice is safe, skipping is not
			s.log.WithError(err).Warn("sweeper lease unavailable, sweeping anyway")
		} else if !ok {
			return SweepReport{Skipped: true}, nil
		} else {
			defer func() {
				if err := s.locker.Unlock(context.WithoutCancel(ctx), sweepLeaseKey); err != nil {
					s.log.WithError(err).Warn("release sweeper lease")
				}
			}()
		}
	}

	start := time.Now()
	defer func() { metrics.SweepDuration.Observe(time.Since(start).Seconds()) }()

	now := s.clock.Now()
	if rep.ExpiredHolds, err = s.ledger.Sweep(ctx, now); err != nil {
		return rep, err
	}
	if rep.CancelledOrders, err = s.cancelExpiredOrders(ctx, now); err != nil {
		return rep, err
	}
	if rep.ExpiredHolds > 0 || rep.CancelledOrders > 0 {
		s.log.WithFields(logrus.Fields{
			"expired_holds":    rep.ExpiredHolds,
			"cancelled_orders": rep.CancelledOrders,
		}).Info("sweep completed")
	}
	return rep, nil
}

func (s *Sweeper) cancelExpiredOrders(ctx context.Context, now time.Time) (int, error) {
	cancelled := 0
	for {
		ids, err := s.orders.ListExpiredPending(ctx, now, sweepBatch)
		if err != nil {
			return cancelled, err
		}
		progress := 0
		for _, id := range ids {
			ok, err := s.cancelExpired(ctx, id, now)
			if err != nil {
				// one bad order must not block the rest
				s.log.WithError(err).WithField("order_id", id).Error("cancel expired order")
				continue
			}
			if ok {
				cancelled++
			}
			progress++
		}
		if len(ids) < sweepBatch || progress == 0 {
			return cancelled, nil
		}
	}
}

// cancelExpired re-reads the order under lock; a callback may have paid it
// since it was listed.
func (s *Sweeper) cancelExpired(ctx context.Context, orderID uint64, now time.Time) (bool, error) {
	var (
		o       model.Order
		seatIDs []uint64
		done    bool
	)
	err := s.db.WithTx(ctx, func(ctx context.Context) error {
		locked, err := s.orders.GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if locked.Status != model.OrderPending || !locked.BookingExpiresAt.Before(now) {
			return nil
		}
		if seatIDs, err = s.cancels.seatIDs(ctx, locked.ID); err != nil {
			return err
		}
		if o, err = s.cancels.cancel(ctx, locked, expiredReason, "expired"); err != nil {
			return err
		}
		done = true
		return nil
	})
	if err != nil || !done {
		return false, err
	}
	publish(ctx, s.events, orderEvent(queue.EventOrderCancelled, o, seatIDs, expiredReason, s.clock.Now()))
	return true, nil
}
