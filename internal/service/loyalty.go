package service

import (
	"context"
	"errors"

	"github.com/iliyamo/cinema-booking/internal/clock"
	"github.com/iliyamo/cinema-booking/internal/database"
	"github.com/iliyamo/cinema-booking/internal/logging"
	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/repository"
)

// LoyaltyService covers the loyalty maintenance outside the payment path.
type LoyaltyService struct {
	loyalty *repository.LoyaltyRepo
	clock   clock.Clock
}

func NewLoyaltyService(db *database.DB, clk clock.Clock) *LoyaltyService {
	return &LoyaltyService{loyalty: repository.NewLoyaltyRepo(db), clock: clk}
}

// Balance returns the user's account, or an empty BRONZE account when the
// user never paid for an order.
func (s *LoyaltyService) Balance(ctx context.Context, userID uint64) (model.LoyaltyAccount, error) {
	acc, err := s.loyalty.Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.LoyaltyAccount{UserID: userID, Tier: model.DefaultTier, SpentYear: s.clock.Now().Year()}, nil
	}
	return acc, err
}

// ResetYear starts a new accounting year: yearly_spent goes back to zero on
// every account last counted before year.  Tiers are kept.  A zero year
// means the current one.
func (s *LoyaltyService) ResetYear(ctx context.Context, year int) (int64, error) {
	now := s.clock.Now()
	if year == 0 {
		year = now.Year()
	}
	n, err := s.loyalty.ResetYear(ctx, year, now)
	if err != nil {
		return 0, err
	}
	logging.FromContext(ctx).WithField("year", year).WithField("accounts", n).Info("loyalty year reset")
	return n, nil
}
