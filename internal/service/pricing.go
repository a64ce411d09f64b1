package service

import (
	"time"

	"github.com/iliyamo/cinema-booking/internal/model"
)

// PricedSeat is a seat with the price the client saw when selecting it.
type PricedSeat struct {
	SeatID uint64 `json:"seat_id"`
	Price  int64  `json:"price"`
}

// AddonItem is a concession line (popcorn, drinks) priced per unit.
type AddonItem struct {
	AddonID  uint64 `json:"addon_id"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
}

const (
	// maxLoyaltyShare caps the loyalty discount at half the subtotal.
	maxLoyaltyShare = 2
	// maxOrderAmount bounds a subtotal so that percentage discounts and
	// earn rates cannot overflow int64.
	maxOrderAmount int64 = 1_000_000_000_000_000
)

// subtotal sums the caller's price snapshot.  The running sum never exceeds
// maxOrderAmount.
func subtotal(seats []PricedSeat, addons []AddonItem) (int64, error) {
	var sum int64
	for _, s := range seats {
		if s.Price < 0 {
			return 0, invalid(CodeInvalidItems, "seat %d has a negative price", s.SeatID)
		}
		if s.Price > maxOrderAmount-sum {
			return 0, invalid(CodeInvalidItems, "order total exceeds %d", maxOrderAmount)
		}
		sum += s.Price
	}
	for _, a := range addons {
		if a.AddonID == 0 || a.Quantity <= 0 || a.Price < 0 {
			return 0, invalid(CodeInvalidItems, "addon %d needs a positive quantity and a non-negative price", a.AddonID)
		}
		if a.Price > 0 && int64(a.Quantity) > (maxOrderAmount-sum)/a.Price {
			return 0, invalid(CodeInvalidItems, "order total exceeds %d", maxOrderAmount)
		}
		sum += a.Price * int64(a.Quantity)
	}
	return sum, nil
}

// loyaltyDiscount converts points into a discount of at most half the
// subtotal.  When the cap bites, only the points needed to reach it are
// spent, rounded up.
func loyaltyDiscount(subtotal, points, pointValue int64) (discount, pointsUsed int64) {
	if points <= 0 || pointValue <= 0 || subtotal <= 0 {
		return 0, 0
	}
	limit := subtotal / maxLoyaltyShare
	if points <= limit/pointValue {
		return points * pointValue, points
	}
	return limit, (limit + pointValue - 1) / pointValue
}

// checkPromotion applies the eligibility rules in the order a customer
// would want them explained.
func checkPromotion(p model.Promotion, userUsages int, subtotal int64, now time.Time) error {
	switch {
	case !p.IsActive:
		return invalid(CodePromotionInactive, "promotion %s is not active", p.Code)
	case now.Before(p.StartsAt) || now.After(p.EndsAt):
		return invalid(CodePromotionExpired, "promotion %s is not valid at this time", p.Code)
	case p.UsageLimit > 0 && p.UsedCount >= p.UsageLimit:
		return invalid(CodePromotionExhausted, "promotion %s has been fully used", p.Code)
	case p.PerUserLimit > 0 && userUsages >= p.PerUserLimit:
		return invalid(CodePromotionUserLimit, "promotion %s already used the maximum number of times", p.Code)
	case subtotal < p.MinOrderAmount:
		return invalid(CodePromotionMinAmount, "promotion %s needs an order of at least %d", p.Code, p.MinOrderAmount)
	}
	return nil
}

// promotionDiscount computes the promotion's discount on subtotal, capped by
// its maximum and by what is left after the loyalty discount.
func promotionDiscount(p model.Promotion, subtotal, remaining int64) int64 {
	var d int64
	switch p.DiscountType {
	case model.DiscountPercentage:
		d = subtotal * p.DiscountValue / 100
	case model.DiscountFixed:
		d = p.DiscountValue
	}
	if p.MaxDiscount > 0 && d > p.MaxDiscount {
		d = p.MaxDiscount
	}
	if d > remaining {
		d = remaining
	}
	if d < 0 {
		d = 0
	}
	return d
}

// earnedPoints is floor(total / 1000 × rate), rate given in basis points of 1x.
func earnedPoints(total int64, rateBP int) int64 {
	if total <= 0 || rateBP <= 0 {
		return 0
	}
	return total * int64(rateBP) / (1000 * 100)
}

// tierFor returns the highest tier whose threshold yearlySpent meets.  tiers
// must be ordered by rank.
func tierFor(tiers []model.LoyaltyTier, yearlySpent int64) model.LoyaltyTier {
	best := model.LoyaltyTier{Name: model.DefaultTier, EarnRateBP: 100}
	for _, t := range tiers {
		if yearlySpent >= t.MinYearlySpent {
			best = t
		}
	}
	return best
}

func tierByName(tiers []model.LoyaltyTier, name string) model.LoyaltyTier {
	for _, t := range tiers {
		if t.Name == name {
			return t
		}
	}
	return model.LoyaltyTier{Name: model.DefaultTier, EarnRateBP: 100}
}
