package service

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking/internal/model"
)

func TestLoyaltyDiscount(t *testing.T) {
	cases := []struct {
		name                 string
		subtotal, points     int64
		wantDiscount, wantPt int64
	}{
		{"under cap", 200_000, 30, 30_000, 30},
		{"exactly cap", 200_000, 100, 100_000, 100},
		{"capped", 200_000, 500, 100_000, 100},
		{"capped with rounding", 150_001, 500, 75_000, 75},
		{"odd cap rounds points up", 3_001, 10, 1_500, 2},
		{"no points", 200_000, 0, 0, 0},
		{"empty order", 0, 10, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, used := loyaltyDiscount(tc.subtotal, tc.points, 1000)
			assert.Equal(t, tc.wantDiscount, d)
			assert.Equal(t, tc.wantPt, used)
			assert.LessOrEqual(t, d, tc.subtotal/2)
			assert.LessOrEqual(t, used, tc.points)
		})
	}
}

func TestPromotionDiscount(t *testing.T) {
	pct := model.Promotion{DiscountType: model.DiscountPercentage, DiscountValue: 20, MaxDiscount: 30_000}
	assert.Equal(t, int64(20_000), promotionDiscount(pct, 100_000, 100_000))
	assert.Equal(t, int64(30_000), promotionDiscount(pct, 500_000, 500_000), "capped at max")
	assert.Equal(t, int64(5_000), promotionDiscount(pct, 100_000, 5_000), "clamped to what is left")

	fixed := model.Promotion{DiscountType: model.DiscountFixed, DiscountValue: 50_000}
	assert.Equal(t, int64(50_000), promotionDiscount(fixed, 80_000, 80_000))
	assert.Equal(t, int64(40_000), promotionDiscount(fixed, 80_000, 40_000))
}

// total + loyalty + promotion == subtotal and total >= 0 for arbitrary inputs.
func TestDiscountConservation(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		sub := r.Int63n(1_000_000)
		points := r.Int63n(2_000)
		promo := model.Promotion{DiscountType: model.DiscountFixed, DiscountValue: r.Int63n(1_000_000)}
		if r.Intn(2) == 0 {
			promo = model.Promotion{DiscountType: model.DiscountPercentage, DiscountValue: r.Int63n(101), MaxDiscount: r.Int63n(300_000)}
		}

		loyalty, _ := loyaltyDiscount(sub, points, 1000)
		pd := promotionDiscount(promo, sub, sub-loyalty)
		total := sub - loyalty - pd

		require.GreaterOrEqual(t, total, int64(0))
		require.Equal(t, sub, total+loyalty+pd)
	}
}

func TestCheckPromotion(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	base := model.Promotion{
		Code: "SPRING", IsActive: true, UsageLimit: 5, UsedCount: 1, PerUserLimit: 1, MinOrderAmount: 50_000,
		StartsAt: now.Add(-time.Hour), EndsAt: now.Add(time.Hour),
	}
	require.NoError(t, checkPromotion(base, 0, 60_000, now))

	code := func(err error) string {
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		return ve.Code
	}
	inactive := base
	inactive.IsActive = false
	assert.Equal(t, CodePromotionInactive, code(checkPromotion(inactive, 0, 60_000, now)))
	assert.Equal(t, CodePromotionExpired, code(checkPromotion(base, 0, 60_000, now.Add(2*time.Hour))))
	full := base
	full.UsedCount = 5
	assert.Equal(t, CodePromotionExhausted, code(checkPromotion(full, 0, 60_000, now)))
	assert.Equal(t, CodePromotionUserLimit, code(checkPromotion(base, 1, 60_000, now)))
	assert.Equal(t, CodePromotionMinAmount, code(checkPromotion(base, 0, 10_000, now)))
}

func TestEarnedPointsAndTiers(t *testing.T) {
	assert.Equal(t, int64(200), earnedPoints(200_000, 100))
	assert.Equal(t, int64(250), earnedPoints(200_000, 125))
	assert.Equal(t, int64(0), earnedPoints(999, 100))
	assert.Equal(t, int64(1), earnedPoints(1_999, 100), "floored")

	tiers := []model.LoyaltyTier{
		{Name: "BRONZE", Rank: 0, MinYearlySpent: 0, EarnRateBP: 100},
		{Name: "SILVER", Rank: 1, MinYearlySpent: 5_000_000, EarnRateBP: 125},
		{Name: "GOLD", Rank: 2, MinYearlySpent: 15_000_000, EarnRateBP: 150},
	}
	assert.Equal(t, "BRONZE", tierFor(tiers, 4_999_999).Name)
	assert.Equal(t, "SILVER", tierFor(tiers, 5_000_000).Name)
	assert.Equal(t, "GOLD", tierFor(tiers, 99_000_000).Name)
	assert.Equal(t, 125, tierByName(tiers, "SILVER").EarnRateBP)
	assert.Equal(t, "BRONZE", tierByName(tiers, "UNKNOWN").Name)
}

func TestSubtotalValidation(t *testing.T) {
	sum, err := subtotal([]PricedSeat{{1, 100_000}, {2, 100_000}}, []AddonItem{{AddonID: 3, Quantity: 2, Price: 25_000}})
	require.NoError(t, err)
	assert.Equal(t, int64(250_000), sum)

	_, err = subtotal([]PricedSeat{{1, -1}}, nil)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = subtotal(nil, []AddonItem{{AddonID: 3, Quantity: 0, Price: 1}})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSubtotalRejectsOverflow(t *testing.T) {
	huge := int64(1) << 62
	cases := map[string]struct {
		seats  []PricedSeat
		addons []AddonItem
	}{
		"addon line wraps":  {addons: []AddonItem{{AddonID: 1, Quantity: 4, Price: huge}}},
		"sum wraps":         {seats: []PricedSeat{{1, huge}}, addons: []AddonItem{{AddonID: 1, Quantity: 1, Price: huge}, {AddonID: 2, Quantity: 1, Price: huge}}},
		"seats alone":       {seats: []PricedSeat{{1, maxOrderAmount}, {2, 1}}},
		"quantity too high": {addons: []AddonItem{{AddonID: 1, Quantity: math.MaxInt32, Price: maxOrderAmount / 1000}}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := subtotal(tc.seats, tc.addons)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, CodeInvalidItems, ve.Code)
		})
	}

	sum, err := subtotal([]PricedSeat{{1, maxOrderAmount - 10}}, []AddonItem{{AddonID: 1, Quantity: 2, Price: 5}})
	require.NoError(t, err)
	assert.Equal(t, maxOrderAmount, sum, "the bound itself is accepted")
}
