package model

import "time"

type DiscountType string

const (
	DiscountPercentage DiscountType = "PERCENTAGE"
	DiscountFixed      DiscountType = "FIXED"
)

// Promotion is a discount code.  UsageLimit and PerUserLimit of zero mean
// unlimited; MaxDiscount of zero means uncapped.
type Promotion struct {
	ID             uint64
	Code           string
	DiscountType   DiscountType
	DiscountValue  int64 // percent for PERCENTAGE, currency units for FIXED
	MaxDiscount    int64
	MinOrderAmount int64
	UsageLimit     int
	UsedCount      int
	PerUserLimit   int
	StartsAt       time.Time
	EndsAt         time.Time
	IsActive       bool
}
