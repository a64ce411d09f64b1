package model

import "time"

const DefaultTier = "BRONZE"

// LoyaltyTier sets the earning multiplier.  EarnRateBP is in basis points of
// 1x, so 125 earns 1.25 points per 1000 spent.
type LoyaltyTier struct {
	Name           string `db:"name" json:"name"`
	Rank           int    `db:"rank" json:"rank"`
	MinYearlySpent int64  `db:"min_yearly_spent" json:"min_yearly_spent"`
	EarnRateBP     int    `db:"earn_rate_bp" json:"earn_rate_bp"`
}

type LoyaltyAccount struct {
	UserID      uint64    `json:"user_id"`
	Points      int64     `json:"points"`
	Tier        string    `json:"tier"`
	TotalSpent  int64     `json:"total_spent"`
	YearlySpent int64     `json:"yearly_spent"`
	SpentYear   int       `json:"spent_year"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type LoyaltyTxKind string

const (
	LoyaltyEarn    LoyaltyTxKind = "EARN"
	LoyaltyRedeem  LoyaltyTxKind = "REDEEM"
	LoyaltyRestore LoyaltyTxKind = "RESTORE"
	LoyaltyRevoke  LoyaltyTxKind = "REVOKE"
)
