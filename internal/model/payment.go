package model

import "time"

type PaymentStatus string

const (
	PaymentSuccess  PaymentStatus = "SUCCESS"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

// Payment records one gateway outcome for an order.
type Payment struct {
	ID            uint64
	OrderID       uint64
	Provider      string
	TxnRef        string
	TransactionNo string
	Amount        int64
	ResponseCode  string
	Status        PaymentStatus
	RawPayload    string
	CreatedAt     time.Time
}
