// Package service implements the seat reservation and booking transaction
// core: the reservation ledger, order creation, payment reconciliation and
// the expiry sweeper.
package service

import (
	"errors"
	"fmt"

	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/payment"
)

// Sentinel error classes.  Business failures are returned as values wrapping
// one of these; anything else is a system error.
var (
	ErrConflict   = errors.New("seats unavailable")
	ErrExpired    = errors.New("expired")
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")

	// ErrHoldNotFound is returned by Confirm when the hold vanished; the
	// booking must be abandoned.
	ErrHoldNotFound = fmt.Errorf("%w: seat hold no longer valid", ErrExpired)
	// ErrOrderExpired is returned for actions on a pending order whose
	// booking window has closed.
	ErrOrderExpired = fmt.Errorf("%w: booking window closed", ErrExpired)

	ErrInvalidSignature  = payment.ErrInvalidSignature
	ErrMalformedCallback = payment.ErrMalformedCallback
	ErrAmountMismatch    = errors.New("callback amount does not match order total")

	ErrIllegalTransition = model.ErrIllegalTransition
)

// ConflictError lists exactly the seats that another holder occupies.
type ConflictError struct {
	ShowtimeID uint64
	SeatIDs    []uint64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("seats %v of showtime %d are held by someone else", e.SeatIDs, e.ShowtimeID)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// Validation codes surfaced to clients.
const (
	CodeInvalidSeats       = "invalid_seats"
	CodeInvalidItems       = "invalid_items"
	CodeInsufficientPoints = "insufficient_points"
	CodePromotionNotFound  = "promotion_not_found"
	CodePromotionInactive  = "promotion_inactive"
	CodePromotionExpired   = "promotion_expired"
	CodePromotionExhausted = "promotion_exhausted"
	CodePromotionUserLimit = "promotion_user_limit"
	CodePromotionMinAmount = "promotion_min_amount"
)

// ValidationError is a local, non-retryable rejection of the input.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(code, format string, args ...any) error {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}
