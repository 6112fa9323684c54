package domain

import (
	"errors"
	"fmt"
)

// Allocation outcomes the caller is expected to branch on. These are
// recoverable results, not faults: handlers map them to HTTP statuses and
// the engine guarantees no side effects remain when one is returned.
var (
	ErrNotEligible       = errors.New("user is not eligible for allocation")
	ErrItemNotFound      = errors.New("tire not found")
	ErrRequestNotFound   = errors.New("request not found")
	ErrStationRequired   = errors.New("a station must be specified")
	ErrInvalidQuantity   = errors.New("requested quantity is out of range")
	ErrOutOfStock        = errors.New("insufficient stock at station")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyRedeemed   = errors.New("redemption token already consumed")
)

// QuotaExceededError carries the figures the caller needs to display.
type QuotaExceededError struct {
	Remaining int
	Max       int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("annual quota exceeded: %d of %d units remaining", e.Remaining, e.Max)
}
