package service

import (
	"github.com/naftal-tire/allocation-service/internal/domain"
)

// QuotaPolicy is the per-category annual allocation cap. Caps are plain
// configuration so new categories need no code change.
type QuotaPolicy struct {
	Caps map[domain.Category]int

	// ExcludedStatuses lists the request statuses whose quantities do not
	// count against the window. The legacy system also excluded DELIVERED,
	// which let delivered units be requested again; only cancellations are
	// exempt here.
	ExcludedStatuses []domain.Status
}

func DefaultQuotaPolicy() QuotaPolicy {
	return QuotaPolicy{
		Caps: map[domain.Category]int{
			domain.CategoryLight: 4,
			domain.CategoryHeavy: 8,
		},
		ExcludedStatuses: []domain.Status{domain.StatusCancelled},
	}
}

func (p QuotaPolicy) MaxQuota(category domain.Category) int {
	return p.Caps[category]
}

// Availability is the quota headroom snapshot returned to callers.
type Availability struct {
	Available bool `json:"available"`
	Used      int  `json:"used"`
	Remaining int  `json:"remaining"`
	Max       int  `json:"max"`
}

// Check compares the consumed figure against the cap. used comes from the
// request ledger, read inside the same transaction as the reservation.
func (p QuotaPolicy) Check(category domain.Category, used, requested int) Availability {
	max := p.MaxQuota(category)
	remaining := max - used
	if remaining < 0 {
		remaining = 0
	}
	return Availability{
		Available: requested <= remaining,
		Used:      used,
		Remaining: remaining,
		Max:       max,
	}
}
