package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/naftal-tire/allocation-service/internal/domain"
)

// syncTimeout bounds the post-commit cache and broker pushes. They run
// detached from the caller's context: the transaction is already committed
// and these side effects must not block or fail the response.
const syncTimeout = 3 * time.Second

// RequestService is the allocation engine: it issues requests against stock
// and quota, and drives the post-creation lifecycle.
type RequestService struct {
	store       domain.AllocationStore
	tires       domain.TireCatalog
	eligibility domain.EligibilityChecker
	mirror      domain.StockMirror
	publisher   domain.EventPublisher
	quota       QuotaPolicy
}

func NewRequestService(
	store domain.AllocationStore,
	tires domain.TireCatalog,
	eligibility domain.EligibilityChecker,
	mirror domain.StockMirror,
	publisher domain.EventPublisher,
	quota QuotaPolicy,
) *RequestService {
	return &RequestService{
		store:       store,
		tires:       tires,
		eligibility: eligibility,
		mirror:      mirror,
		publisher:   publisher,
		quota:       quota,
	}
}

// CreateResult is returned on a successful allocation.
type CreateResult struct {
	Request        *domain.TireRequest
	RemainingStock int
	Quota          Availability
}

// Create runs the allocation protocol: preconditions, quota check, then one
// atomic unit holding the conditional stock reservation, the request row and
// its first status event. Stock reservation and persistence are
// all-or-nothing; the cache mirror and event publication happen after commit
// and are best-effort.
func (s *RequestService) Create(ctx context.Context, userID, tireID, stationID uuid.UUID, quantity int) (*CreateResult, error) {
	if stationID == uuid.Nil {
		return nil, domain.ErrStationRequired
	}
	if quantity < 1 || quantity > domain.MaxUnitsPerRequest {
		return nil, domain.ErrInvalidQuantity
	}

	tire, err := s.tires.GetTire(ctx, tireID)
	if err != nil {
		return nil, err
	}

	eligible, err := s.eligibility.IsEligible(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !eligible {
		return nil, domain.ErrNotEligible
	}

	req, err := domain.NewTireRequest(userID, tireID, stationID, quantity)
	if err != nil {
		return nil, err
	}

	var remaining int
	var quotaUsed int
	err = s.store.Within(ctx, func(tx domain.AllocationTx) error {
		// The quota sum is read in the same transaction as the
		// reservation. Under read-committed, two concurrent requests
		// from the same user can both see the pre-commit figure; the
		// quota is advisory per user, so that window is accepted.
		// Stock is not advisory and stays protected by the
		// conditional decrement below.
		used, err := tx.SumQuotaUsed(ctx, userID, tire.Category, req.Year, s.quota.ExcludedStatuses)
		if err != nil {
			return err
		}
		quotaUsed = used

		if avail := s.quota.Check(tire.Category, used, quantity); !avail.Available {
			return &domain.QuotaExceededError{Remaining: avail.Remaining, Max: avail.Max}
		}

		ok, left, err := tx.ReserveStock(ctx, stationID, tireID, quantity)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrOutOfStock
		}
		remaining = left

		if err := tx.InsertRequest(ctx, req); err != nil {
			return err
		}

		return tx.AppendStatusEvent(ctx, &domain.RequestStatusEvent{
			ID:        uuid.New(),
			RequestID: req.ID,
			Status:    domain.StatusPending,
			Actor:     userID.String(),
			Note:      "request created",
			CreatedAt: time.Now(),
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("request_id", req.ID.String()).
		Str("station_id", stationID.String()).
		Int("quantity", quantity).
		Int("remaining_stock", remaining).
		Msg("allocation request created")

	go s.syncStock(stationID, tireID, remaining)
	go s.publish(domain.EventRequestCreated, req, "")

	used := quotaUsed + quantity
	return &CreateResult{
		Request:        req,
		RemainingStock: remaining,
		Quota: Availability{
			Available: used < s.quota.MaxQuota(tire.Category),
			Used:      used,
			Remaining: s.quota.MaxQuota(tire.Category) - used,
			Max:       s.quota.MaxQuota(tire.Category),
		},
	}, nil
}

// CheckAvailability exposes the quota window for display, outside any
// allocation attempt.
func (s *RequestService) CheckAvailability(ctx context.Context, userID uuid.UUID, category domain.Category, requested, year int) (Availability, error) {
	var avail Availability
	err := s.store.Within(ctx, func(tx domain.AllocationTx) error {
		used, err := tx.SumQuotaUsed(ctx, userID, category, year, s.quota.ExcludedStatuses)
		if err != nil {
			return err
		}
		avail = s.quota.Check(category, used, requested)
		return nil
	})
	return avail, err
}

// syncStock mirrors the authoritative stock level into the read cache.
// Failures are logged and swallowed: the cache heals on the next sync and
// every reservation decision reads the database anyway.
func (s *RequestService) syncStock(stationID, tireID uuid.UUID, quantity int) {
	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	if err := s.mirror.SetStock(ctx, stationID, tireID, quantity); err != nil {
		log.Warn().
			Err(err).
			Str("station_id", stationID.String()).
			Str("tire_id", tireID.String()).
			Msg("stock cache sync failed")
	}
}

func (s *RequestService) publish(eventType string, req *domain.TireRequest, note string) {
	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	if err := s.publisher.PublishRequestEvent(ctx, eventType, req, note); err != nil {
		log.Warn().
			Err(err).
			Str("request_id", req.ID.String()).
			Str("event_type", eventType).
			Msg("request event publish failed")
	}
}
