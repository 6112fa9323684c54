package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/naftal-tire/allocation-service/internal/domain"
)

type fixture struct {
	store     *memStore
	svc       *RequestService
	mirror    *fakeMirror
	publisher *fakePublisher

	userID    uuid.UUID
	stationID uuid.UUID
	lightTire uuid.UUID
	heavyTire uuid.UUID
}

func newFixture() *fixture {
	store := newMemStore()
	mirror := &fakeMirror{}
	publisher := &fakePublisher{}

	f := &fixture{
		store:     store,
		mirror:    mirror,
		publisher: publisher,
		userID:    uuid.New(),
		stationID: uuid.New(),
		lightTire: uuid.New(),
		heavyTire: uuid.New(),
	}

	catalog := &fakeCatalog{tires: map[uuid.UUID]*domain.Tire{
		f.lightTire: {ID: f.lightTire, Category: domain.CategoryLight, Dimension: "185/65 R15"},
		f.heavyTire: {ID: f.heavyTire, Category: domain.CategoryHeavy, Dimension: "315/80 R22.5"},
	}}
	store.categories[f.lightTire] = domain.CategoryLight
	store.categories[f.heavyTire] = domain.CategoryHeavy

	f.svc = NewRequestService(
		store, catalog, &fakeEligibility{eligible: true},
		mirror, publisher, DefaultQuotaPolicy(),
	)
	return f
}

func (f *fixture) seedStock(tireID uuid.UUID, qty int) {
	f.store.stock[stockKey{f.stationID, tireID}] = qty
}

func TestCreate_Success(t *testing.T) {
	f := newFixture()
	f.seedStock(f.lightTire, 10)

	result, err := f.svc.Create(context.Background(), f.userID, f.lightTire, f.stationID, 2)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if result.Request.Status != domain.StatusPending {
		t.Errorf("Expected status PENDING, got %s", result.Request.Status)
	}
	if result.RemainingStock != 8 {
		t.Errorf("Expected remaining stock 8, got %d", result.RemainingStock)
	}
	if result.Quota.Used != 2 || result.Quota.Remaining != 2 || result.Quota.Max != 4 {
		t.Errorf("Unexpected quota figures: %+v", result.Quota)
	}
	if len(result.Request.Token) != 64 {
		t.Errorf("Expected 64-char token, got %d chars", len(result.Request.Token))
	}
	if result.Request.Redeemed {
		t.Error("New request must not be redeemed")
	}
	if f.store.requestCount() != 1 {
		t.Errorf("Expected 1 persisted request, got %d", f.store.requestCount())
	}
	if f.store.eventCount() != 1 {
		t.Errorf("Expected 1 status event, got %d", f.store.eventCount())
	}
	if f.store.stockLevel(f.stationID, f.lightTire) != 8 {
		t.Errorf("Expected stock 8, got %d", f.store.stockLevel(f.stationID, f.lightTire))
	}
}

func TestCreate_Preconditions(t *testing.T) {
	f := newFixture()
	f.seedStock(f.lightTire, 10)
	ctx := context.Background()

	if _, err := f.svc.Create(ctx, f.userID, f.lightTire, uuid.Nil, 1); !errors.Is(err, domain.ErrStationRequired) {
		t.Errorf("Expected ErrStationRequired, got %v", err)
	}
	if _, err := f.svc.Create(ctx, f.userID, f.lightTire, f.stationID, 0); !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Errorf("Expected ErrInvalidQuantity for qty=0, got %v", err)
	}
	if _, err := f.svc.Create(ctx, f.userID, f.lightTire, f.stationID, 5); !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Errorf("Expected ErrInvalidQuantity for qty=5, got %v", err)
	}
	if _, err := f.svc.Create(ctx, f.userID, uuid.New(), f.stationID, 1); !errors.Is(err, domain.ErrItemNotFound) {
		t.Errorf("Expected ErrItemNotFound, got %v", err)
	}

	if f.store.requestCount() != 0 {
		t.Errorf("Precondition failures must not persist anything, found %d requests", f.store.requestCount())
	}
}

func TestCreate_NotEligible(t *testing.T) {
	f := newFixture()
	f.seedStock(f.lightTire, 10)
	f.svc.eligibility = &fakeEligibility{eligible: false}

	_, err := f.svc.Create(context.Background(), f.userID, f.lightTire, f.stationID, 1)
	if !errors.Is(err, domain.ErrNotEligible) {
		t.Fatalf("Expected ErrNotEligible, got %v", err)
	}
	if f.store.stockLevel(f.stationID, f.lightTire) != 10 {
		t.Error("Eligibility failure must not touch stock")
	}
}

func TestCreate_QuotaMonotonicity(t *testing.T) {
	f := newFixture()
	f.seedStock(f.lightTire, 20)
	ctx := context.Background()

	// Light category cap is 4: two requests of 2 exhaust the window.
	for i := 0; i < 2; i++ {
		if _, err := f.svc.Create(ctx, f.userID, f.lightTire, f.stationID, 2); err != nil {
			t.Fatalf("Create %d failed: %v", i+1, err)
		}
	}

	_, err := f.svc.Create(ctx, f.userID, f.lightTire, f.stationID, 1)
	var quotaErr *domain.QuotaExceededError
	if !errors.As(err, &quotaErr) {
		t.Fatalf("Expected QuotaExceededError, got %v", err)
	}
	if quotaErr.Remaining != 0 || quotaErr.Max != 4 {
		t.Errorf("Expected remaining=0 max=4, got remaining=%d max=%d", quotaErr.Remaining, quotaErr.Max)
	}

	if f.store.requestCount() != 2 {
		t.Errorf("Quota failure must not persist a request, found %d", f.store.requestCount())
	}
	if f.store.stockLevel(f.stationID, f.lightTire) != 16 {
		t.Errorf("Quota failure must not touch stock, got %d", f.store.stockLevel(f.stationID, f.lightTire))
	}
}

func TestCreate_DeliveredUnitsCountAgainstQuota(t *testing.T) {
	f := newFixture()
	f.seedStock(f.lightTire, 10)
	ctx := context.Background()

	result, err := f.svc.Create(ctx, f.userID, f.lightTire, f.stationID, 4)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	deliver(t, f, result.Request.ID)

	_, err = f.svc.Create(ctx, f.userID, f.lightTire, f.stationID, 1)
	var quotaErr *domain.QuotaExceededError
	if !errors.As(err, &quotaErr) {
		t.Fatalf("Delivered units must stay in the quota window, got %v", err)
	}
}

func TestCreate_CancelledUnitsReturnQuota(t *testing.T) {
	f := newFixture()
	f.seedStock(f.lightTire, 10)
	ctx := context.Background()

	result, err := f.svc.Create(ctx, f.userID, f.lightTire, f.stationID, 4)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := f.svc.Transition(ctx, result.Request.ID, domain.StatusCancelled, "agent-1", "changed mind"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	if _, err := f.svc.Create(ctx, f.userID, f.lightTire, f.stationID, 4); err != nil {
		t.Fatalf("Cancelled units must free the quota window, got %v", err)
	}
}

func TestCreate_OutOfStockAtomicity(t *testing.T) {
	f := newFixture()
	f.seedStock(f.lightTire, 1)

	_, err := f.svc.Create(context.Background(), f.userID, f.lightTire, f.stationID, 2)
	if !errors.Is(err, domain.ErrOutOfStock) {
		t.Fatalf("Expected ErrOutOfStock, got %v", err)
	}

	if f.store.requestCount() != 0 {
		t.Errorf("OutOfStock must leave no request row, found %d", f.store.requestCount())
	}
	if f.store.eventCount() != 0 {
		t.Errorf("OutOfStock must leave no status event, found %d", f.store.eventCount())
	}
	if f.store.stockLevel(f.stationID, f.lightTire) != 1 {
		t.Errorf("OutOfStock must leave stock untouched, got %d", f.store.stockLevel(f.stationID, f.lightTire))
	}
}

func TestCreate_MissingInventoryRowFailsClosed(t *testing.T) {
	f := newFixture()
	// No stock row seeded for this station/tire at all.

	_, err := f.svc.Create(context.Background(), f.userID, f.lightTire, f.stationID, 1)
	if !errors.Is(err, domain.ErrOutOfStock) {
		t.Fatalf("Expected ErrOutOfStock for missing inventory row, got %v", err)
	}
}

func TestCreate_NoOversellUnderConcurrency(t *testing.T) {
	const stock = 5
	const callers = 12

	f := newFixture()
	f.seedStock(f.heavyTire, stock)

	var wg sync.WaitGroup
	results := make(chan error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Distinct users so the stock constraint, not the quota,
			// decides the outcome.
			_, err := f.svc.Create(context.Background(), uuid.New(), f.heavyTire, f.stationID, 1)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes, outOfStock := 0, 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, domain.ErrOutOfStock):
			outOfStock++
		default:
			t.Fatalf("Unexpected error: %v", err)
		}
	}

	if successes != stock {
		t.Errorf("Expected %d successes, got %d", stock, successes)
	}
	if outOfStock != callers-stock {
		t.Errorf("Expected %d OutOfStock, got %d", callers-stock, outOfStock)
	}
	if final := f.store.stockLevel(f.stationID, f.heavyTire); final != 0 {
		t.Errorf("Expected final stock 0, got %d", final)
	}
	if f.store.requestCount() != stock {
		t.Errorf("Expected %d request rows, got %d", stock, f.store.requestCount())
	}
}

func TestCreate_ContendedPairScenario(t *testing.T) {
	f := newFixture()
	f.seedStock(f.heavyTire, 3)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Create(ctx, uuid.New(), f.heavyTire, f.stationID, 2)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes, outOfStock := 0, 0
	for err := range results {
		if err == nil {
			successes++
		} else if errors.Is(err, domain.ErrOutOfStock) {
			outOfStock++
		} else {
			t.Fatalf("Unexpected error: %v", err)
		}
	}
	if successes != 1 || outOfStock != 1 {
		t.Fatalf("Expected exactly one winner, got %d successes and %d OutOfStock", successes, outOfStock)
	}
	if f.store.stockLevel(f.stationID, f.heavyTire) != 1 {
		t.Fatalf("Expected stock 1 after contention, got %d", f.store.stockLevel(f.stationID, f.heavyTire))
	}

	if _, err := f.svc.Create(ctx, uuid.New(), f.heavyTire, f.stationID, 1); err != nil {
		t.Fatalf("Final single-unit request should succeed, got %v", err)
	}
	if f.store.stockLevel(f.stationID, f.heavyTire) != 0 {
		t.Errorf("Expected stock 0, got %d", f.store.stockLevel(f.stationID, f.heavyTire))
	}
}

func deliver(t *testing.T, f *fixture, id uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	for _, status := range []domain.Status{domain.StatusPreparing, domain.StatusReady, domain.StatusDelivered} {
		if _, err := f.svc.Transition(ctx, id, status, "agent-1", ""); err != nil {
			t.Fatalf("Transition to %s failed: %v", status, err)
		}
	}
}
