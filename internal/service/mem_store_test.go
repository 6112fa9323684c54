package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/naftal-tire/allocation-service/internal/domain"
)

// memStore is an in-memory AllocationStore used by the service tests. A
// single mutex serializes units of work and a snapshot taken at begin
// restores the state when fn fails, matching the all-or-nothing contract of
// the SQL store.
type memStore struct {
	mu         sync.Mutex
	stock      map[stockKey]int
	requests   map[uuid.UUID]*domain.TireRequest
	events     []*domain.RequestStatusEvent
	categories map[uuid.UUID]domain.Category
}

type stockKey struct {
	station uuid.UUID
	tire    uuid.UUID
}

func newMemStore() *memStore {
	return &memStore{
		stock:      make(map[stockKey]int),
		requests:   make(map[uuid.UUID]*domain.TireRequest),
		categories: make(map[uuid.UUID]domain.Category),
	}
}

func (s *memStore) Within(ctx context.Context, fn func(tx domain.AllocationTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.copyState()
	if err := fn(&memTx{store: s}); err != nil {
		s.restoreState(snapshot)
		return err
	}
	return nil
}

type memState struct {
	stock    map[stockKey]int
	requests map[uuid.UUID]*domain.TireRequest
	events   []*domain.RequestStatusEvent
}

func (s *memStore) copyState() memState {
	st := memState{
		stock:    make(map[stockKey]int, len(s.stock)),
		requests: make(map[uuid.UUID]*domain.TireRequest, len(s.requests)),
		events:   make([]*domain.RequestStatusEvent, len(s.events)),
	}
	for k, v := range s.stock {
		st.stock[k] = v
	}
	for k, v := range s.requests {
		cp := *v
		st.requests[k] = &cp
	}
	copy(st.events, s.events)
	return st
}

func (s *memStore) restoreState(st memState) {
	s.stock = st.stock
	s.requests = st.requests
	s.events = st.events
}

func (s *memStore) stockLevel(station, tire uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stock[stockKey{station, tire}]
}

func (s *memStore) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *memStore) eventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

type memTx struct {
	store *memStore
}

func (t *memTx) ReserveStock(ctx context.Context, stationID, tireID uuid.UUID, qty int) (bool, int, error) {
	key := stockKey{stationID, tireID}
	current, exists := t.store.stock[key]
	if !exists || current < qty {
		return false, 0, nil
	}
	t.store.stock[key] = current - qty
	return true, current - qty, nil
}

func (t *memTx) ReleaseStock(ctx context.Context, stationID, tireID uuid.UUID, qty int) (int, error) {
	key := stockKey{stationID, tireID}
	t.store.stock[key] += qty
	return t.store.stock[key], nil
}

func (t *memTx) InsertRequest(ctx context.Context, req *domain.TireRequest) error {
	cp := *req
	t.store.requests[req.ID] = &cp
	return nil
}

func (t *memTx) GetRequestForUpdate(ctx context.Context, id uuid.UUID) (*domain.TireRequest, error) {
	req, ok := t.store.requests[id]
	if !ok {
		return nil, domain.ErrRequestNotFound
	}
	cp := *req
	return &cp, nil
}

func (t *memTx) UpdateRequestStatus(ctx context.Context, id uuid.UUID, status domain.Status) error {
	req, ok := t.store.requests[id]
	if !ok {
		return domain.ErrRequestNotFound
	}
	req.Status = status
	return nil
}

func (t *memTx) MarkRequestDelivered(ctx context.Context, id uuid.UUID, deliveredAt time.Time) error {
	req, ok := t.store.requests[id]
	if !ok {
		return domain.ErrRequestNotFound
	}
	req.Status = domain.StatusDelivered
	req.Redeemed = true
	at := deliveredAt
	req.DeliveredAt = &at
	return nil
}

func (t *memTx) AppendStatusEvent(ctx context.Context, ev *domain.RequestStatusEvent) error {
	cp := *ev
	t.store.events = append(t.store.events, &cp)
	return nil
}

func (t *memTx) SumQuotaUsed(ctx context.Context, userID uuid.UUID, category domain.Category, year int, excluded []domain.Status) (int, error) {
	skip := make(map[domain.Status]bool, len(excluded))
	for _, s := range excluded {
		skip[s] = true
	}

	used := 0
	for _, req := range t.store.requests {
		if req.UserID != userID || req.Year != year || skip[req.Status] {
			continue
		}
		if t.store.categories[req.TireID] != category {
			continue
		}
		used += req.Quantity
	}
	return used, nil
}

type fakeCatalog struct {
	tires map[uuid.UUID]*domain.Tire
}

func (f *fakeCatalog) GetTire(ctx context.Context, id uuid.UUID) (*domain.Tire, error) {
	tire, ok := f.tires[id]
	if !ok {
		return nil, domain.ErrItemNotFound
	}
	return tire, nil
}

type fakeEligibility struct {
	eligible bool
}

func (f *fakeEligibility) IsEligible(ctx context.Context, userID uuid.UUID) (bool, error) {
	return f.eligible, nil
}

type fakeMirror struct {
	mu    sync.Mutex
	calls []mirrorCall
	fail  bool
}

type mirrorCall struct {
	station  uuid.UUID
	tire     uuid.UUID
	quantity int
}

func (f *fakeMirror) SetStock(ctx context.Context, stationID, tireID uuid.UUID, quantity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return context.DeadlineExceeded
	}
	f.calls = append(f.calls, mirrorCall{stationID, tireID, quantity})
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (f *fakePublisher) PublishRequestEvent(ctx context.Context, eventType string, req *domain.TireRequest, note string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
	return nil
}
