package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AllocationStore hands out one atomic unit of work. Everything executed in
// fn commits together or not at all; returning an error rolls back.
type AllocationStore interface {
	Within(ctx context.Context, fn func(tx AllocationTx) error) error
}

// AllocationTx is the transactional surface of the engine. It is implemented
// by the Postgres store and by the in-memory store used in tests.
type AllocationTx interface {
	// ReserveStock decrements quantity only if enough is available, as a
	// single conditional update. ok=false means insufficient stock or no
	// such inventory row; it is an expected outcome, not an error.
	ReserveStock(ctx context.Context, stationID, tireID uuid.UUID, qty int) (ok bool, remaining int, err error)

	// ReleaseStock is the compensating increment used on cancellation.
	ReleaseStock(ctx context.Context, stationID, tireID uuid.UUID, qty int) (remaining int, err error)

	InsertRequest(ctx context.Context, req *TireRequest) error
	GetRequestForUpdate(ctx context.Context, id uuid.UUID) (*TireRequest, error)
	UpdateRequestStatus(ctx context.Context, id uuid.UUID, status Status) error
	MarkRequestDelivered(ctx context.Context, id uuid.UUID, deliveredAt time.Time) error
	AppendStatusEvent(ctx context.Context, ev *RequestStatusEvent) error

	// SumQuotaUsed totals requested quantities for the (user, category,
	// year) window, skipping the excluded statuses.
	SumQuotaUsed(ctx context.Context, userID uuid.UUID, category Category, year int, excluded []Status) (int, error)
}

// TireCatalog resolves catalog entries. Missing ids surface ErrItemNotFound.
type TireCatalog interface {
	GetTire(ctx context.Context, id uuid.UUID) (*Tire, error)
}

// EligibilityChecker is the external verification collaborator. The engine
// only consumes the verdict; producing it is not its responsibility.
type EligibilityChecker interface {
	IsEligible(ctx context.Context, userID uuid.UUID) (bool, error)
}

// StockMirror is the best-effort read cache of stock levels. Writes may
// fail; callers log and move on. It is never consulted for reservations.
type StockMirror interface {
	SetStock(ctx context.Context, stationID, tireID uuid.UUID, quantity int) error
}

// Lifecycle event types published after commit.
const (
	EventRequestCreated       = "request.created"
	EventRequestStatusChanged = "request.status_changed"
	EventRequestCancelled     = "request.cancelled"
	EventRequestDelivered     = "request.delivered"
)

// EventPublisher pushes lifecycle notifications to the broker, best-effort.
type EventPublisher interface {
	PublishRequestEvent(ctx context.Context, eventType string, req *TireRequest, note string) error
}
