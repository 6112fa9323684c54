package domain

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a tire request.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPreparing Status = "PREPARING"
	StatusReady     Status = "READY"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

// MaxUnitsPerRequest bounds a single request regardless of quota headroom.
const MaxUnitsPerRequest = 4

// statusTransitions lists the accepted forward moves. DELIVERED and
// CANCELLED are terminal.
var statusTransitions = map[Status][]Status{
	StatusPending:   {StatusPreparing, StatusCancelled},
	StatusPreparing: {StatusReady, StatusCancelled},
	StatusReady:     {StatusDelivered, StatusCancelled},
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPreparing, StatusReady, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TireRequest is the aggregate root of one allocation. It is created once,
// mutated only through the lifecycle methods below, and never deleted.
type TireRequest struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	UserID      uuid.UUID  `json:"user_id" db:"user_id"`
	TireID      uuid.UUID  `json:"tire_id" db:"tire_id"`
	StationID   uuid.UUID  `json:"station_id" db:"station_id"`
	Status      Status     `json:"status" db:"status"`
	Quantity    int        `json:"quantity" db:"quantity"`
	Year        int        `json:"year" db:"year"`
	Token       string     `json:"token" db:"token"`
	Redeemed    bool       `json:"redeemed" db:"redeemed"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`
}

// RequestStatusEvent is one append-only audit row, written on every accepted
// transition including creation.
type RequestStatusEvent struct {
	ID        uuid.UUID `json:"id" db:"id"`
	RequestID uuid.UUID `json:"request_id" db:"request_id"`
	Status    Status    `json:"status" db:"status"`
	Actor     string    `json:"actor" db:"actor"`
	Note      string    `json:"note,omitempty" db:"note"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

func NewTireRequest(userID, tireID, stationID uuid.UUID, quantity int) (*TireRequest, error) {
	if stationID == uuid.Nil {
		return nil, ErrStationRequired
	}
	if quantity < 1 || quantity > MaxUnitsPerRequest {
		return nil, ErrInvalidQuantity
	}

	return &TireRequest{
		ID:        uuid.New(),
		UserID:    userID,
		TireID:    tireID,
		StationID: stationID,
		Status:    StatusPending,
		Quantity:  quantity,
		Year:      time.Now().Year(),
		Token:     NewRedemptionToken(),
		CreatedAt: time.Now(),
	}, nil
}

// TransitionTo moves the request forward without side effects. Cancellation
// and delivery have dedicated methods because they carry extra guards.
func (r *TireRequest) TransitionTo(next Status) error {
	if !r.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	r.Status = next
	return nil
}

// Cancel rejects late or duplicate cancellations. A delivered request keeps
// its tires; a cancelled one must not release stock twice.
func (r *TireRequest) Cancel() error {
	if !r.Status.CanTransitionTo(StatusCancelled) {
		return ErrInvalidTransition
	}
	r.Status = StatusCancelled
	return nil
}

// MarkDelivered consumes the redemption token and stamps the handoff time.
func (r *TireRequest) MarkDelivered(at time.Time) error {
	if r.Redeemed {
		return ErrAlreadyRedeemed
	}
	if !r.Status.CanTransitionTo(StatusDelivered) {
		return ErrInvalidTransition
	}
	r.Status = StatusDelivered
	r.Redeemed = true
	r.DeliveredAt = &at
	return nil
}

// HoldsStock reports whether the request currently ties up reserved units,
// i.e. cancellation must put them back.
func (r *TireRequest) HoldsStock() bool {
	switch r.Status {
	case StatusPending, StatusPreparing, StatusReady:
		return true
	}
	return false
}

// NewRedemptionToken returns an opaque 256-bit random identifier. Uniqueness
// is additionally enforced by the UNIQUE constraint on the token column.
func NewRedemptionToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform is broken; an id is
		// still required, so fall back to the uuid source.
		return uuid.NewString() + uuid.NewString()
	}
	return hex.EncodeToString(buf)
}
