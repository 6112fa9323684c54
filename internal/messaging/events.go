package messaging

import (
	"time"

	"github.com/google/uuid"
)

// RequestEvent is the wire envelope for request lifecycle notifications.
// Event types are the domain constants (request.created, request.cancelled,
// request.delivered, request.status_changed).
type RequestEvent struct {
	ID        uuid.UUID `json:"id"`
	RequestID uuid.UUID `json:"request_id"`
	UserID    uuid.UUID `json:"user_id"`
	StationID uuid.UUID `json:"station_id"`
	TireID    uuid.UUID `json:"tire_id"`
	EventType string    `json:"event_type"`
	Status    string    `json:"status"`
	Quantity  int       `json:"quantity"`
	Note      string    `json:"note,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
}
