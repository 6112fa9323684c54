package domain

import (
	"github.com/google/uuid"
)

// Category splits the catalog into the two quota classes used by the
// annual allocation program.
type Category string

const (
	CategoryLight Category = "LEGER"
	CategoryHeavy Category = "LOURD"
)

func (c Category) Valid() bool {
	return c == CategoryLight || c == CategoryHeavy
}

// Tire is an immutable catalog entry. The allocation engine only reads it.
type Tire struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Category  Category  `json:"category" db:"category"`
	Dimension string    `json:"dimension" db:"dimension"`
}

// Station is a distribution point holding physical stock.
type Station struct {
	ID   uuid.UUID `json:"id" db:"id"`
	Name string    `json:"name" db:"name"`
	City string    `json:"city" db:"city"`
}

// StationStock is one (station, tire) inventory row. Quantity never goes
// negative: every decrement is conditioned on sufficient stock in the same
// statement that performs it.
type StationStock struct {
	StationID uuid.UUID `json:"station_id" db:"station_id"`
	TireID    uuid.UUID `json:"tire_id" db:"tire_id"`
	Quantity  int       `json:"quantity" db:"quantity"`
}
