package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/naftal-tire/allocation-service/internal/domain"
)

// InventoryRepository reads stock levels and stations. Stock is mutated only
// through the reserve/release primitives on the transactional store.
type InventoryRepository struct {
	db *sql.DB
}

func NewInventoryRepository(db *sql.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

func (r *InventoryRepository) GetStock(ctx context.Context, stationID, tireID uuid.UUID) (int, error) {
	var quantity int
	err := r.db.QueryRowContext(ctx, `
		SELECT quantity FROM station_inventory
		WHERE station_id = $1 AND tire_id = $2
	`, stationID, tireID).Scan(&quantity)

	if err == sql.ErrNoRows {
		return 0, domain.ErrItemNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get stock: %w", err)
	}
	return quantity, nil
}

func (r *InventoryRepository) ListStationStock(ctx context.Context, stationID uuid.UUID) ([]*domain.StationStock, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT station_id, tire_id, quantity
		FROM station_inventory
		WHERE station_id = $1
		ORDER BY tire_id
	`, stationID)
	if err != nil {
		return nil, fmt.Errorf("list station stock: %w", err)
	}
	defer rows.Close()

	var stock []*domain.StationStock
	for rows.Next() {
		s := &domain.StationStock{}
		if err := rows.Scan(&s.StationID, &s.TireID, &s.Quantity); err != nil {
			return nil, fmt.Errorf("scan station stock: %w", err)
		}
		stock = append(stock, s)
	}
	return stock, rows.Err()
}

func (r *InventoryRepository) ListStations(ctx context.Context) ([]*domain.Station, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, city FROM stations ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	defer rows.Close()

	var stations []*domain.Station
	for rows.Next() {
		st := &domain.Station{}
		if err := rows.Scan(&st.ID, &st.Name, &st.City); err != nil {
			return nil, fmt.Errorf("scan station: %w", err)
		}
		stations = append(stations, st)
	}
	return stations, rows.Err()
}
