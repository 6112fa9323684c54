package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/naftal-tire/allocation-service/internal/domain"
)

type TireRepository struct {
	db *sql.DB
}

func NewTireRepository(db *sql.DB) *TireRepository {
	return &TireRepository{db: db}
}

func (r *TireRepository) GetTire(ctx context.Context, id uuid.UUID) (*domain.Tire, error) {
	tire := &domain.Tire{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, category, dimension FROM tires WHERE id = $1
	`, id).Scan(&tire.ID, &tire.Category, &tire.Dimension)

	if err == sql.ErrNoRows {
		return nil, domain.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tire: %w", err)
	}
	return tire, nil
}

func (r *TireRepository) ListTires(ctx context.Context) ([]*domain.Tire, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, category, dimension FROM tires ORDER BY category, dimension
	`)
	if err != nil {
		return nil, fmt.Errorf("list tires: %w", err)
	}
	defer rows.Close()

	var tires []*domain.Tire
	for rows.Next() {
		t := &domain.Tire{}
		if err := rows.Scan(&t.ID, &t.Category, &t.Dimension); err != nil {
			return nil, fmt.Errorf("scan tire: %w", err)
		}
		tires = append(tires, t)
	}
	return tires, rows.Err()
}
