package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// UserRepository backs the eligibility check. Registration and verification
// are handled by a separate system; this engine only reads the verdict.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) IsEligible(ctx context.Context, userID uuid.UUID) (bool, error) {
	var status string
	err := r.db.QueryRowContext(ctx, `
		SELECT verification_status FROM users WHERE id = $1
	`, userID).Scan(&status)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check eligibility: %w", err)
	}
	return status == "VERIFIED", nil
}
