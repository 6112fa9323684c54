package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/naftal-tire/allocation-service/internal/domain"
)

// RequestRepository serves the read-only views of the request ledger.
// Mutations go through Store.Within exclusively.
type RequestRepository struct {
	db *sql.DB
}

func NewRequestRepository(db *sql.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

const requestColumns = `
	id, user_id, tire_id, station_id, status, quantity,
	year, token, redeemed, created_at, delivered_at
`

func (r *RequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.TireRequest, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+`
		FROM tire_requests
		WHERE id = $1
	`, id)
	return scanRequest(row)
}

func (r *RequestRepository) GetByToken(ctx context.Context, token string) (*domain.TireRequest, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+`
		FROM tire_requests
		WHERE token = $1
	`, token)
	return scanRequest(row)
}

func (r *RequestRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.TireRequest, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+requestColumns+`
		FROM tire_requests
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var requests []*domain.TireRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

func (r *RequestRepository) GetStatusHistory(ctx context.Context, requestID uuid.UUID) ([]*domain.RequestStatusEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, request_id, status, actor, note, created_at
		FROM request_status_events
		WHERE request_id = $1
		ORDER BY created_at ASC
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("get status history: %w", err)
	}
	defer rows.Close()

	var events []*domain.RequestStatusEvent
	for rows.Next() {
		ev := &domain.RequestStatusEvent{}
		if err := rows.Scan(&ev.ID, &ev.RequestID, &ev.Status, &ev.Actor, &ev.Note, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan status event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row rowScanner) (*domain.TireRequest, error) {
	req := &domain.TireRequest{}
	var stationID uuid.NullUUID
	var deliveredAt sql.NullTime

	err := row.Scan(
		&req.ID,
		&req.UserID,
		&req.TireID,
		&stationID,
		&req.Status,
		&req.Quantity,
		&req.Year,
		&req.Token,
		&req.Redeemed,
		&req.CreatedAt,
		&deliveredAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan request: %w", err)
	}

	req.StationID = stationID.UUID
	if deliveredAt.Valid {
		req.DeliveredAt = &deliveredAt.Time
	}
	return req, nil
}
