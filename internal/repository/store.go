package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/naftal-tire/allocation-service/internal/domain"
)

// Store wraps the database handle and opens atomic units of work for the
// allocation engine.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Within runs fn inside one transaction. Any error from fn rolls the whole
// unit back, so a failed reservation leaves no request row behind and a
// failed insert releases the reserved stock.
func (s *Store) Within(ctx context.Context, fn func(tx domain.AllocationTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&allocationTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type allocationTx struct {
	tx *sql.Tx
}

// ReserveStock collapses check-then-act into one conditional update. The
// WHERE clause carries both the row match and the sufficiency condition, so
// concurrent callers cannot oversell: the row count tells who won.
func (a *allocationTx) ReserveStock(ctx context.Context, stationID, tireID uuid.UUID, qty int) (bool, int, error) {
	var remaining int
	err := a.tx.QueryRowContext(ctx, `
		UPDATE station_inventory
		SET quantity = quantity - $3
		WHERE station_id = $1 AND tire_id = $2 AND quantity >= $3
		RETURNING quantity
	`, stationID, tireID, qty).Scan(&remaining)

	if err == sql.ErrNoRows {
		// Insufficient stock or no inventory row at all; both fail
		// closed without creating anything.
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("reserve stock: %w", err)
	}
	return true, remaining, nil
}

func (a *allocationTx) ReleaseStock(ctx context.Context, stationID, tireID uuid.UUID, qty int) (int, error) {
	var remaining int
	err := a.tx.QueryRowContext(ctx, `
		UPDATE station_inventory
		SET quantity = quantity + $3
		WHERE station_id = $1 AND tire_id = $2
		RETURNING quantity
	`, stationID, tireID, qty).Scan(&remaining)

	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("release stock: no inventory row for station %s tire %s", stationID, tireID)
	}
	if err != nil {
		return 0, fmt.Errorf("release stock: %w", err)
	}
	return remaining, nil
}

func (a *allocationTx) InsertRequest(ctx context.Context, req *domain.TireRequest) error {
	_, err := a.tx.ExecContext(ctx, `
		INSERT INTO tire_requests (
			id, user_id, tire_id, station_id, status, quantity,
			year, token, redeemed, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		req.ID,
		req.UserID,
		req.TireID,
		req.StationID,
		req.Status,
		req.Quantity,
		req.Year,
		req.Token,
		req.Redeemed,
		req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

// GetRequestForUpdate locks the row for the rest of the transaction so a
// racing transition on the same request waits instead of double-applying.
func (a *allocationTx) GetRequestForUpdate(ctx context.Context, id uuid.UUID) (*domain.TireRequest, error) {
	req := &domain.TireRequest{}
	var stationID uuid.NullUUID
	var deliveredAt sql.NullTime
	err := a.tx.QueryRowContext(ctx, `
		SELECT id, user_id, tire_id, station_id, status, quantity,
		       year, token, redeemed, created_at, delivered_at
		FROM tire_requests
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(
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
		return nil, fmt.Errorf("get request for update: %w", err)
	}
	req.StationID = stationID.UUID
	if deliveredAt.Valid {
		req.DeliveredAt = &deliveredAt.Time
	}
	return req, nil
}

func (a *allocationTx) UpdateRequestStatus(ctx context.Context, id uuid.UUID, status domain.Status) error {
	_, err := a.tx.ExecContext(ctx, `
		UPDATE tire_requests SET status = $2 WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("update request status: %w", err)
	}
	return nil
}

func (a *allocationTx) MarkRequestDelivered(ctx context.Context, id uuid.UUID, deliveredAt time.Time) error {
	_, err := a.tx.ExecContext(ctx, `
		UPDATE tire_requests
		SET status = $2, redeemed = TRUE, delivered_at = $3
		WHERE id = $1
	`, id, domain.StatusDelivered, deliveredAt)
	if err != nil {
		return fmt.Errorf("mark request delivered: %w", err)
	}
	return nil
}

func (a *allocationTx) AppendStatusEvent(ctx context.Context, ev *domain.RequestStatusEvent) error {
	_, err := a.tx.ExecContext(ctx, `
		INSERT INTO request_status_events (id, request_id, status, actor, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ev.ID, ev.RequestID, ev.Status, ev.Actor, ev.Note, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("append status event: %w", err)
	}
	return nil
}

func (a *allocationTx) SumQuotaUsed(ctx context.Context, userID uuid.UUID, category domain.Category, year int, excluded []domain.Status) (int, error) {
	statuses := make([]string, len(excluded))
	for i, s := range excluded {
		statuses[i] = string(s)
	}

	var used int
	err := a.tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(r.quantity), 0)
		FROM tire_requests r
		JOIN tires t ON t.id = r.tire_id
		WHERE r.user_id = $1 AND t.category = $2 AND r.year = $3
		  AND r.status <> ALL($4)
	`, userID, category, year, pq.Array(statuses)).Scan(&used)
	if err != nil {
		return 0, fmt.Errorf("sum quota used: %w", err)
	}
	return used, nil
}
