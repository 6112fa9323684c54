package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/naftal-tire/allocation-service/internal/domain"
)

// Transition moves a request to newStatus. The current status is loaded and
// locked inside the transaction, so racing transitions serialize at the row.
// Cancelling an undelivered request releases its reserved stock in the same
// unit as the status change; delivery consumes the redemption token. Every
// accepted transition appends an audit event.
func (s *RequestService) Transition(ctx context.Context, requestID uuid.UUID, newStatus domain.Status, actor, note string) (*domain.TireRequest, error) {
	if !newStatus.Valid() || newStatus == domain.StatusPending {
		return nil, domain.ErrInvalidTransition
	}

	var req *domain.TireRequest
	restocked := false
	var remaining int

	err := s.store.Within(ctx, func(tx domain.AllocationTx) error {
		current, err := tx.GetRequestForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		req = current

		switch newStatus {
		case domain.StatusCancelled:
			heldStock := current.HoldsStock()
			if err := current.Cancel(); err != nil {
				return err
			}
			if heldStock {
				// Restitution commits together with the status
				// change; the status guard above makes sure it
				// runs at most once per request.
				left, err := tx.ReleaseStock(ctx, current.StationID, current.TireID, current.Quantity)
				if err != nil {
					return err
				}
				remaining = left
				restocked = true
			}
			if err := tx.UpdateRequestStatus(ctx, current.ID, domain.StatusCancelled); err != nil {
				return err
			}

		case domain.StatusDelivered:
			deliveredAt := time.Now()
			if err := current.MarkDelivered(deliveredAt); err != nil {
				return err
			}
			if err := tx.MarkRequestDelivered(ctx, current.ID, deliveredAt); err != nil {
				return err
			}

		default:
			if err := current.TransitionTo(newStatus); err != nil {
				return err
			}
			if err := tx.UpdateRequestStatus(ctx, current.ID, newStatus); err != nil {
				return err
			}
		}

		return tx.AppendStatusEvent(ctx, &domain.RequestStatusEvent{
			ID:        uuid.New(),
			RequestID: current.ID,
			Status:    newStatus,
			Actor:     actor,
			Note:      note,
			CreatedAt: time.Now(),
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("request_id", requestID.String()).
		Str("status", string(newStatus)).
		Str("actor", actor).
		Msg("request status changed")

	if restocked {
		go s.syncStock(req.StationID, req.TireID, remaining)
	}

	switch newStatus {
	case domain.StatusCancelled:
		go s.publish(domain.EventRequestCancelled, req, note)
	case domain.StatusDelivered:
		go s.publish(domain.EventRequestDelivered, req, note)
	default:
		go s.publish(domain.EventRequestStatusChanged, req, note)
	}

	return req, nil
}
