package handlers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/naftal-tire/allocation-service/internal/domain"
	"github.com/naftal-tire/allocation-service/internal/repository"
	"github.com/naftal-tire/allocation-service/internal/service"
)

type RequestHandler struct {
	requests      *service.RequestService
	reads         *repository.RequestRepository
	verifyBaseURL string
}

func NewRequestHandler(requests *service.RequestService, reads *repository.RequestRepository, verifyBaseURL string) *RequestHandler {
	return &RequestHandler{
		requests:      requests,
		reads:         reads,
		verifyBaseURL: verifyBaseURL,
	}
}

func (h *RequestHandler) CreateRequest(c *fiber.Ctx) error {
	var body CreateRequestBody
	if err := c.BodyParser(&body); err != nil {
		return BadRequestResponse(c, "Invalid request body", nil)
	}

	userID, err := uuid.Parse(body.UserID)
	if err != nil {
		return BadRequestResponse(c, "Invalid user_id", nil)
	}
	tireID, err := uuid.Parse(body.TireID)
	if err != nil {
		return BadRequestResponse(c, "Invalid tire_id", nil)
	}

	var stationID uuid.UUID
	if body.StationID != "" {
		stationID, err = uuid.Parse(body.StationID)
		if err != nil {
			return BadRequestResponse(c, "Invalid station_id", nil)
		}
	}

	result, err := h.requests.Create(c.Context(), userID, tireID, stationID, body.Quantity)
	if err != nil {
		return h.mapAllocationError(c, err)
	}

	return CreatedResponse(c, "Allocation request created", CreateRequestResponse{
		Request:        toRequestResponse(result.Request, h.verifyBaseURL),
		RemainingStock: result.RemainingStock,
		Quota:          result.Quota,
	})
}

func (h *RequestHandler) GetRequest(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return BadRequestResponse(c, "Invalid request id", nil)
	}

	req, err := h.reads.GetByID(c.Context(), id)
	if err != nil {
		return h.mapAllocationError(c, err)
	}

	history, err := h.reads.GetStatusHistory(c.Context(), id)
	if err != nil {
		return InternalServerErrorResponse(c, "Failed to load status history", nil)
	}

	return SuccessResponse(c, "Request found", RequestDetailResponse{
		Request: toRequestResponse(req, h.verifyBaseURL),
		History: history,
	})
}

func (h *RequestHandler) ListRequests(c *fiber.Ctx) error {
	userID, err := uuid.Parse(c.Query("user_id"))
	if err != nil {
		return BadRequestResponse(c, "Missing or invalid user_id", nil)
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.Query("page_size", "20"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	requests, err := h.reads.ListByUser(c.Context(), userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return InternalServerErrorResponse(c, "Failed to list requests", nil)
	}

	items := make([]RequestResponse, 0, len(requests))
	for _, req := range requests {
		items = append(items, toRequestResponse(req, h.verifyBaseURL))
	}

	return SuccessResponse(c, "Requests listed", fiber.Map{
		"requests":  items,
		"page":      page,
		"page_size": pageSize,
	})
}

func (h *RequestHandler) UpdateStatus(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return BadRequestResponse(c, "Invalid request id", nil)
	}

	var body TransitionBody
	if err := c.BodyParser(&body); err != nil {
		return BadRequestResponse(c, "Invalid request body", nil)
	}
	if body.Actor == "" {
		return BadRequestResponse(c, "Actor is required", nil)
	}

	req, err := h.requests.Transition(c.Context(), id, domain.Status(body.Status), body.Actor, body.Note)
	if err != nil {
		return h.mapAllocationError(c, err)
	}

	return SuccessResponse(c, "Request status updated", toRequestResponse(req, h.verifyBaseURL))
}

// GetQuota shows a user's headroom in one category window without creating
// anything.
func (h *RequestHandler) GetQuota(c *fiber.Ctx) error {
	userID, err := uuid.Parse(c.Query("user_id"))
	if err != nil {
		return BadRequestResponse(c, "Missing or invalid user_id", nil)
	}

	category := domain.Category(c.Query("category"))
	if !category.Valid() {
		return BadRequestResponse(c, "Category must be LEGER or LOURD", nil)
	}

	year, _ := strconv.Atoi(c.Query("year", strconv.Itoa(time.Now().Year())))
	quantity, _ := strconv.Atoi(c.Query("quantity", "1"))

	avail, err := h.requests.CheckAvailability(c.Context(), userID, category, quantity, year)
	if err != nil {
		return InternalServerErrorResponse(c, "Failed to compute quota", nil)
	}

	return SuccessResponse(c, "Quota window", avail)
}

// VerifyToken is the target of the verification URL printed next to the QR
// artifact. It only reads; delivery still goes through UpdateStatus.
func (h *RequestHandler) VerifyToken(c *fiber.Ctx) error {
	token := c.Params("token")
	if token == "" {
		return BadRequestResponse(c, "Token is required", nil)
	}

	req, err := h.reads.GetByToken(c.Context(), token)
	if err != nil {
		return h.mapAllocationError(c, err)
	}

	return SuccessResponse(c, "Token verified", fiber.Map{
		"request_id": req.ID.String(),
		"status":     string(req.Status),
		"quantity":   req.Quantity,
		"redeemed":   req.Redeemed,
	})
}

func (h *RequestHandler) mapAllocationError(c *fiber.Ctx, err error) error {
	var quotaErr *domain.QuotaExceededError
	switch {
	case errors.Is(err, domain.ErrNotEligible):
		return ForbiddenResponse(c, "User is not eligible for allocation")
	case errors.Is(err, domain.ErrItemNotFound):
		return NotFoundResponse(c, "Tire not found")
	case errors.Is(err, domain.ErrRequestNotFound):
		return NotFoundResponse(c, "Request not found")
	case errors.Is(err, domain.ErrStationRequired):
		return UnprocessableResponse(c, "A station must be specified", nil)
	case errors.Is(err, domain.ErrInvalidQuantity):
		return UnprocessableResponse(c, "Quantity must be between 1 and 4", nil)
	case errors.As(err, &quotaErr):
		return ConflictResponse(c, "Annual quota exceeded", map[string]interface{}{
			"remaining": quotaErr.Remaining,
			"max":       quotaErr.Max,
		})
	case errors.Is(err, domain.ErrOutOfStock):
		return ConflictResponse(c, "Insufficient stock at station", nil)
	case errors.Is(err, domain.ErrInvalidTransition):
		return ConflictResponse(c, "Invalid status transition", nil)
	case errors.Is(err, domain.ErrAlreadyRedeemed):
		return ConflictResponse(c, "Redemption token already consumed", nil)
	default:
		return InternalServerErrorResponse(c, "Allocation failed", nil)
	}
}
