package handlers

import (
	"fmt"
	"time"

	"github.com/naftal-tire/allocation-service/internal/domain"
	"github.com/naftal-tire/allocation-service/internal/service"
)

type CreateRequestBody struct {
	UserID    string `json:"user_id"`
	TireID    string `json:"tire_id"`
	StationID string `json:"station_id"`
	Quantity  int    `json:"quantity"`
}

type TransitionBody struct {
	Status string `json:"status"`
	Actor  string `json:"actor"`
	Note   string `json:"note"`
}

type RequestResponse struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	TireID          string     `json:"tire_id"`
	StationID       string     `json:"station_id"`
	Status          string     `json:"status"`
	Quantity        int        `json:"quantity"`
	Year            int        `json:"year"`
	Token           string     `json:"token"`
	VerificationURL string     `json:"verification_url"`
	Redeemed        bool       `json:"redeemed"`
	CreatedAt       time.Time  `json:"created_at"`
	DeliveredAt     *time.Time `json:"delivered_at,omitempty"`
}

type CreateRequestResponse struct {
	Request        RequestResponse      `json:"request"`
	RemainingStock int                  `json:"remaining_stock"`
	Quota          service.Availability `json:"quota"`
}

type RequestDetailResponse struct {
	Request RequestResponse              `json:"request"`
	History []*domain.RequestStatusEvent `json:"history"`
}

func toRequestResponse(req *domain.TireRequest, verifyBaseURL string) RequestResponse {
	return RequestResponse{
		ID:              req.ID.String(),
		UserID:          req.UserID.String(),
		TireID:          req.TireID.String(),
		StationID:       req.StationID.String(),
		Status:          string(req.Status),
		Quantity:        req.Quantity,
		Year:            req.Year,
		Token:           req.Token,
		VerificationURL: fmt.Sprintf("%s/api/v1/requests/verify/%s", verifyBaseURL, req.Token),
		Redeemed:        req.Redeemed,
		CreatedAt:       req.CreatedAt,
		DeliveredAt:     req.DeliveredAt,
	}
}
