package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/naftal-tire/allocation-service/internal/cache"
	"github.com/naftal-tire/allocation-service/internal/domain"
	"github.com/naftal-tire/allocation-service/internal/repository"
)

type InventoryHandler struct {
	inventory *repository.InventoryRepository
	tires     *repository.TireRepository
	mirror    *cache.StockMirror
}

func NewInventoryHandler(inventory *repository.InventoryRepository, tires *repository.TireRepository, mirror *cache.StockMirror) *InventoryHandler {
	return &InventoryHandler{
		inventory: inventory,
		tires:     tires,
		mirror:    mirror,
	}
}

func (h *InventoryHandler) HealthCheck(c *fiber.Ctx) error {
	return SuccessResponse(c, "Allocation service is healthy", map[string]interface{}{
		"service": "allocation-service",
		"status":  "healthy",
	})
}

func (h *InventoryHandler) ListStations(c *fiber.Ctx) error {
	stations, err := h.inventory.ListStations(c.Context())
	if err != nil {
		return InternalServerErrorResponse(c, "Failed to list stations", nil)
	}
	return SuccessResponse(c, "Stations listed", stations)
}

func (h *InventoryHandler) ListStationStock(c *fiber.Ctx) error {
	stationID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return BadRequestResponse(c, "Invalid station id", nil)
	}

	stock, err := h.inventory.ListStationStock(c.Context(), stationID)
	if err != nil {
		return InternalServerErrorResponse(c, "Failed to list stock", nil)
	}
	return SuccessResponse(c, "Station stock listed", stock)
}

// GetStock serves the stock-level display. The Redis mirror answers first;
// on a miss the database is read and the mirror backfilled. The figure is
// advisory either way: reservations never consult it.
func (h *InventoryHandler) GetStock(c *fiber.Ctx) error {
	stationID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return BadRequestResponse(c, "Invalid station id", nil)
	}
	tireID, err := uuid.Parse(c.Params("tireId"))
	if err != nil {
		return BadRequestResponse(c, "Invalid tire id", nil)
	}

	quantity, hit, err := h.mirror.GetStock(c.Context(), stationID, tireID)
	if err != nil {
		log.Warn().Err(err).Msg("stock cache read failed, falling back to database")
	}
	source := "cache"

	if !hit {
		quantity, err = h.inventory.GetStock(c.Context(), stationID, tireID)
		if errors.Is(err, domain.ErrItemNotFound) {
			return NotFoundResponse(c, "No inventory for this station and tire")
		}
		if err != nil {
			return InternalServerErrorResponse(c, "Failed to read stock", nil)
		}
		source = "database"

		if cacheErr := h.mirror.SetStock(c.Context(), stationID, tireID, quantity); cacheErr != nil {
			log.Warn().Err(cacheErr).Msg("stock cache backfill failed")
		}
	}

	return SuccessResponse(c, "Stock level", fiber.Map{
		"station_id": stationID.String(),
		"tire_id":    tireID.String(),
		"quantity":   quantity,
		"source":     source,
	})
}

func (h *InventoryHandler) ListTires(c *fiber.Ctx) error {
	tires, err := h.tires.ListTires(c.Context())
	if err != nil {
		return InternalServerErrorResponse(c, "Failed to list tires", nil)
	}
	return SuccessResponse(c, "Tires listed", tires)
}
