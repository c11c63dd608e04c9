package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"parkpay/backend/services/parking-service/internal/http/middleware"
	"parkpay/backend/services/parking-service/internal/models"
	"parkpay/backend/services/parking-service/internal/service"
	"parkpay/backend/services/parking-service/internal/tariff"
)

// CardAdmin registers cards and toggles the lost flag.
type CardAdmin interface {
	Register(ctx context.Context, in service.RegisterCardInput) (*models.Card, error)
	SetLost(ctx context.Context, alias string, lost bool, actor string) (*models.Card, error)
}

// RateAdmin replaces stored rate tables.
type RateAdmin interface {
	Save(ctx context.Context, vehicleClass string, spec tariff.RateTableSpec) (*tariff.RateTable, error)
}

// AdminHandlers serve /admin endpoints.
type AdminHandlers struct {
	cards  CardAdmin
	rates  RateAdmin
	logger *zap.Logger
}

// NewAdminHandlers builds handlers.
func NewAdminHandlers(cards CardAdmin, rates RateAdmin, logger *zap.Logger) *AdminHandlers {
	return &AdminHandlers{cards: cards, rates: rates, logger: logger}
}

// CreateCard handles POST /admin/cards.
func (h *AdminHandlers) CreateCard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code    string `json:"code"`
		Barcode string `json:"barcode"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	card, err := h.cards.Register(r.Context(), service.RegisterCardInput{
		Code:    req.Code,
		Barcode: req.Barcode,
		Actor:   middleware.OperatorID(r.Context()),
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, card)
}

// SetLost handles POST /admin/cards/lost.
func (h *AdminHandlers) SetLost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Alias string `json:"alias"`
		Lost  *bool  `json:"lost"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Lost == nil {
		writeError(w, http.StatusBadRequest, "lost is required")
		return
	}

	card, err := h.cards.SetLost(r.Context(), req.Alias, *req.Lost, middleware.OperatorID(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// SaveRates handles POST /admin/rates.
func (h *AdminHandlers) SaveRates(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VehicleClass string               `json:"vehicle_class"`
		Rates        tariff.RateTableSpec `json:"rates"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	table, err := h.rates.Save(r.Context(), req.VehicleClass, req.Rates)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	h.logger.Info("rate table replaced", zap.String("vehicle_class", table.VehicleClass), zap.Int("bands", len(table.Bands)))
	writeJSON(w, http.StatusOK, table)
}
