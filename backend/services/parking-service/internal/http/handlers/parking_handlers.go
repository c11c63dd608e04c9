package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"parkpay/backend/services/parking-service/internal/http/middleware"
	"parkpay/backend/services/parking-service/internal/models"
	"parkpay/backend/services/parking-service/internal/service"
	"parkpay/backend/services/parking-service/internal/tariff"
)

// ParkingService is the entry/payment flow consumed by the handlers.
type ParkingService interface {
	Enter(ctx context.Context, in service.EnterInput) (*service.SessionSummary, error)
	Lookup(ctx context.Context, alias string) (*service.PendingSessionView, error)
	Pay(ctx context.Context, in service.PayInput) (*service.PaymentSummary, error)
	Quote(ctx context.Context, in service.QuoteInput) (*tariff.FareResult, error)
	OpenSessions(ctx context.Context, limit int) ([]models.Session, error)
}

// ParkingHandlers serve the gate and cashier endpoints.
type ParkingHandlers struct {
	parking ParkingService
	logger  *zap.Logger
}

// NewParkingHandlers builds handlers.
func NewParkingHandlers(parking ParkingService, logger *zap.Logger) *ParkingHandlers {
	return &ParkingHandlers{parking: parking, logger: logger}
}

// Enter handles POST /parking/entries.
func (h *ParkingHandlers) Enter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Alias        string `json:"alias"`
		VehicleClass string `json:"vehicle_class"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	summary, err := h.parking.Enter(r.Context(), service.EnterInput{
		Alias:        req.Alias,
		VehicleClass: req.VehicleClass,
		Operator:     middleware.OperatorID(r.Context()),
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}

// Lookup handles GET /parking/lookup?alias=.
func (h *ParkingHandlers) Lookup(w http.ResponseWriter, r *http.Request) {
	alias := strings.TrimSpace(r.URL.Query().Get("alias"))
	if alias == "" {
		writeError(w, http.StatusBadRequest, "alias is required")
		return
	}

	view, err := h.parking.Lookup(r.Context(), alias)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Pay handles POST /parking/payments.
func (h *ParkingHandlers) Pay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Alias       string          `json:"alias"`
		SessionID   int64           `json:"session_id"`
		CardID      int64           `json:"card_id"`
		ClientTotal decimal.Decimal `json:"client_total"`
		Discount    decimal.Decimal `json:"discount"`
		Method      string          `json:"method"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	summary, err := h.parking.Pay(r.Context(), service.PayInput{
		Alias:       req.Alias,
		SessionID:   req.SessionID,
		CardID:      req.CardID,
		ClientTotal: req.ClientTotal,
		Discount:    req.Discount,
		Method:      req.Method,
		Cashier:     middleware.OperatorID(r.Context()),
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Quote handles POST /parking/quote.
func (h *ParkingHandlers) Quote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VehicleClass string     `json:"vehicle_class"`
		EntryTime    time.Time  `json:"entry_time"`
		ExitTime     *time.Time `json:"exit_time"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	in := service.QuoteInput{VehicleClass: req.VehicleClass, EntryTime: req.EntryTime}
	if req.ExitTime != nil {
		in.ExitTime = *req.ExitTime
	}
	fare, err := h.parking.Quote(r.Context(), in)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, fare)
}

// OpenSessions handles GET /parking/sessions/open.
func (h *ParkingHandlers) OpenSessions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}

	sessions, err := h.parking.OpenSessions(r.Context(), limit)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}
