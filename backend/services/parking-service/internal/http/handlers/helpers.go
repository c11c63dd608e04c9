package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"parkpay/backend/services/parking-service/internal/models"
	"parkpay/backend/services/parking-service/internal/service"
	"parkpay/backend/services/parking-service/internal/tariff"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

type errorBody struct {
	Error     string           `json:"error"`
	Code      string           `json:"code,omitempty"`
	Field     string           `json:"field,omitempty"`
	CardID    int64            `json:"card_id,omitempty"`
	SessionID int64            `json:"session_id,omitempty"`
	EntryTime *time.Time       `json:"entry_time,omitempty"`
	PaidAt    *time.Time       `json:"paid_at,omitempty"`
	TotalPaid *decimal.Decimal `json:"total_paid,omitempty"`
	Computed  *decimal.Decimal `json:"computed,omitempty"`
	Submitted *decimal.Decimal `json:"submitted,omitempty"`
}

// writeServiceError maps domain errors to status codes and bodies carrying ids and amounts.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, body)
}

func classify(err error) (int, errorBody) {
	var (
		validation   *service.ValidationError
		occupied     *service.OccupiedError
		paid         *service.AlreadyPaidError
		mismatch     *service.FareMismatchError
		inconsistent *service.InconsistentStateError
		compensation *service.CompensationError
	)
	switch {
	case errors.As(err, &compensation):
		return http.StatusInternalServerError, errorBody{
			Error:  "entry aborted, card may still be bound",
			Code:   "compensation_failed",
			CardID: compensation.CardID,
		}
	case errors.As(err, &validation):
		return http.StatusBadRequest, errorBody{Error: validation.Error(), Code: "invalid_request", Field: validation.Field}
	case errors.As(err, &occupied):
		entry := occupied.EntryTime
		return http.StatusConflict, errorBody{
			Error:     "card is occupied by an unpaid session",
			Code:      "card_occupied",
			CardID:    occupied.CardID,
			SessionID: occupied.SessionID,
			EntryTime: &entry,
		}
	case errors.As(err, &paid):
		body := errorBody{
			Error:     "session already paid",
			Code:      "already_paid",
			CardID:    paid.CardID,
			SessionID: paid.SessionID,
			TotalPaid: &paid.TotalPaid,
		}
		if !paid.PaidAt.IsZero() {
			at := paid.PaidAt
			body.PaidAt = &at
		}
		return http.StatusConflict, body
	case errors.As(err, &mismatch):
		return http.StatusUnprocessableEntity, errorBody{
			Error:     "submitted amount does not match fare",
			Code:      "fare_mismatch",
			Computed:  &mismatch.Computed,
			Submitted: &mismatch.Submitted,
		}
	case errors.As(err, &inconsistent):
		return http.StatusConflict, errorBody{
			Error:  "card state is inconsistent, contact supervisor",
			Code:   "inconsistent_card_state",
			CardID: inconsistent.CardID,
		}
	case errors.Is(err, models.ErrCardNotFound):
		return http.StatusNotFound, errorBody{Error: "card not found", Code: "card_not_found"}
	case errors.Is(err, service.ErrNoOpenSession):
		return http.StatusNotFound, errorBody{Error: "card has no open session", Code: "no_open_session"}
	case errors.Is(err, models.ErrSessionNotFound):
		return http.StatusNotFound, errorBody{Error: "session not found", Code: "session_not_found"}
	case errors.Is(err, models.ErrCardLost):
		return http.StatusConflict, errorBody{Error: "card is flagged lost", Code: "card_lost"}
	case errors.Is(err, models.ErrAlreadyBound):
		return http.StatusConflict, errorBody{Error: "card is being used at another gate", Code: "card_busy"}
	case errors.Is(err, service.ErrCardNotInUse):
		return http.StatusConflict, errorBody{Error: "card is not in use", Code: "card_not_in_use"}
	case errors.Is(err, models.ErrCardExists):
		return http.StatusConflict, errorBody{Error: "card already registered", Code: "card_exists"}
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorBody{Error: "invalid credentials", Code: "invalid_credentials"}
	case errors.Is(err, models.ErrOperatorExists):
		return http.StatusConflict, errorBody{Error: "operator already registered", Code: "operator_exists"}
	case errors.Is(err, models.ErrRateTableNotFound):
		return http.StatusUnprocessableEntity, errorBody{Error: "no rate table for vehicle class", Code: "unknown_vehicle_class"}
	case errors.Is(err, tariff.ErrInvalidInterval):
		return http.StatusBadRequest, errorBody{Error: "exit time before entry time", Code: "invalid_interval"}
	default:
		return http.StatusInternalServerError, errorBody{Error: "internal error"}
	}
}
