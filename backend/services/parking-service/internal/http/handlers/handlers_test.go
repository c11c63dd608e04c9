package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"parkpay/backend/services/parking-service/internal/http/middleware"
	"parkpay/backend/services/parking-service/internal/models"
	"parkpay/backend/services/parking-service/internal/service"
	"parkpay/backend/services/parking-service/internal/tariff"
)

var entry = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type stubParking struct {
	enterIn service.EnterInput
	payIn   service.PayInput
	quoteIn service.QuoteInput
	err     error
}

func (s *stubParking) Enter(_ context.Context, in service.EnterInput) (*service.SessionSummary, error) {
	s.enterIn = in
	if s.err != nil {
		return nil, s.err
	}
	return &service.SessionSummary{SessionID: 10, CardID: 1, CardCode: "C-001", VehicleClass: in.VehicleClass, EntryTime: entry}, nil
}

func (s *stubParking) Lookup(_ context.Context, alias string) (*service.PendingSessionView, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &service.PendingSessionView{
		SessionID: 10,
		CardID:    1,
		CardCode:  alias,
		EntryTime: entry,
		Fare:      &tariff.FareResult{Total: decimal.RequireFromString("1.45")},
	}, nil
}

func (s *stubParking) Pay(_ context.Context, in service.PayInput) (*service.PaymentSummary, error) {
	s.payIn = in
	if s.err != nil {
		return nil, s.err
	}
	return &service.PaymentSummary{SessionID: 10, CardID: 1, TotalPaid: in.ClientTotal, PaymentMethod: in.Method, Cashier: in.Cashier}, nil
}

func (s *stubParking) Quote(_ context.Context, in service.QuoteInput) (*tariff.FareResult, error) {
	s.quoteIn = in
	if s.err != nil {
		return nil, s.err
	}
	return &tariff.FareResult{VehicleClass: in.VehicleClass, Total: decimal.RequireFromString("0.25")}, nil
}

func (s *stubParking) OpenSessions(context.Context, int) ([]models.Session, error) {
	return nil, s.err
}

func do(t *testing.T, handler http.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req = req.WithContext(middleware.WithOperatorID(req.Context(), "op-7"))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestEnterHandler(t *testing.T) {
	stub := &stubParking{}
	h := NewParkingHandlers(stub, zap.NewNop())

	rec := do(t, h.Enter, http.MethodPost, "/parking/entries", `{"alias":"C-001","vehicle_class":"car"}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "C-001", stub.enterIn.Alias)
	assert.Equal(t, "op-7", stub.enterIn.Operator)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 10, body["session_id"])
}

func TestEnterHandlerRejectsBadJSON(t *testing.T) {
	h := NewParkingHandlers(&stubParking{}, zap.NewNop())

	rec := do(t, h.Enter, http.MethodPost, "/parking/entries", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPayHandlerPassesCashierAndAmounts(t *testing.T) {
	stub := &stubParking{}
	h := NewParkingHandlers(stub, zap.NewNop())

	rec := do(t, h.Pay, http.MethodPost, "/parking/payments", `{"alias":"C-001","client_total":"1.00","discount":0.45,"method":"card"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "op-7", stub.payIn.Cashier)
	assert.True(t, decimal.RequireFromString("1.00").Equal(stub.payIn.ClientTotal))
	assert.True(t, decimal.RequireFromString("0.45").Equal(stub.payIn.Discount))
}

func TestLookupHandlerRequiresAlias(t *testing.T) {
	h := NewParkingHandlers(&stubParking{}, zap.NewNop())

	rec := do(t, h.Lookup, http.MethodGet, "/parking/lookup", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h.Lookup, http.MethodGet, "/parking/lookup?alias=C-001", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	fare := decodeBody(t, rec)["fare"].(map[string]any)
	assert.Equal(t, "1.45", fare["total"])
}

func TestQuoteHandlerOptionalExit(t *testing.T) {
	stub := &stubParking{}
	h := NewParkingHandlers(stub, zap.NewNop())

	rec := do(t, h.Quote, http.MethodPost, "/parking/quote", `{"vehicle_class":"car","entry_time":"2024-03-01T09:00:00Z"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, stub.quoteIn.EntryTime.Equal(entry))
	assert.True(t, stub.quoteIn.ExitTime.IsZero())
}

func TestOpenSessionsHandlerReturnsEmptyList(t *testing.T) {
	h := NewParkingHandlers(&stubParking{}, zap.NewNop())

	rec := do(t, h.OpenSessions, http.MethodGet, "/parking/sessions/open", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, h.OpenSessions, http.MethodGet, "/parking/sessions/open?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServiceErrorMapping(t *testing.T) {
	paidAt := entry.Add(2 * time.Hour)
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", &service.ValidationError{Field: "alias", Reason: "is required"}, http.StatusBadRequest, "invalid_request"},
		{"card not found", models.ErrCardNotFound, http.StatusNotFound, "card_not_found"},
		{"no open session", service.ErrNoOpenSession, http.StatusNotFound, "no_open_session"},
		{"session not found", models.ErrSessionNotFound, http.StatusNotFound, "session_not_found"},
		{"lost", models.ErrCardLost, http.StatusConflict, "card_lost"},
		{"busy", models.ErrAlreadyBound, http.StatusConflict, "card_busy"},
		{"occupied", &service.OccupiedError{CardID: 1, SessionID: 10, EntryTime: entry}, http.StatusConflict, "card_occupied"},
		{"paid", &service.AlreadyPaidError{CardID: 1, SessionID: 10, PaidAt: paidAt}, http.StatusConflict, "already_paid"},
		{"mismatch", &service.FareMismatchError{Computed: decimal.RequireFromString("1.45"), Submitted: decimal.RequireFromString("5")}, http.StatusUnprocessableEntity, "fare_mismatch"},
		{"not in use", service.ErrCardNotInUse, http.StatusConflict, "card_not_in_use"},
		{"inconsistent", &service.InconsistentStateError{CardID: 1, Detail: "x"}, http.StatusConflict, "inconsistent_card_state"},
		{"compensation", &service.CompensationError{CardID: 1, Cause: errors.New("a"), Compensation: models.ErrCardNotFound}, http.StatusInternalServerError, "compensation_failed"},
		{"unknown class", models.ErrRateTableNotFound, http.StatusUnprocessableEntity, "unknown_vehicle_class"},
		{"interval", tariff.ErrInvalidInterval, http.StatusBadRequest, "invalid_interval"},
		{"other", errors.New("db down"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewParkingHandlers(&stubParking{err: tc.err}, zap.NewNop())

			rec := do(t, h.Pay, http.MethodPost, "/parking/payments", `{"alias":"C-001"}`)

			assert.Equal(t, tc.status, rec.Code)
			body := decodeBody(t, rec)
			if tc.code != "" {
				assert.Equal(t, tc.code, body["code"])
			} else {
				assert.NotContains(t, body, "code")
			}
		})
	}
}

func TestFareMismatchBodyCarriesAmounts(t *testing.T) {
	err := &service.FareMismatchError{Computed: decimal.RequireFromString("1.45"), Submitted: decimal.RequireFromString("5.00")}
	h := NewParkingHandlers(&stubParking{err: err}, zap.NewNop())

	rec := do(t, h.Pay, http.MethodPost, "/parking/payments", `{"alias":"C-001","client_total":"5.00"}`)

	body := decodeBody(t, rec)
	assert.Equal(t, "1.45", body["computed"])
	assert.Equal(t, "5", body["submitted"])
}

type stubCards struct {
	lost  bool
	actor string
}

func (s *stubCards) Register(_ context.Context, in service.RegisterCardInput) (*models.Card, error) {
	if in.Code == "dup" {
		return nil, models.ErrCardExists
	}
	s.actor = in.Actor
	return &models.Card{ID: 5, Code: in.Code, State: models.CardFree}, nil
}

func (s *stubCards) SetLost(_ context.Context, alias string, lost bool, actor string) (*models.Card, error) {
	s.lost = lost
	s.actor = actor
	return &models.Card{ID: 5, Code: alias, Lost: lost}, nil
}

type stubRates struct{}

func (stubRates) Save(_ context.Context, class string, spec tariff.RateTableSpec) (*tariff.RateTable, error) {
	return tariff.ParseRateTable(class, spec)
}

func TestAdminHandlers(t *testing.T) {
	cards := &stubCards{}
	h := NewAdminHandlers(cards, stubRates{}, zap.NewNop())

	rec := do(t, h.CreateCard, http.MethodPost, "/admin/cards", `{"code":"C-900"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "op-7", cards.actor)

	rec = do(t, h.CreateCard, http.MethodPost, "/admin/cards", `{"code":"dup"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h.SetLost, http.MethodPost, "/admin/cards/lost", `{"alias":"C-900"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h.SetLost, http.MethodPost, "/admin/cards/lost", `{"alias":"C-900","lost":true}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, cards.lost)
}

func TestSaveRatesHandler(t *testing.T) {
	h := NewAdminHandlers(&stubCards{}, stubRates{}, zap.NewNop())

	body := `{"vehicle_class":"car","rates":{"bands":[
		{"range":"1-9","fee":"0.10"},
		{"range":"10-59","fee":"0.25"},
		{"range":"1-59","fee":"0.25"},
		{"range":"60","fee":"0.60"}]}}`
	rec := do(t, h.SaveRates, http.MethodPost, "/admin/rates", body)
	require.Equal(t, http.StatusOK, rec.Code)
	bands := decodeBody(t, rec)["bands"].([]any)
	assert.Len(t, bands, 4)
	assert.Equal(t, "1-9", bands[0].(map[string]any)["range"])
}

type failingPinger struct{ err error }

func (p failingPinger) PingContext(context.Context) error { return p.err }

func TestHealthHandler(t *testing.T) {
	rec := do(t, NewHealthHandler(failingPinger{}), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, NewHealthHandler(failingPinger{err: errors.New("down")}), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
