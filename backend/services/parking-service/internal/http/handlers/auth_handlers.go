package handlers

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"parkpay/backend/services/parking-service/internal/http/middleware"
	"parkpay/backend/services/parking-service/internal/models"
	"parkpay/backend/services/parking-service/internal/service"
)

// OperatorAccounts registers operators and signs them in.
type OperatorAccounts interface {
	Register(ctx context.Context, in service.RegisterOperatorInput) (*models.Operator, error)
	Login(ctx context.Context, login, secret string) (*service.OperatorToken, error)
}

// AuthHandlers serve operator login and account creation.
type AuthHandlers struct {
	operators OperatorAccounts
	logger    *zap.Logger
}

// NewAuthHandlers builds handlers.
func NewAuthHandlers(operators OperatorAccounts, logger *zap.Logger) *AuthHandlers {
	return &AuthHandlers{operators: operators, logger: logger}
}

// Login handles POST /auth/login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Login    string `json:"login"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Login) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "login and password are required")
		return
	}

	issued, err := h.operators.Login(r.Context(), req.Login, req.Password)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, issued)
}

// CreateOperator handles POST /admin/operators.
func (h *AuthHandlers) CreateOperator(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Login       string `json:"login"`
		Password    string `json:"password"`
		DisplayName string `json:"display_name"`
		Role        string `json:"role"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	op, err := h.operators.Register(r.Context(), service.RegisterOperatorInput{
		Login:       req.Login,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Role:        req.Role,
		Actor:       middleware.OperatorID(r.Context()),
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, op)
}
