package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"parkpay/backend/services/parking-service/internal/audit"
	"parkpay/backend/services/parking-service/internal/clock"
	"parkpay/backend/services/parking-service/internal/models"
	"parkpay/backend/services/parking-service/internal/password"
)

// ErrInvalidCredentials represents a failed operator login.
var ErrInvalidCredentials = errors.New("operator: invalid credentials")

// OperatorStore persists operator accounts.
type OperatorStore interface {
	Create(ctx context.Context, op *models.Operator) error
	GetByLogin(ctx context.Context, login string) (*models.Operator, error)
}

// OperatorService registers operators and signs them in.
type OperatorService struct {
	store  OperatorStore
	hasher password.Hasher
	tokens *TokenService
	clock  clock.Clock
	events audit.Publisher
	logger *zap.Logger
}

// NewOperatorService builds OperatorService.
func NewOperatorService(store OperatorStore, hasher password.Hasher, tokens *TokenService, clk clock.Clock, events audit.Publisher, logger *zap.Logger) *OperatorService {
	if clk == nil {
		clk = clock.System{}
	}
	if events == nil {
		events = audit.Discard{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OperatorService{
		store:  store,
		hasher: hasher,
		tokens: tokens,
		clock:  clk,
		events: events,
		logger: logger,
	}
}

// RegisterOperatorInput describes a new operator account.
type RegisterOperatorInput struct {
	Login       string
	Password    string
	DisplayName string
	Role        string
	Actor       string
}

// OperatorToken is a signed operator token.
type OperatorToken struct {
	Token     string           `json:"token"`
	TokenType string           `json:"token_type"`
	ExpiresAt time.Time        `json:"expires_at"`
	Operator  *models.Operator `json:"operator"`
}

// Register creates an operator account.
func (s *OperatorService) Register(ctx context.Context, in RegisterOperatorInput) (*models.Operator, error) {
	login := strings.ToLower(strings.TrimSpace(in.Login))
	if login == "" {
		return nil, &ValidationError{Field: "login", Reason: "is required"}
	}
	if in.Password == "" {
		return nil, &ValidationError{Field: "password", Reason: "is required"}
	}
	role := strings.ToLower(strings.TrimSpace(in.Role))
	switch role {
	case "":
		role = models.RoleCashier
	case models.RoleCashier, models.RoleSupervisor:
	default:
		return nil, &ValidationError{Field: "role", Reason: "must be cashier or supervisor"}
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, password.ErrTooShort) {
			return nil, &ValidationError{Field: "password", Reason: "must be at least 8 characters"}
		}
		return nil, err
	}
	op := &models.Operator{
		Login:        login,
		DisplayName:  strings.TrimSpace(in.DisplayName),
		PasswordHash: hash,
		Role:         role,
	}
	if err := s.store.Create(ctx, op); err != nil {
		return nil, err
	}

	s.logger.Info("operator registered", zap.Int64("operator_id", op.ID), zap.String("login", op.Login), zap.String("role", op.Role))
	event := audit.NewEvent(audit.OperatorRegistered, s.clock.Now())
	event.Actor = in.Actor
	event.Detail = "login=" + op.Login + " role=" + op.Role
	s.events.Publish(event)
	return op, nil
}

// Login verifies credentials and issues a token.
func (s *OperatorService) Login(ctx context.Context, login, secret string) (*OperatorToken, error) {
	login = strings.ToLower(strings.TrimSpace(login))
	if login == "" || secret == "" {
		return nil, ErrInvalidCredentials
	}

	op, err := s.store.GetByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, models.ErrOperatorNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := s.hasher.Compare(op.PasswordHash, secret); err != nil {
		s.logger.Warn("operator login rejected", zap.String("login", login))
		return nil, ErrInvalidCredentials
	}

	token, expires, err := s.tokens.Generate(op.Login, op.Role)
	if err != nil {
		return nil, err
	}
	return &OperatorToken{Token: token, TokenType: "Bearer", ExpiresAt: expires, Operator: op}, nil
}
