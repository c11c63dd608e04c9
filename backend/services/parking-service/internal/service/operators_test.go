package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"parkpay/backend/services/parking-service/internal/audit"
	"parkpay/backend/services/parking-service/internal/clock"
	"parkpay/backend/services/parking-service/internal/models"
	"parkpay/backend/services/parking-service/internal/password"
)

type memOperators struct {
	mu      sync.Mutex
	byLogin map[string]*models.Operator
	nextID  int64
}

func newMemOperators() *memOperators {
	return &memOperators{byLogin: make(map[string]*models.Operator)}
}

func (m *memOperators) Create(_ context.Context, op *models.Operator) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byLogin[op.Login]; ok {
		return models.ErrOperatorExists
	}
	m.nextID++
	op.ID = m.nextID
	cp := *op
	m.byLogin[op.Login] = &cp
	return nil
}

func (m *memOperators) GetByLogin(_ context.Context, login string) (*models.Operator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.byLogin[login]
	if !ok {
		return nil, models.ErrOperatorNotFound
	}
	cp := *op
	return &cp, nil
}

func newOperatorService(t *testing.T, clk clock.Clock, events audit.Publisher) *OperatorService {
	t.Helper()
	tokens := NewTokenService("secret", time.Hour, clk)
	return NewOperatorService(newMemOperators(), password.NewBcryptHasher(bcrypt.MinCost), tokens, clk, events, zap.NewNop())
}

func TestRegisterOperator(t *testing.T) {
	clk := clock.NewManual(entryTime)
	events := &recordingPublisher{}
	svc := newOperatorService(t, clk, events)

	op, err := svc.Register(context.Background(), RegisterOperatorInput{Login: " Gate7 ", Password: "kassa-pass", Actor: "admin"})
	require.NoError(t, err)
	assert.Equal(t, "gate7", op.Login)
	assert.Equal(t, models.RoleCashier, op.Role)
	assert.NotEqual(t, "kassa-pass", op.PasswordHash)
	assert.Equal(t, []audit.Type{audit.OperatorRegistered}, events.types())

	_, err = svc.Register(context.Background(), RegisterOperatorInput{Login: "gate7", Password: "other-pass"})
	assert.ErrorIs(t, err, models.ErrOperatorExists)

	var verr *ValidationError
	_, err = svc.Register(context.Background(), RegisterOperatorInput{Login: "x", Password: "kassa-pass", Role: "root"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "role", verr.Field)

	_, err = svc.Register(context.Background(), RegisterOperatorInput{Login: "x"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "password", verr.Field)

	_, err = svc.Register(context.Background(), RegisterOperatorInput{Login: "x", Password: "short"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "password", verr.Field)
}

func TestOperatorLoginIssuesToken(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	clk := clock.NewManual(now)
	svc := newOperatorService(t, clk, nil)

	_, err := svc.Register(context.Background(), RegisterOperatorInput{Login: "cashier-1", Password: "kassa-pass", Role: "supervisor"})
	require.NoError(t, err)

	issued, err := svc.Login(context.Background(), "CASHIER-1", "kassa-pass")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", issued.TokenType)
	assert.True(t, now.Add(time.Hour).Equal(issued.ExpiresAt))

	claims := &Claims{}
	_, err = jwt.ParseWithClaims(issued.Token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("secret"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "cashier-1", claims.OperatorID)
	assert.Equal(t, "cashier-1", claims.Subject)
	assert.Equal(t, models.RoleSupervisor, claims.Role)
}

func TestOperatorLoginRejectsBadCredentials(t *testing.T) {
	svc := newOperatorService(t, clock.System{}, nil)
	_, err := svc.Register(context.Background(), RegisterOperatorInput{Login: "cashier-1", Password: "kassa-pass"})
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), "cashier-1", "wrong-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), "nobody", "kassa-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
