package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"parkpay/backend/services/parking-service/internal/clock"
)

// Claims is the operator token payload read by the auth middleware.
type Claims struct {
	OperatorID string `json:"operator_id"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService issues operator JWTs.
type TokenService struct {
	secret    []byte
	expiresIn time.Duration
	clock     clock.Clock
}

// NewTokenService returns configured token service.
func NewTokenService(secret string, expiresIn time.Duration, clk clock.Clock) *TokenService {
	if expiresIn <= 0 {
		expiresIn = 12 * time.Hour
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &TokenService{secret: []byte(secret), expiresIn: expiresIn, clock: clk}
}

// Generate signs a token for the operator login.
func (t *TokenService) Generate(login, role string) (string, time.Time, error) {
	if login == "" {
		return "", time.Time{}, errors.New("token: operator login is required")
	}

	now := t.clock.Now().UTC()
	expires := now.Add(t.expiresIn)
	claims := Claims{
		OperatorID: login,
		Role:       role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   login,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}
