package password

import (
	"errors"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// MinLength is the shortest operator password accepted at registration.
const MinLength = 8

var (
	ErrEmpty    = errors.New("password: empty password")
	ErrTooShort = errors.New("password: shorter than 8 characters")
)

// Hasher turns operator passwords into stored hashes and checks login attempts.
type Hasher interface {
	Hash(secret string) (string, error)
	Compare(hash, secret string) error
}

// BcryptHasher stores operator passwords as bcrypt hashes.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a hasher. Cost outside bcrypt's range falls back to bcrypt.DefaultCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash enforces MinLength and hashes the password.
func (h *BcryptHasher) Hash(secret string) (string, error) {
	switch {
	case secret == "":
		return "", ErrEmpty
	case utf8.RuneCountInString(secret) < MinLength:
		return "", ErrTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Compare checks a login attempt against a stored hash.
func (h *BcryptHasher) Compare(hash, secret string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
}

// Matches reports whether secret matches a bcrypt hash, such as the configured admin key hash.
func Matches(hash, secret string) bool {
	if hash == "" || secret == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
