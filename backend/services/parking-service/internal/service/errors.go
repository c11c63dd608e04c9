package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"parkpay/backend/services/parking-service/internal/models"
)

var (
	ErrNoOpenSession = fmt.Errorf("card has no open session: %w", models.ErrSessionNotFound)
	ErrCardNotInUse  = errors.New("card is not in use")
)

// ValidationError reports bad input. Nothing was mutated.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// OccupiedError is returned when a card is still bound to an unpaid session.
type OccupiedError struct {
	CardID    int64
	SessionID int64
	EntryTime time.Time
}

func (e *OccupiedError) Error() string {
	return fmt.Sprintf("card %d is occupied by unpaid session %d since %s",
		e.CardID, e.SessionID, e.EntryTime.Format(time.RFC3339))
}

// AlreadyPaidError is returned when the card's latest session is already closed.
type AlreadyPaidError struct {
	CardID    int64
	SessionID int64
	PaidAt    time.Time
	TotalPaid decimal.Decimal
}

func (e *AlreadyPaidError) Error() string {
	return fmt.Sprintf("session %d of card %d was already paid at %s",
		e.SessionID, e.CardID, e.PaidAt.Format(time.RFC3339))
}

// FareMismatchError is returned when the submitted amount does not reconcile with the server fare.
type FareMismatchError struct {
	Computed  decimal.Decimal
	Submitted decimal.Decimal
}

func (e *FareMismatchError) Error() string {
	return fmt.Sprintf("fare mismatch: computed %s, submitted %s",
		e.Computed.StringFixed(2), e.Submitted.StringFixed(2))
}

// InconsistentStateError reports a card whose binding disagrees with its sessions.
type InconsistentStateError struct {
	CardID int64
	Detail string
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("card %d inconsistent: %s", e.CardID, e.Detail)
}

// CompensationError is returned when undoing a partial entry failed too.
// The card may be left bound without a session.
type CompensationError struct {
	CardID       int64
	Cause        error
	Compensation error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("card %d: %v; releasing card failed: %v", e.CardID, e.Cause, e.Compensation)
}

func (e *CompensationError) Unwrap() []error {
	return []error{e.Cause, e.Compensation}
}
