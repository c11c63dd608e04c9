package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SessionState is the lifecycle state of a parking session.
type SessionState string

const (
	SessionOpen   SessionState = "open"
	SessionClosed SessionState = "closed"
)

// Session is a single vehicle's stay, from entry to payment.
type Session struct {
	ID            int64           `db:"id" json:"id"`
	CardID        int64           `db:"card_id" json:"card_id"`
	VehicleClass  string          `db:"vehicle_class" json:"vehicle_class"`
	State         SessionState    `db:"state" json:"state"`
	EntryTime     time.Time       `db:"entry_time" json:"entry_time"`
	ExitTime      *time.Time      `db:"exit_time" json:"exit_time,omitempty"`
	Cost          decimal.Decimal `db:"cost" json:"cost"`
	Discount      decimal.Decimal `db:"discount" json:"discount"`
	TotalPaid     decimal.Decimal `db:"total_paid" json:"total_paid"`
	PaymentMethod string          `db:"payment_method" json:"payment_method,omitempty"`
	Cashier       string          `db:"cashier" json:"cashier,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// IsOpen reports whether the session still awaits payment.
func (s *Session) IsOpen() bool {
	return s.State == SessionOpen
}
