package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CloseSessionInput carries the reconciled totals recorded when a session is paid.
type CloseSessionInput struct {
	SessionID     int64
	ExitTime      time.Time
	Cost          decimal.Decimal
	Discount      decimal.Decimal
	TotalPaid     decimal.Decimal
	PaymentMethod string
	Cashier       string
}
