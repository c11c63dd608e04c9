package models

import "time"

// CardState is the binding state of a physical card.
type CardState string

const (
	CardFree  CardState = "free"
	CardBound CardState = "bound"
)

// Card is a physical access token handed out at entry.
type Card struct {
	ID        int64     `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Barcode   string    `db:"barcode" json:"barcode,omitempty"`
	Lost      bool      `db:"lost" json:"lost"`
	State     CardState `db:"state" json:"state"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// IsLost reports whether the card was flagged lost and must not be bound.
func (c *Card) IsLost() bool {
	return c.Lost
}

// IsBound reports whether the card is attached to a session.
func (c *Card) IsBound() bool {
	return c.State == CardBound
}
