package models

import "time"

const (
	RoleCashier    = "cashier"
	RoleSupervisor = "supervisor"
)

// Operator is a gate or cashier account that signs parking operations.
type Operator struct {
	ID           int64     `db:"id" json:"id"`
	Login        string    `db:"login" json:"login"`
	DisplayName  string    `db:"display_name" json:"display_name,omitempty"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         string    `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
