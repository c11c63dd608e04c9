package service

import (
	"context"
	"time"

	"parkpay/backend/services/parking-service/internal/models"
	"parkpay/backend/services/parking-service/internal/tariff"
)

// CardRegistry resolves cards and flips their binding state with conditional writes.
type CardRegistry interface {
	FindByAlias(ctx context.Context, alias string) (*models.Card, error)
	GetByID(ctx context.Context, id int64) (*models.Card, error)
	MarkBound(ctx context.Context, id int64) error
	MarkFree(ctx context.Context, id int64) error
	ReleaseIfIdle(ctx context.Context, id int64) (bool, error)
}

// CardStore adds the administrative writes.
type CardStore interface {
	CardRegistry
	Create(ctx context.Context, card *models.Card) error
	SetLost(ctx context.Context, id int64, lost bool) (*models.Card, error)
}

// SessionLedger persists sessions. At most one open session exists per card.
type SessionLedger interface {
	Open(ctx context.Context, cardID int64, vehicleClass string, entry time.Time) (*models.Session, error)
	FindOpenByCard(ctx context.Context, cardID int64) (*models.Session, error)
	LatestByCard(ctx context.Context, cardID int64) (*models.Session, error)
	GetByID(ctx context.Context, id int64) (*models.Session, error)
	Close(ctx context.Context, in models.CloseSessionInput) (*models.Session, error)
	ListOpen(ctx context.Context, limit int) ([]models.Session, error)
}

// RateProvider returns the validated rate table for a vehicle class.
type RateProvider interface {
	RateTable(ctx context.Context, vehicleClass string) (*tariff.RateTable, error)
}

// RateStore is the durable source of rate table specs.
type RateStore interface {
	Get(ctx context.Context, vehicleClass string) (tariff.RateTableSpec, error)
	Save(ctx context.Context, vehicleClass string, spec tariff.RateTableSpec) error
}

// RateCache is a best-effort cache in front of RateStore.
type RateCache interface {
	Get(ctx context.Context, vehicleClass string) (tariff.RateTableSpec, error)
	Save(ctx context.Context, vehicleClass string, spec tariff.RateTableSpec) error
	Delete(ctx context.Context, vehicleClass string) error
}
