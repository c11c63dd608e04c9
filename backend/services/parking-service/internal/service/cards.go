package service

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"parkpay/backend/services/parking-service/internal/audit"
	"parkpay/backend/services/parking-service/internal/clock"
	"parkpay/backend/services/parking-service/internal/models"
)

// CardService handles card administration outside the entry/payment flow.
type CardService struct {
	store  CardStore
	clock  clock.Clock
	events audit.Publisher
	logger *zap.Logger
}

// NewCardService builds service.
func NewCardService(store CardStore, clk clock.Clock, events audit.Publisher, logger *zap.Logger) *CardService {
	if clk == nil {
		clk = clock.System{}
	}
	if events == nil {
		events = audit.Discard{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CardService{store: store, clock: clk, events: events, logger: logger}
}

// RegisterCardInput describes a new physical card.
type RegisterCardInput struct {
	Code    string
	Barcode string
	Actor   string
}

// Register creates a free card.
func (s *CardService) Register(ctx context.Context, in RegisterCardInput) (*models.Card, error) {
	code := strings.TrimSpace(in.Code)
	if code == "" {
		return nil, &ValidationError{Field: "code", Reason: "is required"}
	}
	barcode := strings.TrimSpace(in.Barcode)
	if barcode == code {
		barcode = ""
	}

	card := &models.Card{Code: code, Barcode: barcode}
	if err := s.store.Create(ctx, card); err != nil {
		return nil, err
	}

	s.logger.Info("card registered", zap.Int64("card_id", card.ID), zap.String("card_code", card.Code))
	event := audit.NewEvent(audit.CardRegistered, s.clock.Now())
	event.CardID = card.ID
	event.CardCode = card.Code
	event.Actor = in.Actor
	s.events.Publish(event)
	return card, nil
}

// SetLost flags or clears a card as lost. A bound card keeps its session.
func (s *CardService) SetLost(ctx context.Context, alias string, lost bool, actor string) (*models.Card, error) {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return nil, &ValidationError{Field: "alias", Reason: "is required"}
	}
	card, err := s.store.FindByAlias(ctx, alias)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.SetLost(ctx, card.ID, lost)
	if err != nil {
		return nil, err
	}

	s.logger.Info("card lost flag changed",
		zap.Int64("card_id", updated.ID),
		zap.Bool("lost", updated.Lost),
		zap.String("card_state", string(updated.State)),
	)
	event := audit.NewEvent(audit.CardLostChanged, s.clock.Now())
	event.CardID = updated.ID
	event.CardCode = updated.Code
	event.Actor = actor
	event.Detail = "lost=" + strconv.FormatBool(updated.Lost)
	s.events.Publish(event)
	return updated, nil
}
