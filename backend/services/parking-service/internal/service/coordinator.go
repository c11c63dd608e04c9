package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"parkpay/backend/services/parking-service/internal/audit"
	"parkpay/backend/services/parking-service/internal/clock"
	"parkpay/backend/services/parking-service/internal/models"
	"parkpay/backend/services/parking-service/internal/tariff"
)

const (
	DefaultMethod              = "cash"
	defaultCompensationTimeout = 5 * time.Second
)

// DefaultTolerance is the accepted gap between the server fare and the submitted amount.
var DefaultTolerance = decimal.RequireFromString("0.50")

// Options tunes the coordinator.
type Options struct {
	Tolerance           decimal.Decimal
	CompensationTimeout time.Duration
}

// Coordinator drives cards through FREE -> BOUND -> FREE and keeps sessions in step.
type Coordinator struct {
	cards    CardRegistry
	sessions SessionLedger
	rates    RateProvider
	clock    clock.Clock
	events   audit.Publisher
	logger   *zap.Logger

	tolerance           decimal.Decimal
	compensationTimeout time.Duration
}

// NewCoordinator builds coordinator.
func NewCoordinator(
	cards CardRegistry,
	sessions SessionLedger,
	rates RateProvider,
	clk clock.Clock,
	events audit.Publisher,
	logger *zap.Logger,
	opts Options,
) *Coordinator {
	if clk == nil {
		clk = clock.System{}
	}
	if events == nil {
		events = audit.Discard{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Tolerance.IsNegative() || opts.Tolerance.IsZero() {
		opts.Tolerance = DefaultTolerance
	}
	if opts.CompensationTimeout <= 0 {
		opts.CompensationTimeout = defaultCompensationTimeout
	}
	return &Coordinator{
		cards:               cards,
		sessions:            sessions,
		rates:               rates,
		clock:               clk,
		events:              events,
		logger:              logger,
		tolerance:           opts.Tolerance,
		compensationTimeout: opts.CompensationTimeout,
	}
}

// EnterInput identifies the card handed out at the gate.
type EnterInput struct {
	Alias        string
	VehicleClass string
	Operator     string
}

// SessionSummary describes a freshly opened session.
type SessionSummary struct {
	SessionID    int64     `json:"session_id"`
	CardID       int64     `json:"card_id"`
	CardCode     string    `json:"card_code"`
	VehicleClass string    `json:"vehicle_class"`
	EntryTime    time.Time `json:"entry_time"`
}

// PendingSessionView is what the payment screen shows before the cashier takes money.
type PendingSessionView struct {
	SessionID    int64              `json:"session_id"`
	CardID       int64              `json:"card_id"`
	CardCode     string             `json:"card_code"`
	VehicleClass string             `json:"vehicle_class"`
	EntryTime    time.Time          `json:"entry_time"`
	AsOf         time.Time          `json:"as_of"`
	Fare         *tariff.FareResult `json:"fare"`
}

// PayInput is a payment submitted by the cashier. Either Alias or SessionID is required.
type PayInput struct {
	Alias       string
	SessionID   int64
	CardID      int64
	ClientTotal decimal.Decimal
	Discount    decimal.Decimal
	Method      string
	Cashier     string
}

// PaymentSummary is the receipt of a completed payment.
type PaymentSummary struct {
	SessionID     int64              `json:"session_id"`
	CardID        int64              `json:"card_id"`
	CardCode      string             `json:"card_code"`
	VehicleClass  string             `json:"vehicle_class"`
	EntryTime     time.Time          `json:"entry_time"`
	ExitTime      time.Time          `json:"exit_time"`
	Fare          *tariff.FareResult `json:"fare"`
	Discount      decimal.Decimal    `json:"discount"`
	TotalPaid     decimal.Decimal    `json:"total_paid"`
	PaymentMethod string             `json:"payment_method"`
	Cashier       string             `json:"cashier,omitempty"`
	Warnings      []string           `json:"warnings,omitempty"`
}

// QuoteInput prices a hypothetical stay.
type QuoteInput struct {
	VehicleClass string
	EntryTime    time.Time
	ExitTime     time.Time
}

// Enter binds a free card and opens a session at the current time.
func (c *Coordinator) Enter(ctx context.Context, in EnterInput) (*SessionSummary, error) {
	alias := strings.TrimSpace(in.Alias)
	if alias == "" {
		return nil, &ValidationError{Field: "alias", Reason: "is required"}
	}
	class := strings.TrimSpace(in.VehicleClass)
	if class == "" {
		return nil, &ValidationError{Field: "vehicle_class", Reason: "is required"}
	}

	card, err := c.cards.FindByAlias(ctx, alias)
	if err != nil {
		return nil, err
	}
	if card.IsLost() {
		return nil, models.ErrCardLost
	}
	if card.IsBound() {
		return nil, c.occupied(ctx, card)
	}
	if _, err := c.rates.RateTable(ctx, class); err != nil {
		return nil, err
	}

	if err := c.cards.MarkBound(ctx, card.ID); err != nil {
		if errors.Is(err, models.ErrAlreadyBound) {
			// lost the race to another gate
			if open, findErr := c.sessions.FindOpenByCard(ctx, card.ID); findErr == nil {
				return nil, &OccupiedError{CardID: card.ID, SessionID: open.ID, EntryTime: open.EntryTime}
			}
		}
		return nil, err
	}

	session, err := c.sessions.Open(ctx, card.ID, class, c.clock.Now())
	if err != nil {
		if errors.Is(err, models.ErrDuplicateOpenSession) {
			return nil, c.inconsistent(card, "free card already had an open session")
		}
		if session, err = c.compensateEntry(ctx, card, err); err != nil {
			return nil, err
		}
	}

	event := audit.NewEvent(audit.EntryRegistered, c.clock.Now())
	event.CardID = card.ID
	event.CardCode = card.Code
	event.SessionID = session.ID
	event.VehicleClass = session.VehicleClass
	event.Actor = in.Operator
	c.events.Publish(event)

	return &SessionSummary{
		SessionID:    session.ID,
		CardID:       card.ID,
		CardCode:     card.Code,
		VehicleClass: session.VehicleClass,
		EntryTime:    session.EntryTime,
	}, nil
}

// Lookup shows the pending fare for a card without changing anything.
func (c *Coordinator) Lookup(ctx context.Context, alias string) (*PendingSessionView, error) {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return nil, &ValidationError{Field: "alias", Reason: "is required"}
	}
	card, err := c.cards.FindByAlias(ctx, alias)
	if err != nil {
		return nil, err
	}

	session, err := c.sessions.FindOpenByCard(ctx, card.ID)
	if err != nil {
		if !errors.Is(err, models.ErrSessionNotFound) {
			return nil, err
		}
		return nil, c.noOpenSession(ctx, card)
	}
	if !card.IsBound() {
		return nil, c.inconsistent(card, "free card has an open session")
	}

	now := c.clock.Now()
	fare, err := c.fare(ctx, session, now)
	if err != nil {
		return nil, err
	}
	return &PendingSessionView{
		SessionID:    session.ID,
		CardID:       card.ID,
		CardCode:     card.Code,
		VehicleClass: session.VehicleClass,
		EntryTime:    session.EntryTime,
		AsOf:         now,
		Fare:         fare,
	}, nil
}

// Pay reconciles the submitted amount with the server fare, closes the session and frees the card.
func (c *Coordinator) Pay(ctx context.Context, in PayInput) (*PaymentSummary, error) {
	if err := validatePayment(&in); err != nil {
		return nil, err
	}

	session, card, err := c.resolveForPayment(ctx, in)
	if err != nil {
		return nil, err
	}
	if !card.IsBound() {
		return nil, ErrCardNotInUse
	}

	now := c.clock.Now()
	fare, err := c.fare(ctx, session, now)
	if err != nil {
		return nil, err
	}

	submitted := in.ClientTotal.Add(in.Discount)
	if fare.Total.Sub(submitted).Abs().GreaterThan(c.tolerance) {
		return nil, &FareMismatchError{Computed: fare.Total, Submitted: submitted}
	}

	closed, err := c.sessions.Close(ctx, models.CloseSessionInput{
		SessionID:     session.ID,
		ExitTime:      now,
		Cost:          fare.Total,
		Discount:      in.Discount,
		TotalPaid:     in.ClientTotal,
		PaymentMethod: in.Method,
		Cashier:       in.Cashier,
	})
	if err != nil {
		if errors.Is(err, models.ErrAlreadyClosed) {
			return nil, c.alreadyPaid(ctx, card.ID, session.ID)
		}
		return nil, err
	}

	summary := &PaymentSummary{
		SessionID:     closed.ID,
		CardID:        card.ID,
		CardCode:      card.Code,
		VehicleClass:  closed.VehicleClass,
		EntryTime:     closed.EntryTime,
		ExitTime:      now,
		Fare:          fare,
		Discount:      in.Discount,
		TotalPaid:     in.ClientTotal,
		PaymentMethod: in.Method,
		Cashier:       in.Cashier,
	}

	paid := audit.NewEvent(audit.SessionPaid, now)
	paid.CardID = card.ID
	paid.CardCode = card.Code
	paid.SessionID = closed.ID
	paid.VehicleClass = closed.VehicleClass
	paid.Amount = in.ClientTotal.StringFixed(2)
	paid.Actor = in.Cashier
	c.events.Publish(paid)

	if warning := c.releaseCard(ctx, card, closed.ID, in.Cashier); warning != "" {
		summary.Warnings = append(summary.Warnings, warning)
	}
	return summary, nil
}

// Quote prices a stay for a class without touching cards or sessions.
func (c *Coordinator) Quote(ctx context.Context, in QuoteInput) (*tariff.FareResult, error) {
	class := strings.TrimSpace(in.VehicleClass)
	if class == "" {
		return nil, &ValidationError{Field: "vehicle_class", Reason: "is required"}
	}
	if in.EntryTime.IsZero() {
		return nil, &ValidationError{Field: "entry_time", Reason: "is required"}
	}
	exit := in.ExitTime
	if exit.IsZero() {
		exit = c.clock.Now()
	}
	table, err := c.rates.RateTable(ctx, class)
	if err != nil {
		return nil, err
	}
	return tariff.ComputeFare(in.EntryTime, exit, table)
}

// OpenSessions lists sessions awaiting payment.
func (c *Coordinator) OpenSessions(ctx context.Context, limit int) ([]models.Session, error) {
	return c.sessions.ListOpen(ctx, limit)
}

func validatePayment(in *PayInput) error {
	in.Alias = strings.TrimSpace(in.Alias)
	if in.Alias == "" && in.SessionID == 0 {
		return &ValidationError{Field: "alias", Reason: "alias or session_id is required"}
	}
	if in.ClientTotal.IsNegative() {
		return &ValidationError{Field: "client_total", Reason: "must not be negative"}
	}
	if in.Discount.IsNegative() {
		return &ValidationError{Field: "discount", Reason: "must not be negative"}
	}
	in.Method = strings.ToLower(strings.TrimSpace(in.Method))
	if in.Method == "" {
		in.Method = DefaultMethod
	}
	return nil
}

func (c *Coordinator) resolveForPayment(ctx context.Context, in PayInput) (*models.Session, *models.Card, error) {
	if in.SessionID != 0 {
		session, err := c.sessions.GetByID(ctx, in.SessionID)
		if err != nil {
			return nil, nil, err
		}
		if in.CardID != 0 && in.CardID != session.CardID {
			return nil, nil, &ValidationError{Field: "card_id", Reason: "does not match session"}
		}
		card, err := c.cards.GetByID(ctx, session.CardID)
		if err != nil {
			return nil, nil, err
		}
		if !session.IsOpen() {
			return nil, nil, alreadyPaidFrom(session)
		}
		return session, card, nil
	}

	card, err := c.cards.FindByAlias(ctx, in.Alias)
	if err != nil {
		return nil, nil, err
	}
	if in.CardID != 0 && in.CardID != card.ID {
		return nil, nil, &ValidationError{Field: "card_id", Reason: "does not match alias"}
	}
	session, err := c.sessions.FindOpenByCard(ctx, card.ID)
	if err != nil {
		if !errors.Is(err, models.ErrSessionNotFound) {
			return nil, nil, err
		}
		return nil, nil, c.noOpenSession(ctx, card)
	}
	return session, card, nil
}

func (c *Coordinator) fare(ctx context.Context, session *models.Session, at time.Time) (*tariff.FareResult, error) {
	table, err := c.rates.RateTable(ctx, session.VehicleClass)
	if err != nil {
		return nil, err
	}
	return tariff.ComputeFare(session.EntryTime, at, table)
}

// occupied explains why a bound card cannot take another entry.
func (c *Coordinator) occupied(ctx context.Context, card *models.Card) error {
	session, err := c.sessions.FindOpenByCard(ctx, card.ID)
	if err == nil {
		return &OccupiedError{CardID: card.ID, SessionID: session.ID, EntryTime: session.EntryTime}
	}
	if errors.Is(err, models.ErrSessionNotFound) {
		return c.noOpenSession(ctx, card)
	}
	return err
}

// noOpenSession classifies a card that has nothing to pay.
func (c *Coordinator) noOpenSession(ctx context.Context, card *models.Card) error {
	latest, err := c.sessions.LatestByCard(ctx, card.ID)
	if err != nil && !errors.Is(err, models.ErrSessionNotFound) {
		return err
	}
	if card.IsBound() {
		// a payment that closed the session but has not released the card yet
		if latest != nil && !latest.IsOpen() && latest.ExitTime != nil && c.recent(*latest.ExitTime) {
			return alreadyPaidFrom(latest)
		}
		return c.boundWithoutSession(card)
	}
	if latest != nil && !latest.IsOpen() {
		return alreadyPaidFrom(latest)
	}
	return ErrNoOpenSession
}

func (c *Coordinator) alreadyPaid(ctx context.Context, cardID, sessionID int64) error {
	session, err := c.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return &AlreadyPaidError{CardID: cardID, SessionID: sessionID}
	}
	return alreadyPaidFrom(session)
}

func alreadyPaidFrom(session *models.Session) *AlreadyPaidError {
	e := &AlreadyPaidError{
		CardID:    session.CardID,
		SessionID: session.ID,
		TotalPaid: session.TotalPaid,
	}
	if session.ExitTime != nil {
		e.PaidAt = *session.ExitTime
	}
	return e
}

// boundWithoutSession tells a card caught between bind and open apart from a broken one.
func (c *Coordinator) boundWithoutSession(card *models.Card) error {
	if c.recent(card.UpdatedAt) {
		return models.ErrAlreadyBound
	}
	return c.inconsistent(card, "bound card has no open session")
}

func (c *Coordinator) recent(t time.Time) bool {
	return c.clock.Now().Sub(t) < c.compensationTimeout
}

func (c *Coordinator) inconsistent(card *models.Card, detail string) error {
	c.logger.Error("card state anomaly",
		zap.Int64("card_id", card.ID),
		zap.String("card_code", card.Code),
		zap.String("card_state", string(card.State)),
		zap.String("detail", detail),
	)
	event := audit.NewEvent(audit.Anomaly, c.clock.Now())
	event.CardID = card.ID
	event.CardCode = card.Code
	event.Detail = detail
	c.events.Publish(event)
	return &InconsistentStateError{CardID: card.ID, Detail: detail}
}

// compensateEntry frees a card whose session could not be opened. When the insert
// landed despite the error, the card stays bound and that session is returned.
func (c *Coordinator) compensateEntry(ctx context.Context, card *models.Card, cause error) (*models.Session, error) {
	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.compensationTimeout)
	defer cancel()

	released, err := c.cards.ReleaseIfIdle(detached, card.ID)
	if err != nil {
		c.logger.Error("failed to release card after aborted entry",
			zap.Int64("card_id", card.ID),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		event := audit.NewEvent(audit.Anomaly, c.clock.Now())
		event.CardID = card.ID
		event.CardCode = card.Code
		event.Detail = fmt.Sprintf("card left bound after failed entry: %v", err)
		c.events.Publish(event)
		return nil, &CompensationError{CardID: card.ID, Cause: cause, Compensation: err}
	}
	if released {
		c.logger.Warn("entry aborted, card released", zap.Int64("card_id", card.ID), zap.Error(cause))
		return nil, fmt.Errorf("open session: %w", cause)
	}

	session, err := c.sessions.FindOpenByCard(detached, card.ID)
	if err != nil {
		c.logger.Error("card kept bound after failed entry but no open session found",
			zap.Int64("card_id", card.ID),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return nil, fmt.Errorf("open session: %w", cause)
	}
	c.logger.Warn("session opened despite error, keeping card bound",
		zap.Int64("card_id", card.ID),
		zap.Int64("session_id", session.ID),
		zap.Error(cause),
	)
	return session, nil
}

// releaseCard frees the card after a committed payment. Failures become a warning.
func (c *Coordinator) releaseCard(ctx context.Context, card *models.Card, sessionID int64, actor string) string {
	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.compensationTimeout)
	defer cancel()

	event := audit.NewEvent(audit.CardReleased, c.clock.Now())
	event.CardID = card.ID
	event.CardCode = card.Code
	event.SessionID = sessionID
	event.Actor = actor

	if err := c.cards.MarkFree(detached, card.ID); err != nil {
		c.logger.Error("card state anomaly: paid session left card bound",
			zap.Int64("card_id", card.ID),
			zap.Int64("session_id", sessionID),
			zap.Error(err),
		)
		event.Type = audit.CardReleaseFailed
		event.Detail = err.Error()
		c.events.Publish(event)
		return fmt.Sprintf("payment recorded but card %s was not released: %v", card.Code, err)
	}
	c.events.Publish(event)
	return ""
}
