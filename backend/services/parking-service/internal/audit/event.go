package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type names an audit event.
type Type string

const (
	EntryRegistered    Type = "entry.registered"
	SessionPaid        Type = "session.paid"
	CardReleased       Type = "card.released"
	CardReleaseFailed  Type = "card.release_failed"
	CardRegistered     Type = "card.registered"
	CardLostChanged    Type = "card.lost_changed"
	OperatorRegistered Type = "operator.registered"
	Anomaly            Type = "anomaly"
)

// Event is an immutable record of something that happened at the lot.
type Event struct {
	ID           string    `json:"id"`
	Type         Type      `json:"type"`
	CardID       int64     `json:"card_id,omitempty"`
	CardCode     string    `json:"card_code,omitempty"`
	SessionID    int64     `json:"session_id,omitempty"`
	VehicleClass string    `json:"vehicle_class,omitempty"`
	Amount       string    `json:"amount,omitempty"`
	Actor        string    `json:"actor,omitempty"`
	Detail       string    `json:"detail,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// NewEvent stamps an event with a fresh id.
func NewEvent(t Type, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		OccurredAt: at.UTC(),
	}
}

// Publisher accepts events without blocking the caller.
type Publisher interface {
	Publish(event Event)
}

// Sink is a destination for dispatched events.
type Sink interface {
	Name() string
	Write(ctx context.Context, event Event) error
}

// Discard drops every event.
type Discard struct{}

// Publish implements Publisher.
func (Discard) Publish(Event) {}
