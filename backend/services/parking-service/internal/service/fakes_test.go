package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"parkpay/backend/services/parking-service/internal/audit"
	"parkpay/backend/services/parking-service/internal/clock"
	"parkpay/backend/services/parking-service/internal/models"
	"parkpay/backend/services/parking-service/internal/tariff"
)

// memCards mirrors the conditional writes of the cards table.
type memCards struct {
	mu      sync.Mutex
	clock   clock.Clock
	byID    map[int64]*models.Card
	nextID  int64
	freeErr error
	// openSessions reports open sessions per card, standing in for the NOT EXISTS check.
	openSessions func(cardID int64) int
}

func newMemCards(clk clock.Clock) *memCards {
	return &memCards{clock: clk, byID: make(map[int64]*models.Card)}
}

func (m *memCards) add(code, barcode string) models.Card {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	now := m.clock.Now().Add(-24 * time.Hour)
	card := &models.Card{
		ID:        m.nextID,
		Code:      code,
		Barcode:   barcode,
		State:     models.CardFree,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.byID[card.ID] = card
	return *card
}

func (m *memCards) get(id int64) models.Card {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.byID[id]
}

func (m *memCards) update(id int64, fn func(c *models.Card)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.byID[id])
}

func (m *memCards) FindByAlias(_ context.Context, alias string) (*models.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.byID {
		if c.Code == alias {
			cp := *c
			return &cp, nil
		}
	}
	for _, c := range m.byID {
		if c.Barcode != "" && c.Barcode == alias {
			cp := *c
			return &cp, nil
		}
	}
	return nil, models.ErrCardNotFound
}

func (m *memCards) GetByID(_ context.Context, id int64) (*models.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return nil, models.ErrCardNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memCards) MarkBound(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	switch {
	case !ok:
		return models.ErrCardNotFound
	case c.Lost:
		return models.ErrCardLost
	case c.State != models.CardFree:
		return models.ErrAlreadyBound
	}
	c.State = models.CardBound
	c.UpdatedAt = m.clock.Now()
	return nil
}

func (m *memCards) MarkFree(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.freeErr != nil {
		return m.freeErr
	}
	c, ok := m.byID[id]
	if !ok {
		return models.ErrCardNotFound
	}
	c.State = models.CardFree
	c.UpdatedAt = m.clock.Now()
	return nil
}

func (m *memCards) ReleaseIfIdle(ctx context.Context, id int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.freeErr != nil {
		return false, m.freeErr
	}
	c, ok := m.byID[id]
	if !ok {
		return false, models.ErrCardNotFound
	}
	if c.State != models.CardBound {
		return true, nil
	}
	if m.openSessions != nil && m.openSessions(id) > 0 {
		return false, nil
	}
	c.State = models.CardFree
	c.UpdatedAt = m.clock.Now()
	return true, nil
}

func (m *memCards) Create(_ context.Context, card *models.Card) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.byID {
		if c.Code == card.Code || (card.Barcode != "" && c.Barcode == card.Barcode) {
			return models.ErrCardExists
		}
	}
	m.nextID++
	card.ID = m.nextID
	card.State = models.CardFree
	card.CreatedAt = m.clock.Now()
	card.UpdatedAt = card.CreatedAt
	cp := *card
	m.byID[card.ID] = &cp
	return nil
}

func (m *memCards) SetLost(_ context.Context, id int64, lost bool) (*models.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return nil, models.ErrCardNotFound
	}
	c.Lost = lost
	cp := *c
	return &cp, nil
}

// memSessions mirrors the partial unique index on open sessions.
type memSessions struct {
	mu      sync.Mutex
	byID    map[int64]*models.Session
	nextID  int64
	openErr error
	// lateErr is returned after the row was inserted, like a deadline hit after commit.
	lateErr error
}

func newMemSessions() *memSessions {
	return &memSessions{byID: make(map[int64]*models.Session)}
}

func (m *memSessions) seed(s models.Session) models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	s.ID = m.nextID
	m.byID[s.ID] = &s
	return s
}

func (m *memSessions) get(id int64) models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.byID[id]
}

func (m *memSessions) countOpen(cardID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.byID {
		if s.CardID == cardID && s.IsOpen() {
			n++
		}
	}
	return n
}

func (m *memSessions) Open(ctx context.Context, cardID int64, vehicleClass string, entry time.Time) (*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return nil, m.openErr
	}
	for _, s := range m.byID {
		if s.CardID == cardID && s.IsOpen() {
			return nil, models.ErrDuplicateOpenSession
		}
	}
	m.nextID++
	s := &models.Session{
		ID:           m.nextID,
		CardID:       cardID,
		VehicleClass: vehicleClass,
		State:        models.SessionOpen,
		EntryTime:    entry.UTC(),
		CreatedAt:    entry,
		UpdatedAt:    entry,
	}
	m.byID[s.ID] = s
	if m.lateErr != nil {
		return nil, m.lateErr
	}
	cp := *s
	return &cp, nil
}

func (m *memSessions) FindOpenByCard(_ context.Context, cardID int64) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.byID {
		if s.CardID == cardID && s.IsOpen() {
			cp := *s
			return &cp, nil
		}
	}
	return nil, models.ErrSessionNotFound
}

func (m *memSessions) LatestByCard(_ context.Context, cardID int64) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.Session
	for _, s := range m.byID {
		if s.CardID != cardID {
			continue
		}
		if latest == nil || s.EntryTime.After(latest.EntryTime) ||
			(s.EntryTime.Equal(latest.EntryTime) && s.ID > latest.ID) {
			latest = s
		}
	}
	if latest == nil {
		return nil, models.ErrSessionNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *memSessions) GetByID(_ context.Context, id int64) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSessions) Close(_ context.Context, in models.CloseSessionInput) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[in.SessionID]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	if !s.IsOpen() {
		return nil, models.ErrAlreadyClosed
	}
	exit := in.ExitTime.UTC()
	s.State = models.SessionClosed
	s.ExitTime = &exit
	s.Cost = in.Cost
	s.Discount = in.Discount
	s.TotalPaid = in.TotalPaid
	s.PaymentMethod = in.PaymentMethod
	s.Cashier = in.Cashier
	s.UpdatedAt = exit
	cp := *s
	return &cp, nil
}

func (m *memSessions) ListOpen(_ context.Context, limit int) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Session
	for _, s := range m.byID {
		if s.IsOpen() {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryTime.Before(out[j].EntryTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type staticRates map[string]*tariff.RateTable

func (r staticRates) RateTable(_ context.Context, vehicleClass string) (*tariff.RateTable, error) {
	t, ok := r[vehicleClass]
	if !ok {
		return nil, models.ErrRateTableNotFound
	}
	return t, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []audit.Event
}

func (p *recordingPublisher) Publish(e audit.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) types() []audit.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]audit.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func standardSpec() tariff.RateTableSpec {
	return tariff.RateTableSpec{
		Bands: []tariff.BandSpec{
			{Name: "first 9 min", Range: "1-9", Fee: "0.10"},
			{Name: "rest of first hour", Range: "10-59", Fee: "0.25"},
			{Name: "fraction", Range: "1-59", Fee: "0.25"},
			{Name: "hour", Range: "60", Fee: "0.60"},
		},
	}
}

func standardTable(t *testing.T) *tariff.RateTable {
	t.Helper()
	table, err := tariff.ParseRateTable("car", standardSpec())
	require.NoError(t, err)
	return table
}
