package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Write(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *recordingSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func TestDispatcherDeliversToEverySink(t *testing.T) {
	first := &recordingSink{}
	second := &recordingSink{err: errors.New("unavailable")}
	d := NewDispatcher(8, zap.NewNop(), first, second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(done)
	}()

	event := NewEvent(EntryRegistered, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	event.CardID = 7
	d.Publish(event)

	require.Eventually(t, func() bool {
		return len(first.snapshot()) == 1 && len(second.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	got := first.snapshot()[0]
	assert.Equal(t, event.ID, got.ID)
	assert.Equal(t, int64(7), got.CardID)
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	d := NewDispatcher(1, zap.NewNop())

	d.Publish(NewEvent(SessionPaid, time.Now()))
	d.Publish(NewEvent(SessionPaid, time.Now()))
	d.Publish(NewEvent(SessionPaid, time.Now()))

	assert.Equal(t, int64(2), d.Dropped())
}

func TestDispatcherFlushesQueueOnShutdown(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(4, zap.NewNop(), sink)

	d.Publish(NewEvent(CardReleased, time.Now()))
	d.Publish(NewEvent(CardReleased, time.Now()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, d.Run(ctx))

	assert.Len(t, sink.snapshot(), 2)
}

func TestNewEventAssignsUniqueIDs(t *testing.T) {
	a := NewEvent(Anomaly, time.Now())
	b := NewEvent(Anomaly, time.Now())

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, time.UTC, a.OccurredAt.Location())
}
