package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"parkpay/backend/services/parking-service/internal/audit"
)

// Hub tracks event subscribers and fans audit events out to them.
type Hub struct {
	mu           sync.RWMutex
	subscribers  map[string]*Subscriber
	pingInterval time.Duration
	logger       *zap.Logger
}

// NewHub builds subscriber hub.
func NewHub(pingInterval time.Duration, logger *zap.Logger) *Hub {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Hub{
		subscribers:  make(map[string]*Subscriber),
		pingInterval: pingInterval,
		logger:       logger,
	}
}

// Add registers new subscriber.
func (h *Hub) Add(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[sub.ID()] = sub
}

// Remove drops subscriber.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers, id)
}

// Count returns the number of live subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Name implements audit.Sink.
func (h *Hub) Name() string { return "websocket" }

// Write implements audit.Sink by broadcasting the event as JSON.
func (h *Hub) Write(_ context.Context, event audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subscribers {
		sub.Send(payload)
	}
	return nil
}

// Run pings subscribers until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil
		case <-ticker.C:
			for _, sub := range h.snapshot() {
				if err := sub.Ping(); err != nil {
					h.logger.Debug("subscriber ping failed", zap.String("subscriber_id", sub.ID()), zap.Error(err))
				}
			}
		}
	}
}

func (h *Hub) closeAll() {
	for _, sub := range h.snapshot() {
		sub.Close()
	}
}

func (h *Hub) snapshot() []*Subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()
	subs := make([]*Subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		subs = append(subs, sub)
	}
	return subs
}
