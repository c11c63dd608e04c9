package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server upgrades HTTP connections to event subscriptions.
type Server struct {
	hub          *Hub
	logger       *zap.Logger
	writeTimeout time.Duration
	operatorOf   func(context.Context) string
	upgrader     websocket.Upgrader
}

// NewServer builds ws server. operatorOf extracts the authenticated operator from the request context.
func NewServer(hub *Hub, writeTimeout time.Duration, operatorOf func(context.Context) string, logger *zap.Logger) *Server {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &Server{
		hub:          hub,
		logger:       logger,
		writeTimeout: writeTimeout,
		operatorOf:   operatorOf,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleEvents is HTTP handler for /parking/events endpoint.
func (s *Server) HandleEvents(w http.ResponseWriter, r *http.Request) {
	operator := ""
	if s.operatorOf != nil {
		operator = s.operatorOf(r.Context())
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := NewSubscriber(uuid.NewString(), operator, conn, s.writeTimeout, s.logger, func(id string) {
		s.hub.Remove(id)
		cancel()
	})
	s.hub.Add(sub)

	go sub.Start(ctx)
	s.logger.Info("event subscriber connected", zap.String("subscriber_id", sub.ID()), zap.String("operator_id", operator))
}
