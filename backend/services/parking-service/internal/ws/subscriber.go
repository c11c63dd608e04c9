package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sendBuffer   = 32
	readLimit    = 4096
	pongDeadline = 60 * time.Second
)

// Subscriber is a single websocket client receiving lot events.
type Subscriber struct {
	id           string
	operator     string
	conn         *websocket.Conn
	send         chan []byte
	logger       *zap.Logger
	writeTimeout time.Duration
	onClose      func(id string)

	mu     sync.Mutex
	closed bool

	// writeMu serialises frames on conn; Send never takes it.
	writeMu sync.Mutex
}

// NewSubscriber builds subscriber wrapper.
func NewSubscriber(id, operator string, conn *websocket.Conn, writeTimeout time.Duration, logger *zap.Logger, onClose func(string)) *Subscriber {
	return &Subscriber{
		id:           id,
		operator:     operator,
		conn:         conn,
		send:         make(chan []byte, sendBuffer),
		logger:       logger,
		writeTimeout: writeTimeout,
		onClose:      onClose,
	}
}

// ID returns identifier.
func (s *Subscriber) ID() string {
	return s.id
}

// Start launches read/write pumps and blocks until the client goes away.
func (s *Subscriber) Start(ctx context.Context) {
	go s.writePump(ctx)
	s.readPump()
}

// readPump only services control frames; clients have nothing to say.
func (s *Subscriber) readPump() {
	defer s.Close()
	s.conn.SetReadLimit(readLimit)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongDeadline))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongDeadline))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			s.logger.Info("subscriber disconnected", zap.String("subscriber_id", s.id), zap.String("operator_id", s.operator), zap.Error(err))
			return
		}
	}
}

func (s *Subscriber) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.Close()
			return
		case msg, ok := <-s.send:
			if !ok {
				_ = s.write(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.write(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// Send enqueues a message, dropping it when the client is too slow.
func (s *Subscriber) Send(msg []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.send <- msg:
	default:
		s.logger.Warn("dropping event, subscriber buffer full", zap.String("subscriber_id", s.id))
	}
}

// Ping sends ping.
func (s *Subscriber) Ping() error {
	return s.write(websocket.PingMessage, nil)
}

// Close stops delivery and tears down the connection once.
func (s *Subscriber) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.send)
	s.mu.Unlock()

	_ = s.conn.Close()
	if s.onClose != nil {
		s.onClose(s.id)
	}
}

func (s *Subscriber) write(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return s.conn.WriteMessage(messageType, data)
}
