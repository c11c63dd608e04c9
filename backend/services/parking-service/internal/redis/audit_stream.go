package redisstore

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"parkpay/backend/services/parking-service/internal/audit"
)

const defaultStreamMaxLen = 100000

// AuditStream appends audit events to a capped redis stream.
type AuditStream struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewAuditStream returns a stream sink.
func NewAuditStream(client *redis.Client, stream string, maxLen int64) *AuditStream {
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	return &AuditStream{client: client, stream: stream, maxLen: maxLen}
}

// Name implements audit.Sink.
func (s *AuditStream) Name() string { return "redis-stream" }

// Write implements audit.Sink.
func (s *AuditStream) Write(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{
			"id":      event.ID,
			"type":    string(event.Type),
			"payload": payload,
		},
	}).Err()
}
