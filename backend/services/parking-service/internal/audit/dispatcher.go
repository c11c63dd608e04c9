package audit

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBuffer     = 256
	drainTimeout      = 5 * time.Second
	sinkWriteDeadline = 3 * time.Second
)

// Dispatcher queues events in memory and fans them out to sinks from a single goroutine.
type Dispatcher struct {
	queue   chan Event
	sinks   []Sink
	logger  *zap.Logger
	dropped atomic.Int64
}

// NewDispatcher builds a dispatcher with the given queue size.
func NewDispatcher(buffer int, logger *zap.Logger, sinks ...Sink) *Dispatcher {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:  make(chan Event, buffer),
		sinks:  sinks,
		logger: logger,
	}
}

// Publish enqueues the event, dropping it when the queue is full.
func (d *Dispatcher) Publish(event Event) {
	select {
	case d.queue <- event:
	default:
		total := d.dropped.Add(1)
		d.logger.Warn("audit queue full, dropping event",
			zap.String("event_id", event.ID),
			zap.String("type", string(event.Type)),
			zap.Int64("dropped_total", total),
		)
	}
}

// Dropped returns the number of events lost to a full queue.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Run delivers events until ctx is done, then flushes what is still queued.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return nil
		case event := <-d.queue:
			d.deliver(ctx, event)
		}
	}
}

func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case event := <-d.queue:
			d.deliver(ctx, event)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event Event) {
	for _, sink := range d.sinks {
		writeCtx, cancel := context.WithTimeout(ctx, sinkWriteDeadline)
		err := sink.Write(writeCtx, event)
		cancel()
		if err != nil {
			d.logger.Warn("audit sink write failed",
				zap.String("sink", sink.Name()),
				zap.String("event_id", event.ID),
				zap.Error(err),
			)
		}
	}
}

// LogSink writes events to the service log.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink returns a sink backed by logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("audit")}
}

// Name implements Sink.
func (s *LogSink) Name() string { return "log" }

// Write implements Sink.
func (s *LogSink) Write(_ context.Context, event Event) error {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
		zap.Time("occurred_at", event.OccurredAt),
	}
	if event.CardID != 0 {
		fields = append(fields, zap.Int64("card_id", event.CardID))
	}
	if event.SessionID != 0 {
		fields = append(fields, zap.Int64("session_id", event.SessionID))
	}
	if event.Amount != "" {
		fields = append(fields, zap.String("amount", event.Amount))
	}
	if event.Actor != "" {
		fields = append(fields, zap.String("actor", event.Actor))
	}
	if event.Detail != "" {
		fields = append(fields, zap.String("detail", event.Detail))
	}
	if event.Type == Anomaly || event.Type == CardReleaseFailed {
		s.logger.Warn("audit event", fields...)
		return nil
	}
	s.logger.Info("audit event", fields...)
	return nil
}
