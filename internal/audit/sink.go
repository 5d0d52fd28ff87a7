// Package audit records order lifecycle transitions. Recording is
// fire-and-forget: a sink never blocks or fails its caller.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fieldsync/pkg/db"
	"github.com/angelmondragon/fieldsync/pkg/db/models"
	"github.com/angelmondragon/fieldsync/pkg/enums"
	"github.com/angelmondragon/fieldsync/pkg/logger"
)

// Event is one order transition.
type Event struct {
	Kind       enums.AuditKind
	OrderID    string
	Metadata   map[string]any
	OccurredAt time.Time
}

// Sink accepts audit events.
type Sink interface {
	Record(ctx context.Context, event Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Record(context.Context, Event) {}

// LogSink writes events as structured log lines.
type LogSink struct {
	logg *logger.Logger
}

func NewLogSink(logg *logger.Logger) *LogSink {
	if logg == nil {
		logg = logger.Nop()
	}
	return &LogSink{logg: logg}
}

func (s *LogSink) Record(ctx context.Context, event Event) {
	fields := map[string]any{
		"audit_kind":  event.Kind.String(),
		"occurred_at": stamp(event).Format(time.RFC3339Nano),
	}
	for k, v := range event.Metadata {
		fields["audit_"+k] = v
	}
	ctx = s.logg.WithOrderID(s.logg.WithFields(ctx, fields), event.OrderID)
	s.logg.Info(ctx, "order audit")
}

// StoreSink persists events into the audit_log table.
type StoreSink struct {
	client *db.Client
	logg   *logger.Logger
}

func NewStoreSink(client *db.Client, logg *logger.Logger) *StoreSink {
	if logg == nil {
		logg = logger.Nop()
	}
	return &StoreSink{client: client, logg: logg}
}

func (s *StoreSink) Record(ctx context.Context, event Event) {
	if s == nil || s.client == nil {
		return
	}
	entry := models.AuditEntry{
		ID:         uuid.New(),
		Kind:       event.Kind,
		OrderID:    event.OrderID,
		OccurredAt: stamp(event).UTC(),
	}
	if len(event.Metadata) > 0 {
		raw, err := json.Marshal(event.Metadata)
		if err == nil {
			entry.Metadata = string(raw)
		}
	}
	if err := s.client.DB().WithContext(ctx).Create(&entry).Error; err != nil {
		s.logg.Error(s.logg.WithOrderID(ctx, event.OrderID), "failed to persist audit entry", err)
	}
}

// MultiSink fans an event out to every sink in order.
type MultiSink []Sink

func (m MultiSink) Record(ctx context.Context, event Event) {
	for _, s := range m {
		if s != nil {
			s.Record(ctx, event)
		}
	}
}

// AsyncSink hands events to a background goroutine. When the buffer is
// full the event is dropped and counted.
type AsyncSink struct {
	next    Sink
	logg    *logger.Logger
	events  chan asyncEvent
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

type asyncEvent struct {
	ctx   context.Context
	event Event
}

const defaultBuffer = 256

// NewAsyncSink starts the forwarding goroutine. Call Close to drain it.
func NewAsyncSink(next Sink, buffer int, logg *logger.Logger) *AsyncSink {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if logg == nil {
		logg = logger.Nop()
	}
	s := &AsyncSink{
		next:   next,
		logg:   logg,
		events: make(chan asyncEvent, buffer),
		done:   make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *AsyncSink) Record(ctx context.Context, event Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	event.OccurredAt = stamp(event)
	select {
	case s.events <- asyncEvent{ctx: context.WithoutCancel(ctx), event: event}:
	default:
		if n := s.dropped.Add(1); n == 1 || n%100 == 0 {
			s.logg.Warn(s.logg.WithField(ctx, "dropped", n), "audit buffer full; dropping events")
		}
	}
}

// Dropped returns how many events were discarded.
func (s *AsyncSink) Dropped() int64 {
	return s.dropped.Load()
}

// Close stops accepting events and waits for buffered ones to be written,
// or for ctx to end.
func (s *AsyncSink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	s.mu.Unlock()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *AsyncSink) loop() {
	defer close(s.done)
	for ev := range s.events {
		if s.next != nil {
			s.next.Record(ev.ctx, ev.event)
		}
	}
}

func stamp(event Event) time.Time {
	if event.OccurredAt.IsZero() {
		return time.Now()
	}
	return event.OccurredAt
}
