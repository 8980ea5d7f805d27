// Package notify is the outbound boundary towards the chat/notification
// collaborator. The engine publishes Events to a Sink and never waits for
// delivery.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// EventType names a lifecycle event.
type EventType string

const (
	QuotationSent      EventType = "quotation.sent"
	QuotationAccepted  EventType = "quotation.accepted"
	QuotationRejected  EventType = "quotation.rejected"
	QuotationExpired   EventType = "quotation.expired"
	QuotationRevised   EventType = "quotation.revised"
	OrderCreated       EventType = "order.created"
	OrderStatusChanged EventType = "order.status_changed"
	InvoicePaid        EventType = "invoice.paid"
)

// Event is the envelope handed to the collaborator.
type Event struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Recipients []int64        `json:"recipients,omitempty"`
	Payload    map[string]any `json:"payload"`
}

// NewEvent stamps a new event.
func NewEvent(typ EventType, payload map[string]any, recipients ...int64) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		OccurredAt: time.Now().UTC(),
		Recipients: recipients,
		Payload:    payload,
	}
}

// Sink accepts events for delivery.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// Publisher makes publication fire and forget: sink failures are logged and
// never reach the caller's transition.
type Publisher struct {
	sink   Sink
	logger *slog.Logger
}

// NewPublisher wraps sink. A nil sink discards events.
func NewPublisher(sink Sink, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{sink: sink, logger: logger}
}

// Publish hands event to the sink.
func (p *Publisher) Publish(ctx context.Context, event Event) {
	if p == nil || p.sink == nil {
		return
	}
	if err := p.sink.Publish(ctx, event); err != nil {
		p.logger.Warn("publish event", slog.String("type", string(event.Type)), slog.String("event_id", event.ID), slog.Any("error", err))
	}
}

// LogSink writes events to a logger.
type LogSink struct {
	Logger *slog.Logger
}

// Publish logs the event.
func (s LogSink) Publish(_ context.Context, event Event) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("event", slog.String("type", string(event.Type)), slog.String("event_id", event.ID), slog.Any("payload", event.Payload))
	return nil
}

// ChannelSink publishes events on a Redis pub/sub channel consumed by the
// socket gateway.
type ChannelSink struct {
	client  *redis.Client
	channel string
}

// NewChannelSink constructs a ChannelSink.
func NewChannelSink(client *redis.Client, channel string) *ChannelSink {
	return &ChannelSink{client: client, channel: channel}
}

// Publish encodes event as JSON and publishes it.
func (s *ChannelSink) Publish(ctx context.Context, event Event) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("notify: channel sink not configured")
	}
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.channel, raw).Err()
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish records event.
func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the recorded event types in publication order.
func (r *Recorder) Types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}
