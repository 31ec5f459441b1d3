package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/environmenttech/wastewatch/internal/core/domain"
	"github.com/environmenttech/wastewatch/internal/pkg/metrics"
)

// Subscriber implements ports.EventSubscriber using NATS JetStream.
type Subscriber struct {
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

// NewSubscriber creates a subscriber on a shared NATS connection.
func NewSubscriber(conn *nats.Conn) (*Subscriber, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Subscriber{js: js}, nil
}

// SubscribeReportEvents attaches a durable, manually acked consumer to the report stream.
// Undecodable messages are terminated; handler errors are redelivered up to three times.
func (s *Subscriber) SubscribeReportEvents(ctx context.Context, durable string, handler func(ctx context.Context, event *domain.ReportEvent) error) error {
	sub, err := s.js.Subscribe(ReportSubjects, func(msg *nats.Msg) {
		var event domain.ReportEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			slog.Warn("dropping malformed report event", "subject", msg.Subject, "error", err)
			metrics.EventsConsumed.WithLabelValues("unknown", "malformed").Inc()
			_ = msg.Term()
			return
		}
		if err := handler(ctx, &event); err != nil {
			slog.Warn("report event handler failed", "type", event.Type, "report_id", event.ReportID, "error", err)
			metrics.EventsConsumed.WithLabelValues(event.Type, "error").Inc()
			_ = msg.Nak()
			return
		}
		metrics.EventsConsumed.WithLabelValues(event.Type, "ok").Inc()
		_ = msg.Ack()
	},
		nats.Durable(durable),
		nats.ManualAck(),
		nats.MaxDeliver(3),
		nats.DeliverNew(),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes all consumers. The connection is owned by the caller.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
}
