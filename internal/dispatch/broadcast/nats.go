package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/haulite/internal/dispatch/domain"
)

// NATSPublisher mirrors dispatch events onto a NATS subject so downstream
// consumers (notifications, analytics) can react without a websocket session.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSPublisher builds a publisher; a nil connection yields a no-op.
func NewNATSPublisher(conn *nats.Conn, subject string) *NATSPublisher {
	if subject == "" {
		subject = "dispatch.events"
	}
	return &NATSPublisher{conn: conn, subject: subject}
}

// Publish satisfies domain.EventPublisher.
func (p *NATSPublisher) Publish(ctx context.Context, event domain.DispatchEvent) error {
	if p == nil || p.conn == nil {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	return p.conn.PublishMsg(&nats.Msg{Subject: p.subject, Data: payload, Header: map[string][]string{
		"x-trace-id":   {traceIDFromContext(ctx)},
		"x-event-type": {string(event.Type)},
	}})
}

func traceIDFromContext(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span == nil {
		return ""
	}
	sc := span.SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}

// Fanout publishes to every configured publisher in order and reports the
// first failure after all deliveries were attempted.
type Fanout []domain.EventPublisher

// Publish satisfies domain.EventPublisher.
func (f Fanout) Publish(ctx context.Context, event domain.DispatchEvent) error {
	var firstErr error
	for _, pub := range f {
		if pub == nil {
			continue
		}
		if err := pub.Publish(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
