package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/pharmacover/internal/core/domain"
)

// Subscriber consumes search events from NATS.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

// NewSubscriber creates a subscriber sharing conn.
func NewSubscriber(conn *nats.Conn) (*Subscriber, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Subscriber{conn: conn, js: js}, nil
}

// RelayUser forwards the raw progress and completion payloads of one user to
// fn until the returned stop function is called.
func (s *Subscriber) RelayUser(username string, fn func(data []byte)) (func(), error) {
	sub, err := s.conn.Subscribe(SubjectUserEvents(username), func(msg *nats.Msg) {
		fn(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("relay %s: %w", username, err)
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

// SubscribeCompleted consumes completion events through a durable consumer.
// Messages whose handler fails are redelivered up to three times.
func (s *Subscriber) SubscribeCompleted(ctx context.Context, durable string, handler func(ctx context.Context, ev *domain.SearchCompleted) error) error {
	sub, err := s.js.Subscribe(SubjectAllCompleted, func(msg *nats.Msg) {
		var ev domain.SearchCompleted
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			slog.Warn("dropping malformed search.completed event", "subject", msg.Subject, "error", err)
			_ = msg.Term()
			return
		}
		if err := handler(ctx, &ev); err != nil {
			_ = msg.Nak()
			return
		}
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

// Close unsubscribes the durable consumers. The connection is left to its owner.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
}
