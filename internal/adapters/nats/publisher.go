package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/pharmacover/internal/core/domain"
)

// completedStream retains completion events so late consumers can catch up.
var completedStream = nats.StreamConfig{
	Name:      "SEARCH_COMPLETED",
	Subjects:  []string{SubjectAllCompleted},
	Retention: nats.LimitsPolicy,
	MaxAge:    7 * 24 * time.Hour,
	Storage:   nats.FileStorage,
}

// Publisher implements ports.EventPublisher on NATS. Progress events go over
// core NATS; completion events are persisted in JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and ensures the completion stream exists.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, err
	}
	p, err := NewPublisherConn(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return p, nil
}

// NewPublisherConn builds a Publisher on an existing connection.
func NewPublisherConn(conn *nats.Conn) (*Publisher, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	cfg := completedStream
	if _, err := js.AddStream(&cfg); err != nil {
		if _, err := js.UpdateStream(&cfg); err != nil {
			return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
	}
	return &Publisher{conn: conn, js: js}, nil
}

// PublishProgress is fire-and-forget; nobody replays progress.
func (p *Publisher) PublishProgress(_ context.Context, ev *domain.SearchProgress) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.conn.Publish(SubjectProgress(ev.UserID), data)
}

// PublishCompleted waits for the JetStream ack. The message id makes
// redelivered publishes from workflow retries idempotent.
func (p *Publisher) PublishCompleted(ctx context.Context, ev *domain.SearchCompleted) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectCompleted(ev.UserID), data,
		nats.Context(ctx),
		nats.MsgId("search-completed-"+ev.SearchID),
	)
	return err
}

// Conn exposes the underlying connection for relays and health checks.
func (p *Publisher) Conn() *nats.Conn { return p.conn }

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection that keeps reconnecting.
func RawConn(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return conn, nil
}
