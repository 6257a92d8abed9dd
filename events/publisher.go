package events

import (
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// Publisher emits domain events to NATS. Events are advisory: publish
// failures are logged and dropped, never returned, so workflows keep
// running without a broker. A nil Publisher (or one without a connection)
// no-ops.
type Publisher struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLogger sets the logger used for publish failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// Connect dials NATS at url and returns a Publisher over the connection.
func Connect(url string, opts ...Option) (*Publisher, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	return NewPublisher(conn, opts...), nil
}

// NewPublisher wraps an existing NATS connection. A nil conn yields a
// no-op publisher, which is how disabled-events configurations run.
func NewPublisher(conn *nats.Conn, opts ...Option) *Publisher {
	p := &Publisher{
		conn:   conn,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish marshals event and publishes it on the event's subject.
func (p *Publisher) Publish(event Event) {
	if p == nil || p.conn == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal event", "subject", event.Subject(), "error", err)
		return
	}

	if err := p.conn.Publish(event.Subject(), data); err != nil {
		p.logger.Warn("Failed to publish event", "subject", event.Subject(), "error", err)
	}
}

// Close drains the connection, flushing buffered events.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn("NATS drain failed", "error", err)
	}
}
