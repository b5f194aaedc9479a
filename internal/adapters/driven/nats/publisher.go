// Package nats publishes import lifecycle events to a NATS server.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/custodia-labs/voxstitch/internal/core/ports/driven"
)

// Ensure Publisher implements EventPublisher
var _ driven.EventPublisher = (*Publisher)(nil)

// DefaultSubjectPrefix namespaces every published subject
const DefaultSubjectPrefix = "voxstitch"

// conn is the part of *nats.Conn the publisher uses
type conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	Close()
}

// Config holds NATS connection settings
type Config struct {
	URL    string
	Token  string
	Prefix string
	Logger *slog.Logger
}

// Publisher sends JSON-encoded events under a subject prefix
type Publisher struct {
	conn   conn
	prefix string
	logger *slog.Logger
}

// Connect dials the server. Reconnects are handled by the client library.
func Connect(ctx context.Context, cfg Config) (*Publisher, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := []nats.Option{
		nats.Name("voxstitch"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Timeout(time.Until(deadline)))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return newPublisher(nc, cfg.Prefix, logger), nil
}

func newPublisher(c conn, prefix string, logger *slog.Logger) *Publisher {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: c, prefix: prefix, logger: logger}
}

// Subject returns the fully qualified subject for an event name.
func (p *Publisher) Subject(name string) string {
	return p.prefix + "." + name
}

// Publish marshals the payload to JSON and publishes it.
func (p *Publisher) Publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	full := p.Subject(subject)
	if err := p.conn.Publish(full, data); err != nil {
		return fmt.Errorf("publish %s: %w", full, err)
	}
	p.logger.Debug("event published", "subject", full, "bytes", len(data))
	return nil
}

// Subscribe registers a handler for an event name; wildcards are allowed.
func (p *Publisher) Subscribe(name string, handler func(subject string, data []byte)) (*nats.Subscription, error) {
	full := p.Subject(name)
	sub, err := p.conn.Subscribe(full, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", full, err)
	}
	return sub, nil
}

// Close drops the connection.
func (p *Publisher) Close() {
	p.conn.Close()
}
