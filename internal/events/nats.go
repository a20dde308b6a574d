package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix prefixes every NATS subject
const DefaultSubjectPrefix = "backoffice.events"

// natsConn is the part of *nats.Conn the bus uses
type natsConn interface {
	Publish(subj string, data []byte) error
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
	Drain() error
	Close()
}

// NATSBus shares events between console processes over NATS.
// Events published by this process are delivered to local handlers directly and skipped when
// they come back from the server.
type NATSBus struct {
	conn   natsConn
	prefix string
	origin string
	local  *LocalBus

	mu   sync.Mutex
	subs map[Topic]*nats.Subscription
}

// NATSOption configures a NATSBus
type NATSOption func(*NATSBus)

// WithSubjectPrefix overrides DefaultSubjectPrefix
func WithSubjectPrefix(prefix string) NATSOption {
	return func(b *NATSBus) {
		b.prefix = strings.TrimSuffix(prefix, ".")
	}
}

// DialNATS connects to url and returns a bus on top of the connection
func DialNATS(url string, opts ...NATSOption) (*NATSBus, error) {
	conn, err := nats.Connect(url, nats.Name("bo-console"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return newNATSBus(conn, opts...), nil
}

func newNATSBus(conn natsConn, opts ...NATSOption) *NATSBus {
	b := &NATSBus{
		conn:   conn,
		prefix: DefaultSubjectPrefix,
		origin: uuid.NewString(),
		local:  NewLocalBus(),
		subs:   make(map[Topic]*nats.Subscription),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subject returns the NATS subject for topic
func (b *NATSBus) Subject(topic Topic) string {
	return b.prefix + "." + string(topic)
}

// Publish delivers evt locally and sends it to NATS
func (b *NATSBus) Publish(ctx context.Context, evt Event) error {
	evt.Origin = b.origin
	if err := b.local.Publish(ctx, evt); err != nil {
		return err
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := b.conn.Publish(b.Subject(evt.Topic), data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", evt.Topic, err)
	}
	return nil
}

// Subscribe registers h for topic, opening the NATS subscription on first use
func (b *NATSBus) Subscribe(topic Topic, h Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[topic]; !ok {
		sub, err := b.conn.Subscribe(b.Subject(topic), b.receive)
		if err != nil {
			return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
		b.subs[topic] = sub
	}
	return b.local.Subscribe(topic, h)
}

func (b *NATSBus) receive(msg *nats.Msg) {
	var evt Event
	if err := json.Unmarshal(msg.Data, &evt); err != nil {
		slog.Warn("Dropping malformed event", "subject", msg.Subject, "error", err)
		return
	}
	if evt.Origin == b.origin {
		return
	}
	if err := b.local.Publish(context.Background(), evt); err != nil {
		slog.Debug("Dropping event after close", "topic", evt.Topic)
	}
}

// Close unsubscribes, drains the connection and stops local delivery
func (b *NATSBus) Close() error {
	b.mu.Lock()
	for topic, sub := range b.subs {
		if sub != nil {
			if err := sub.Unsubscribe(); err != nil {
				slog.Warn("Failed to unsubscribe", "topic", topic, "error", err)
			}
		}
		delete(b.subs, topic)
	}
	b.mu.Unlock()

	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
	}
	return b.local.Close()
}
