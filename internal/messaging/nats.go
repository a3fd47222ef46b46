// Package messaging wraps the NATS connection used to fan realtime store
// change notifications out to every server instance. Each store path maps to
// one subject; a notification carries no payload, it only tells subscribers
// to re-read the path.
package messaging

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectPrefix namespaces all store-change subjects.
const SubjectPrefix = "rt"

// PathSubject maps a store path to its notification subject, e.g.
// "chats/u1_u2/messages" -> "rt.chats.u1_u2.messages".
func PathSubject(path string) string {
	return SubjectPrefix + "." + strings.ReplaceAll(strings.Trim(path, "/"), "/", ".")
}

// NATSClient wraps the NATS connection with helpers for store-change pub/sub.
type NATSClient struct {
	conn *nats.Conn
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "meetchat",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready
// client. It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &NATSClient{conn: nc}, nil
}

// NotifyPathChanged publishes a change notification for a store path.
func (c *NATSClient) NotifyPathChanged(path string) error {
	return c.conn.Publish(PathSubject(path), nil)
}

// SubscribePath registers a handler invoked on every change notification for
// a store path. The returned subscription handle belongs to the caller;
// callers unsubscribe it when the watch is torn down.
func (c *NATSClient) SubscribePath(path string, handler func()) (*nats.Subscription, error) {
	subject := PathSubject(path)
	sub, err := c.conn.Subscribe(subject, func(_ *nats.Msg) {
		handler()
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", subject, err)
	}
	return sub, nil
}

// Close drains the NATS connection.
func (c *NATSClient) Close() {
	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}
	log.Printf("[nats] client closed")
}
