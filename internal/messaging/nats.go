// Package messaging provides a NATS client wrapper for pub/sub messaging
// between the platform adapter and the moderation engine. It handles
// connection lifecycle, subject-based subscriptions, and convenience
// methods for the event, decision and configuration channels.
package messaging

import (
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subject patterns used between the adapter and the engine.
const (
	SubjectEvents     = "events.inbound"
	SubjectDecision   = "decision" // + .<chat_id>
	SubjectAudit      = "audit.journal"
	SubjectInvalidate = "config.invalidate" // + .<chat_id>
)

// Client wraps the NATS connection with helper methods for pub/sub.
type Client struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// Config holds NATS connection settings.
type Config struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           "nats://localhost:4222",
		Name:          "warden",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewClient connects to NATS with the given config and returns a ready
// client. It returns an error if the initial connection fails.
func NewClient(config Config) (*Client, error) {
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

	return &Client{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *Client) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Subscribe registers a handler for the given subject and stores the
// subscription internally for later cleanup.
func (c *Client) Subscribe(subject string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()

	return nil
}

// QueueSubscribe registers a handler in a queue group so multiple engine
// instances share the event stream without double-processing.
func (c *Client) QueueSubscribe(subject, queue string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.QueueSubscribe(subject, queue, handler)
	if err != nil {
		return fmt.Errorf("nats queue subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()

	return nil
}

// SubscribeEvents subscribes to inbound platform events in the "engine"
// queue group and passes the raw message data to the handler.
func (c *Client) SubscribeEvents(handler func(data []byte)) error {
	return c.QueueSubscribe(SubjectEvents, "engine", func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// PublishEvent publishes an inbound platform event. Used by adapters and
// test drivers.
func (c *Client) PublishEvent(data []byte) error {
	return c.Publish(SubjectEvents, data)
}

// PublishDecision publishes an enforcement payload to the
// decision.<chat_id> subject consumed by the platform adapter.
func (c *Client) PublishDecision(chatID int64, data []byte) error {
	subject := SubjectDecision + "." + strconv.FormatInt(chatID, 10)
	return c.Publish(subject, data)
}

// SubscribeDecisions subscribes to enforcement payloads for a specific
// chat, or for all chats when chatID is zero.
func (c *Client) SubscribeDecisions(chatID int64, handler func(data []byte)) error {
	subject := SubjectDecision + ".*"
	if chatID != 0 {
		subject = SubjectDecision + "." + strconv.FormatInt(chatID, 10)
	}
	return c.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// PublishAudit publishes an audit copy of an enforcement payload.
func (c *Client) PublishAudit(data []byte) error {
	return c.Publish(SubjectAudit, data)
}

// SubscribeAudit subscribes to the audit stream.
func (c *Client) SubscribeAudit(handler func(data []byte)) error {
	return c.Subscribe(SubjectAudit, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// PublishInvalidate notifies engines that a chat's stored configuration
// changed and cached copies must be dropped.
func (c *Client) PublishInvalidate(chatID int64) error {
	subject := SubjectInvalidate + "." + strconv.FormatInt(chatID, 10)
	return c.Publish(subject, nil)
}

// SubscribeInvalidate subscribes to configuration invalidations for all
// chats. The handler receives the chat id parsed from the subject.
func (c *Client) SubscribeInvalidate(handler func(chatID int64)) error {
	subject := SubjectInvalidate + ".*"
	return c.Subscribe(subject, func(msg *nats.Msg) {
		idPart := msg.Subject[len(SubjectInvalidate)+1:]
		chatID, err := strconv.ParseInt(idPart, 10, 64)
		if err != nil {
			log.Printf("[nats] bad invalidate subject %q", msg.Subject)
			return
		}
		handler(chatID)
	})
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", subject, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}
