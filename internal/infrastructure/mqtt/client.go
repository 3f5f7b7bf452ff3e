package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/skysync/internal/infrastructure/config"
)

// Logger is the logging subset the client needs. *logging.Logger
// satisfies it.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Client is the bridge's broker connection. Change events go out through
// PublishJSON; command filters registered with Subscribe are replayed
// after every reconnect.
//
// All methods are safe for concurrent use.
type Client struct {
	client pahomqtt.Client
	topics Topics
	qos    byte
	id     identity

	connected atomic.Bool
	published atomic.Uint64
	received  atomic.Uint64
	failed    atomic.Uint64

	mu     sync.Mutex
	subs   map[string]subscription
	logger Logger
	onUp   func()
	onDown func(error)
}

// Stats counts traffic since Connect.
type Stats struct {
	Connected bool   `json:"connected"`
	Published uint64 `json:"published"`
	Received  uint64 `json:"received"`
	Failed    uint64 `json:"failed"`
}

// Connect dials the broker and announces the bridge online on
// {prefix}/status. version is included in the availability document.
//
// Returns ErrConnectionFailed (wrapped) if the broker does not accept the
// connection within the connect timeout.
func Connect(cfg config.MQTTConfig, version string) (*Client, error) {
	c := &Client{
		topics: NewTopics(cfg.TopicPrefix),
		qos:    byte(cfg.QoS),
		id:     identity{clientID: cfg.Broker.ClientID, version: version},
		subs:   make(map[string]subscription),
		logger: noopLogger{},
	}

	opts := newClientOptions(cfg, c.topics, c.id)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.up() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.down(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		c.log().Info("MQTT reconnecting", "broker", brokerURL(cfg.Broker))
	})

	c.client = pahomqtt.NewClient(opts)
	tok := c.client.Connect()
	if !tok.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: %s: no connack after %v", ErrConnectionFailed, brokerURL(cfg.Broker), connectTimeout)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, brokerURL(cfg.Broker), err)
	}

	// The connect handler runs on its own goroutine and may lag behind.
	c.connected.Store(true)
	return c, nil
}

func (c *Client) up() {
	c.connected.Store(true)
	c.resubscribe()
	c.announce(StatusOnline, "")

	c.mu.Lock()
	fn := c.onUp
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *Client) down(err error) {
	c.connected.Store(false)

	c.mu.Lock()
	fn := c.onDown
	c.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (c *Client) announce(status, reason string) {
	tok := c.client.Publish(c.topics.Status(), 1, true, availability(status, reason, c.id))
	if err := await(tok); err != nil {
		c.log().Warn("publishing bridge availability failed", "status", status, "error", err)
	}
}

// Close marks the bridge offline, so retained state is not mistaken for
// live state, and disconnects. Safe on a zero Client.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if c.IsConnected() {
		c.announce(StatusOffline, "shutdown")
	}
	c.client.Disconnect(quiesceMillis)
	c.connected.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether the broker link is up.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.connected.Load() && c.client.IsConnected()
}

// Topics returns the topic tree for the configured prefix.
func (c *Client) Topics() Topics { return c.topics }

// Stats returns the traffic counters.
func (c *Client) Stats() Stats {
	return Stats{
		Connected: c.IsConnected(),
		Published: c.published.Load(),
		Received:  c.received.Load(),
		Failed:    c.failed.Load(),
	}
}

// SetConnectionHooks registers callbacks for link up (initial connect and
// every reconnect) and link loss. Either may be nil.
func (c *Client) SetConnectionHooks(up func(), down func(error)) {
	c.mu.Lock()
	c.onUp, c.onDown = up, down
	c.mu.Unlock()
}

// SetLogger replaces the no-op logger.
func (c *Client) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	c.mu.Lock()
	c.logger = l
	c.mu.Unlock()
}

func (c *Client) log() Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.logger == nil {
		return noopLogger{}
	}
	return c.logger
}
