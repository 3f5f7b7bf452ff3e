package mqtt

import (
	"fmt"
	"maps"
	"slices"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// MessageHandler receives one inbound message. A returned error is logged
// with the topic; it does not stop delivery of later messages.
type MessageHandler func(topic string, payload []byte) error

type subscription struct {
	qos     byte
	handler MessageHandler
}

// Subscribe registers handler for a topic filter (wildcards allowed) and
// remembers it so the subscription is replayed after a reconnect.
func (c *Client) Subscribe(filter string, qos byte, handler MessageHandler) error {
	if filter == "" {
		return ErrInvalidTopic
	}
	if qos > 2 {
		return fmt.Errorf("%w: qos %d", ErrSubscribeFailed, qos)
	}
	if handler == nil {
		return fmt.Errorf("%w: %s: nil handler", ErrSubscribeFailed, filter)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	if err := await(c.client.Subscribe(filter, qos, c.dispatch(handler))); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, filter, err)
	}

	c.mu.Lock()
	c.subs[filter] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()
	return nil
}

// Unsubscribe drops a filter previously passed to Subscribe. Messages
// already in flight may still reach the handler.
func (c *Client) Unsubscribe(filter string) error {
	if filter == "" {
		return ErrInvalidTopic
	}

	c.mu.Lock()
	delete(c.subs, filter)
	c.mu.Unlock()

	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := await(c.client.Unsubscribe(filter)); err != nil {
		return fmt.Errorf("%w: unsubscribing %s: %w", ErrSubscribeFailed, filter, err)
	}
	return nil
}

// Subscriptions returns the tracked topic filters, sorted.
func (c *Client) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subs))
	for f := range c.subs {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}

// resubscribe replays every tracked filter. Called from the connect
// handler, so failures are only logged.
func (c *Client) resubscribe() {
	c.mu.Lock()
	subs := maps.Clone(c.subs)
	c.mu.Unlock()

	for filter, s := range subs {
		if err := await(c.client.Subscribe(filter, s.qos, c.dispatch(s.handler))); err != nil {
			c.log().Warn("restoring MQTT subscription failed", "filter", filter, "error", err)
		}
	}
}

// dispatch adapts a MessageHandler to paho, counting deliveries and
// containing handler panics.
func (c *Client) dispatch(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.received.Add(1)
		defer func() {
			if r := recover(); r != nil {
				c.log().Error("MQTT handler panic", "topic", msg.Topic(), "panic", r)
			}
		}()
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.log().Warn("MQTT message rejected", "topic", msg.Topic(), "error", err)
		}
	}
}

// await waits for a paho token with the ack timeout.
func await(tok pahomqtt.Token) error {
	if !tok.WaitTimeout(ackTimeout) {
		return fmt.Errorf("no ack after %v", ackTimeout)
	}
	return tok.Error()
}
