package mqtt

import (
	"encoding/json"
	"fmt"
)

// maxPayloadSize caps a single message. Snapshots of a large panel stay
// well under it.
const maxPayloadSize = 256 << 10

// Publish sends payload on topic at the configured QoS. State topics are
// published retained; arming events and status pings are not.
func (c *Client) Publish(topic string, payload []byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %s: %d bytes exceeds %d", ErrPublishFailed, topic, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	if err := await(c.client.Publish(topic, c.qos, retained, payload)); err != nil {
		c.failed.Add(1)
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	c.published.Add(1)
	return nil
}

// PublishJSON encodes v and publishes it. It is what the event sink uses
// for panel and device state.
func (c *Client) PublishJSON(topic string, v any, retained bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %w", ErrPublishFailed, topic, err)
	}
	return c.Publish(topic, payload, retained)
}
