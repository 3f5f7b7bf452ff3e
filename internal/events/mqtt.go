package events

import (
	"context"
	"fmt"

	"github.com/nerrad567/skysync/internal/infrastructure/mqtt"
)

// Publisher is the MQTT publishing subset used by MQTTSink.
// *mqtt.Client satisfies it.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// MQTTSink publishes device and panel state as retained JSON, and arming
// events as plain messages.
//
// Topics:
//
//	{prefix}/panel/{panel_id}/state                      retained
//	{prefix}/panel/{panel_id}/device/{device_id}/state   retained
//	{prefix}/panel/{panel_id}/arming
type MQTTSink struct {
	pub    Publisher
	topics mqtt.Topics
}

// NewMQTTSink creates a sink publishing under topics.
func NewMQTTSink(pub Publisher, topics mqtt.Topics) *MQTTSink {
	return &MQTTSink{pub: pub, topics: topics}
}

// Name implements Sink.
func (s *MQTTSink) Name() string { return "mqtt" }

// Handle implements Sink.
func (s *MQTTSink) Handle(_ context.Context, ev Event) error {
	switch ev.Kind {
	case KindDeviceChanged:
		return s.pub.PublishJSON(s.topics.DeviceState(ev.PanelID, ev.DeviceID), ev, true)
	case KindPanelChanged:
		return s.pub.PublishJSON(s.topics.PanelState(ev.PanelID), ev, true)
	case KindPanelArming:
		return s.pub.PublishJSON(s.topics.PanelArming(ev.PanelID), ev, false)
	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
}
