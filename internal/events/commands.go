package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/skysync/internal/device"
	"github.com/nerrad567/skysync/internal/infrastructure/mqtt"
)

// commandTimeout bounds one submission triggered by an MQTT command.
const commandTimeout = 30 * time.Second

// ErrUnknownCommand is returned for payloads that name no known action.
var ErrUnknownCommand = errors.New("events: unknown command")

// PanelLookup resolves tracked panels.
type PanelLookup interface {
	Panel(id string) (*device.Panel, error)
}

// Subscriber is the MQTT subscription subset used by Commands.
// *mqtt.Client satisfies it.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Commands maps MQTT command topics onto panel and device commands.
//
//	{prefix}/panel/{panel_id}/arm/set                    payload: arm state name, e.g. "armed_away"
//	{prefix}/panel/{panel_id}/device/{device_id}/set     payload: lock | unlock | open | close
//
// Submissions are fire-and-forget; the resulting state arrives later on the
// state topics.
type Commands struct {
	sub    Subscriber
	topics mqtt.Topics
	panels PanelLookup
	qos    byte
	logger Logger
}

// NewCommands creates a command listener. Call Start to subscribe.
func NewCommands(sub Subscriber, topics mqtt.Topics, panels PanelLookup, qos byte, logger Logger) *Commands {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Commands{sub: sub, topics: topics, panels: panels, qos: qos, logger: logger}
}

// Start subscribes to the arm and device command topics.
func (c *Commands) Start() error {
	if err := c.sub.Subscribe(c.topics.AllArmCommands(), c.qos, c.Handle); err != nil {
		return fmt.Errorf("subscribing to arm commands: %w", err)
	}
	if err := c.sub.Subscribe(c.topics.AllDeviceCommands(), c.qos, c.Handle); err != nil {
		return fmt.Errorf("subscribing to device commands: %w", err)
	}
	c.logger.Info("listening for mqtt commands", "prefix", c.topics.Prefix())
	return nil
}

// Stop removes both subscriptions.
func (c *Commands) Stop() error {
	return errors.Join(
		c.sub.Unsubscribe(c.topics.AllArmCommands()),
		c.sub.Unsubscribe(c.topics.AllDeviceCommands()),
	)
}

// Handle processes one command message. It is the mqtt.MessageHandler for
// both subscriptions.
func (c *Commands) Handle(topic string, payload []byte) error {
	target, ok := c.topics.ParseCommand(topic)
	if !ok {
		return fmt.Errorf("%w: topic %s", ErrUnknownCommand, topic)
	}

	p, err := c.panels.Panel(target.PanelID)
	if err != nil {
		return err
	}

	action := strings.ToLower(strings.TrimSpace(string(payload)))
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if target.DeviceID == "" {
		state, ok := device.ArmStateByName(action)
		if !ok {
			return fmt.Errorf("%w: arm state %q", ErrUnknownCommand, action)
		}
		c.logger.Info("mqtt arm command", "panel_id", p.ID(), "state", state)
		return p.SetArmState(ctx, state)
	}

	d, err := p.Device(target.DeviceID)
	if err != nil {
		return err
	}
	c.logger.Info("mqtt device command", "panel_id", p.ID(), "device_id", d.ID(), "action", action)
	return device.Do(ctx, d, action)
}
