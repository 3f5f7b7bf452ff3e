package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when the configured prefix is empty.
const DefaultTopicPrefix = "skysync"

// Topics builds the skysync topic tree under one prefix.
//
//	{prefix}/status                                  bridge online/offline (retained, LWT)
//	{prefix}/panel/{panel}/state                     panel state (retained)
//	{prefix}/panel/{panel}/arming                    arm/disarm events
//	{prefix}/panel/{panel}/arm/set                   arm-state command
//	{prefix}/panel/{panel}/device/{device}/state     device state (retained)
//	{prefix}/panel/{panel}/device/{device}/set       device command
type Topics struct {
	prefix string
}

// NewTopics returns a topic builder for prefix. Surrounding slashes are
// trimmed.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the topic prefix.
func (t Topics) Prefix() string { return t.prefix }

// Status returns the bridge status topic.
func (t Topics) Status() string {
	return fmt.Sprintf("%s/status", t.prefix)
}

// PanelState returns the retained panel state topic.
func (t Topics) PanelState(panelID string) string {
	return fmt.Sprintf("%s/panel/%s/state", t.prefix, panelID)
}

// PanelArming returns the topic arm/disarm events are published on.
func (t Topics) PanelArming(panelID string) string {
	return fmt.Sprintf("%s/panel/%s/arming", t.prefix, panelID)
}

// ArmCommand returns the topic accepting arm-state names for a panel.
func (t Topics) ArmCommand(panelID string) string {
	return fmt.Sprintf("%s/panel/%s/arm/set", t.prefix, panelID)
}

// DeviceState returns the retained device state topic.
func (t Topics) DeviceState(panelID, deviceID string) string {
	return fmt.Sprintf("%s/panel/%s/device/%s/state", t.prefix, panelID, deviceID)
}

// DeviceCommand returns the topic accepting commands for a device.
func (t Topics) DeviceCommand(panelID, deviceID string) string {
	return fmt.Sprintf("%s/panel/%s/device/%s/set", t.prefix, panelID, deviceID)
}

// AllArmCommands matches every panel's arm command topic.
func (t Topics) AllArmCommands() string {
	return fmt.Sprintf("%s/panel/+/arm/set", t.prefix)
}

// AllDeviceCommands matches every device command topic.
func (t Topics) AllDeviceCommands() string {
	return fmt.Sprintf("%s/panel/+/device/+/set", t.prefix)
}

// CommandTarget is the panel and, for device commands, the device a
// command topic addresses.
type CommandTarget struct {
	PanelID  string
	DeviceID string // empty for arm commands
}

// ParseCommand extracts the target of a command topic. ok is false for
// anything that is not one of this prefix's command topics.
func (t Topics) ParseCommand(topic string) (CommandTarget, bool) {
	rest, found := strings.CutPrefix(topic, t.prefix+"/panel/")
	if !found {
		return CommandTarget{}, false
	}

	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 3 && parts[1] == "arm" && parts[2] == "set" && parts[0] != "":
		return CommandTarget{PanelID: parts[0]}, true
	case len(parts) == 4 && parts[1] == "device" && parts[3] == "set" && parts[0] != "" && parts[2] != "":
		return CommandTarget{PanelID: parts[0], DeviceID: parts[2]}, true
	}
	return CommandTarget{}, false
}
