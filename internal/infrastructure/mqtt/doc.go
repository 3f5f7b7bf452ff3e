// Package mqtt provides the MQTT client skysync publishes change events
// through and receives commands on.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Retained state publishing for panels and devices
//   - Command topic subscriptions, restored after every reconnect
//   - A retained Availability document on {prefix}/status, doubling as
//     the last will so a crashed bridge reads offline
//
// # Topic Layout
//
// See Topics for the full tree. State topics are retained so a consumer
// that connects late sees the current mirror immediately; arming events
// and commands are not.
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS) when the broker is not on localhost
//   - Anyone who can publish to the command topics can arm, disarm and
//     unlock; restrict them with broker ACLs
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, version)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.PublishJSON(topics.PanelState("123456"), state, true)
package mqtt
