// Package events turns panel and device change notifications into Events and
// delivers them to outbound sinks: MQTT, InfluxDB, the change journal and the
// local WebSocket hub.
//
// A Fanout is attached to each panel once it is built. Hooks enqueue events
// without blocking the push delivery path; Run drains the queue in order and
// hands every event to every sink.
//
//	fan := events.NewFanout(logger, mqttSink, influxSink, journalSink)
//	go fan.Run(ctx)
//	fan.Attach(panel)
//
// The package also carries the inbound half of the MQTT bridge: Commands
// subscribes to the .../set topics and submits lock, garage door and arm
// requests through the panel tree.
package events
