package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurements written by the client.
const (
	MeasurementDeviceState = "device_state"
	MeasurementArmState    = "arm_state"
)

// WriteDeviceState queues one device_state point tagged with the panel,
// device and kind. A change with no fields is skipped.
//
// Example:
//
//	client.WriteDeviceState("123456", "10", "lock",
//	    map[string]any{"locked": true, "battery": 80}, time.Now())
func (c *Client) WriteDeviceState(panelID, deviceID, kind string, fields map[string]any, ts time.Time) {
	if len(fields) == 0 {
		return
	}
	c.write(devicePoint(panelID, deviceID, kind, fields, ts))
}

// WriteArmState queues one arm_state point. code is the raw arm-state
// code, -1 when the panel reported something unknown; name is stored as a
// field so dashboards need no lookup table.
func (c *Client) WriteArmState(panelID string, code int, name string, armed bool, ts time.Time) {
	c.write(armPoint(panelID, code, name, armed, ts))
}

func (c *Client) write(p *write.Point) {
	if c.writeAPI == nil || c.closed.Load() {
		return
	}
	c.writeAPI.WritePoint(p)
	c.written.Add(1)
}

func devicePoint(panelID, deviceID, kind string, fields map[string]any, ts time.Time) *write.Point {
	return write.NewPoint(MeasurementDeviceState,
		map[string]string{"panel_id": panelID, "device_id": deviceID, "kind": kind},
		fields, ts)
}

func armPoint(panelID string, code int, name string, armed bool, ts time.Time) *write.Point {
	return write.NewPoint(MeasurementArmState,
		map[string]string{"panel_id": panelID},
		map[string]any{"code": code, "state": name, "armed": armed},
		ts)
}
