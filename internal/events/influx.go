package events

import (
	"context"
	"strings"
	"time"

	"github.com/nerrad567/skysync/internal/device"
)

// PointWriter is the InfluxDB subset used by InfluxSink.
// *influxdb.Client satisfies it.
type PointWriter interface {
	WriteDeviceState(panelID, deviceID, kind string, fields map[string]any, ts time.Time)
	WriteArmState(panelID string, code int, name string, armed bool, ts time.Time)
}

// InfluxSink records device telemetry and panel arm state.
//
// Device points carry the interpreted state, activity and every top-level
// numeric or boolean attribute. Arming events are not written; the
// panel.changed event that accompanies them carries the arm state.
type InfluxSink struct {
	w PointWriter
}

// NewInfluxSink creates a sink writing through w.
func NewInfluxSink(w PointWriter) *InfluxSink {
	return &InfluxSink{w: w}
}

// Name implements Sink.
func (s *InfluxSink) Name() string { return "influxdb" }

// Handle implements Sink. Writes are batched by the client and never fail
// here.
func (s *InfluxSink) Handle(_ context.Context, ev Event) error {
	switch ev.Kind {
	case KindDeviceChanged:
		s.w.WriteDeviceState(ev.PanelID, ev.DeviceID, ev.DeviceKind, deviceFields(ev), ev.Time)
	case KindPanelChanged:
		state, ok := device.ArmStateByName(ev.State)
		if !ok {
			state = device.ArmStateUnknown
		}
		armed := ev.Armed != nil && *ev.Armed
		s.w.WriteArmState(ev.PanelID, int(state), state.String(), armed, ev.Time)
	}
	return nil
}

// deviceFields picks the attributes worth charting. Identity keys are
// skipped.
func deviceFields(ev Event) map[string]any {
	fields := map[string]any{"active": ev.Active}
	if ev.State != "" {
		fields["state"] = ev.State
	}
	for k, v := range ev.Attributes {
		if strings.HasPrefix(k, "_") || k == "t" {
			continue
		}
		switch v := v.(type) {
		case float64, bool:
			fields[k] = v
		}
	}
	return fields
}
