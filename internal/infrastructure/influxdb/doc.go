// Package influxdb provides InfluxDB connectivity for skysync.
//
// It wraps the influxdb-client-go v2 batched write API. Only the events
// sink writes through it.
//
// # Purpose
//
// Every change the mirror applies can be recorded as a point, giving a
// history of lock, door, sensor and arm states that outlives the process:
//   - device_state: one point per device change (panel_id, device_id, kind tags)
//   - arm_state: one point per panel arm-state change (panel_id tag)
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteArmState("123456", 4, "armed_away", true, time.Now())
//
// # Error Handling
//
// Writes are non-blocking; batch failures are delivered to the OnWriteError
// callback and counted (see Counts). Connection and health check errors are returned directly.
package influxdb
