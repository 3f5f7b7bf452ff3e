package device

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

const testSnapshot = `{
	"panid": 123456,
	"sn": "Home",
	"add": "1 Main St",
	"cit": "Provo",
	"poc": "84601",
	"csce": "heat",
	"plctx": {"ctxid": "a"},
	"par": [{
		"parid": 1,
		"s": 0,
		"d": [
			{"_id": 10, "t": "door_lock_device", "n": "Front Door", "s": false, "bl": 80},
			{"_id": 11, "t": "garage_door_device", "n": "Garage", "s": 4},
			{"_id": 12, "t": "wireless_sensor", "n": "Back Window", "s": false, "lb": true,
			 "sensor_firmware_version": "1.0.4"},
			{"_id": 13, "t": "camera_device", "n": "Porch", "sv": "3.2",
			 "ciu": ["rtsp://10.0.0.5:8554/hd"], "cius": ["rtsp://10.0.0.5:8554/sd"],
			 "cda": true, "un": "admin", "pswd": "pw", "caip": "10.0.0.9", "cap": 554,
			 "cdp": "live/main", "cdps": "live/sub"},
			{"_id": 14, "t": "yofi_device", "n": "Router", "fwv": [[1, 2], [3]],
			 "cfg": {"mode": "auto", "band": {"a": 1, "b": 2}}}
		]
	}]
}`

func decodeJSON(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		t.Fatalf("decoding fixture: %v", err)
	}
	return m
}

func newTestPanel(t *testing.T, cmd Commander) *Panel {
	t.Helper()
	descriptor := decodeJSON(t, `{"panid": 123456, "sn": "Home", "par": [{"parid": 1, "s": 0}]}`)
	p, err := BuildPanel(descriptor, decodeJSON(t, testSnapshot), Env{Commander: cmd})
	if err != nil {
		t.Fatalf("BuildPanel() error = %v", err)
	}
	return p
}

func mustDevice(t *testing.T, p *Panel, id string) Device {
	t.Helper()
	d, err := p.Device(id)
	if err != nil {
		t.Fatalf("Device(%q) error = %v", id, err)
	}
	return d
}

func TestBuildPanel(t *testing.T) {
	p := newTestPanel(t, nil)

	if p.ID() != "123456" {
		t.Errorf("ID() = %q, want 123456", p.ID())
	}
	if p.Name() != "Home" {
		t.Errorf("Name() = %q, want Home", p.Name())
	}
	if p.Street() != "1 Main St" || p.City() != "Provo" || p.ZipCode() != "84601" {
		t.Errorf("address = %q, %q, %q", p.Street(), p.City(), p.ZipCode())
	}
	if p.ClimateState() != "heat" {
		t.Errorf("ClimateState() = %q, want heat", p.ClimateState())
	}
	if p.ArmState() != ArmStateDisarmed {
		t.Errorf("ArmState() = %v, want disarmed", p.ArmState())
	}
	if p.PartitionID() != "1" {
		t.Errorf("PartitionID() = %q, want 1", p.PartitionID())
	}
	if p.DeviceCount() != 5 {
		t.Fatalf("DeviceCount() = %d, want 5", p.DeviceCount())
	}

	wantKinds := map[string]Kind{
		"10": KindLock,
		"11": KindGarageDoor,
		"12": KindSensor,
		"13": KindCamera,
		"14": KindUnknown,
	}
	for id, want := range wantKinds {
		d := mustDevice(t, p, id)
		if d.Kind() != want {
			t.Errorf("device %s Kind() = %v, want %v", id, d.Kind(), want)
		}
		if !d.Active() {
			t.Errorf("device %s should start active", id)
		}
		if d.Panel() != p {
			t.Errorf("device %s Panel() is not the owning panel", id)
		}
	}

	if _, ok := mustDevice(t, p, "10").(*Lock); !ok {
		t.Error("door_lock_device should be *Lock")
	}

	// Device lists are held by the devices, not the panel snapshot.
	if part := firstPartition(p.Snapshot()); part == nil || part["d"] != nil {
		t.Errorf("snapshot partition = %v, want partition without device list", part)
	}
}

func TestBuildPanel_UnknownKindIsGeneric(t *testing.T) {
	p := newTestPanel(t, nil)

	d := mustDevice(t, p, "14")
	g, ok := d.(*Generic)
	if !ok {
		t.Fatalf("yofi_device is %T, want *Generic", d)
	}
	if g.KindTag() != "yofi_device" {
		t.Errorf("KindTag() = %q", g.KindTag())
	}
	if g.Name() != "Router" {
		t.Errorf("Name() = %q", g.Name())
	}
}

func TestBuildPanel_NoPanelID(t *testing.T) {
	_, err := BuildPanel(nil, map[string]any{"par": []any{}}, Env{})
	if !errors.Is(err, ErrInvalidSnapshot) {
		t.Errorf("BuildPanel() error = %v, want ErrInvalidSnapshot", err)
	}
}

func TestBuildPanel_CustomKindTable(t *testing.T) {
	kinds := NewKindTable(map[string]KindBinding{
		"yofi_device": {Kind: KindSensor, Constructor: newSensor},
	})
	p, err := BuildPanel(nil, decodeJSON(t, testSnapshot), Env{Kinds: kinds})
	if err != nil {
		t.Fatalf("BuildPanel() error = %v", err)
	}

	if _, ok := mustDevice(t, p, "14").(*Sensor); !ok {
		t.Error("custom table should map yofi_device to *Sensor")
	}
	if _, ok := mustDevice(t, p, "10").(*Generic); !ok {
		t.Error("tags missing from a custom table fall back to *Generic")
	}
}

func TestPanel_DeviceNotFound(t *testing.T) {
	p := newTestPanel(t, nil)

	if _, err := p.Device("999"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Device() error = %v, want ErrDeviceNotFound", err)
	}
	if err := p.ApplyDeviceDiff("999", map[string]any{"s": true}); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("ApplyDeviceDiff() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestApplyDeviceDiff_LockNotifiesOnce(t *testing.T) {
	p := newTestPanel(t, nil)
	lock := mustDevice(t, p, "10").(*Lock)

	if lock.State() != Unlocked {
		t.Fatalf("State() = %v, want unlocked", lock.State())
	}

	var calls atomic.Int32
	lock.SetOnChange(func(d Device) {
		if d != Device(lock) {
			t.Errorf("hook got %p, want the lock itself", d)
		}
		calls.Add(1)
	})

	if err := p.ApplyDeviceDiff("10", map[string]any{"s": true}); err != nil {
		t.Fatalf("ApplyDeviceDiff() error = %v", err)
	}

	if lock.State() != Locked {
		t.Errorf("State() = %v, want locked", lock.State())
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("change notifications = %d, want 1", got)
	}
}

func TestApplyDeviceDiff_IdentityPreserved(t *testing.T) {
	p := newTestPanel(t, nil)
	before := mustDevice(t, p, "11")

	for i := 0; i < 3; i++ {
		if err := p.ApplyDeviceDiff("11", map[string]any{"s": float64(i)}); err != nil {
			t.Fatalf("ApplyDeviceDiff() error = %v", err)
		}
	}
	if err := p.ApplySnapshotRefresh(decodeJSON(t, testSnapshot)); err != nil {
		t.Fatalf("ApplySnapshotRefresh() error = %v", err)
	}

	if after := mustDevice(t, p, "11"); after != before {
		t.Error("Device() returned a different object after diffs and refresh")
	}
}

func TestApplyDeviceDiff_MergeRules(t *testing.T) {
	p := newTestPanel(t, nil)

	diff := map[string]any{
		"cfg": map[string]any{"band": map[string]any{"b": 5.0, "c": 6.0}},
		"fwv": []any{[]any{9.0}},
	}
	if err := p.ApplyDeviceDiff("14", diff); err != nil {
		t.Fatalf("ApplyDeviceDiff() error = %v", err)
	}

	attrs := mustDevice(t, p, "14").Attributes()
	cfg := attrs["cfg"].(map[string]any)
	if cfg["mode"] != "auto" {
		t.Errorf("cfg.mode = %v, want auto (untouched sibling key)", cfg["mode"])
	}
	band := cfg["band"].(map[string]any)
	if band["a"] != 1.0 || band["b"] != 5.0 || band["c"] != 6.0 {
		t.Errorf("cfg.band = %v, want deep merge {a:1 b:5 c:6}", band)
	}
	if fwv := attrs["fwv"].([]any); len(fwv) != 1 {
		t.Errorf("fwv = %v, want list replaced", fwv)
	}

	// The diff is copied, not aliased.
	diff["cfg"].(map[string]any)["band"].(map[string]any)["b"] = 99.0
	band = mustDevice(t, p, "14").Attributes()["cfg"].(map[string]any)["band"].(map[string]any)
	if band["b"] != 5.0 {
		t.Error("mutating the applied diff changed device state")
	}
}

func TestApplyDeviceDiffs_UnknownDeviceReported(t *testing.T) {
	p := newTestPanel(t, nil)

	var changed []string
	p.SetOnDeviceChange(func(d Device) { changed = append(changed, d.ID()) })

	err := p.ApplyDeviceDiffs([]any{
		map[string]any{"_id": 10.0, "s": true},
		map[string]any{"_id": 777.0, "s": true},
		map[string]any{"s": true},
		map[string]any{"_id": 12.0, "s": true},
	})

	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("error = %v, want ErrDeviceNotFound", err)
	}
	if !errors.Is(err, ErrMissingID) {
		t.Errorf("error = %v, want ErrMissingID", err)
	}
	if len(changed) != 2 || changed[0] != "10" || changed[1] != "12" {
		t.Errorf("changed = %v, want [10 12]", changed)
	}
	if mustDevice(t, p, "12").(*Sensor).State() != SensorOpened {
		t.Error("known entries after an unknown one must still apply")
	}
}

func TestApplySystemDiff_RoundTrip(t *testing.T) {
	p := newTestPanel(t, nil)

	var calls int
	p.SetOnChange(func(*Panel) { calls++ })

	p.ApplySystemDiff(map[string]any{"csce": "cool"})
	if p.ClimateState() != "cool" {
		t.Errorf("ClimateState() = %q, want cool", p.ClimateState())
	}
	snap := p.Snapshot()

	p.ApplySystemDiff(map[string]any{"csce": "cool"})
	if p.ClimateState() != "cool" {
		t.Errorf("ClimateState() after reapply = %q, want cool", p.ClimateState())
	}
	if again := p.Snapshot(); again["csce"] != snap["csce"] || len(again) != len(snap) {
		t.Errorf("reapplying the diff changed the snapshot: %v vs %v", again, snap)
	}
	if calls != 2 {
		t.Errorf("panel notifications = %d, want 2", calls)
	}
}

func TestApplySystemDiff_ListIsReplaced(t *testing.T) {
	p, err := BuildPanel(nil, map[string]any{
		"panid": 1.0,
		"par":   []any{map[string]any{"s": 0.0}},
	}, Env{})
	if err != nil {
		t.Fatalf("BuildPanel() error = %v", err)
	}

	p.ApplySystemDiff(map[string]any{"par": []any{map[string]any{"x": 1.0}}})

	part := firstPartition(p.Snapshot())
	if _, ok := part["s"]; ok {
		t.Errorf("par[0] = %v, want list replaced wholesale", part)
	}
	if part["x"] != 1.0 {
		t.Errorf("par[0].x = %v, want 1", part["x"])
	}
	if p.ArmState() != ArmStateUnknown {
		t.Errorf("ArmState() = %v, want unknown once s is gone", p.ArmState())
	}
}

func TestApplySystemDiff_NestedMapMerged(t *testing.T) {
	p := newTestPanel(t, nil)

	p.ApplySystemDiff(map[string]any{"plctx": map[string]any{"ctxid": "b"}})
	if v, _ := p.SystemAttribute("plctx"); v.(map[string]any)["ctxid"] != "a" {
		t.Errorf("plctx = %v, want ignored", v)
	}

	p.ApplySystemDiff(map[string]any{"cfg": map[string]any{"a": 1.0}})
	p.ApplySystemDiff(map[string]any{"cfg": map[string]any{"b": 2.0}})
	v, _ := p.SystemAttribute("cfg")
	cfg := v.(map[string]any)
	if cfg["a"] != 1.0 || cfg["b"] != 2.0 {
		t.Errorf("cfg = %v, want merged {a:1 b:2}", cfg)
	}
}

func TestApplySystemDiff_NotifiesOncePerDiff(t *testing.T) {
	p := newTestPanel(t, nil)

	var calls int
	p.SetOnChange(func(*Panel) { calls++ })

	p.ApplySystemDiff(map[string]any{"csce": "cool", "add": "2 Main St", "cit": "Orem", "plctx": 1.0})
	if calls != 1 {
		t.Errorf("notifications = %d, want 1", calls)
	}

	p.ApplySystemDiff(map[string]any{"plctx": 2.0})
	if calls != 1 {
		t.Errorf("notifications after ignored-only diff = %d, want 1", calls)
	}
}

func TestApplySystemDiff_ArmingEvent(t *testing.T) {
	p := newTestPanel(t, nil)

	var events []ArmingEvent
	p.SetOnArming(func(ev ArmingEvent) { events = append(events, ev) })

	p.ApplySystemDiff(map[string]any{
		"par":  []any{map[string]any{"parid": 1.0, "s": 4.0}},
		"seca": map[string]any{"n": "Owner", "ts": "2026-10-17T09:00:00Z"},
	})

	if len(events) != 1 {
		t.Fatalf("arming events = %d, want 1", len(events))
	}
	ev := events[0]
	if !ev.Armed || ev.Key != "seca" || ev.PanelID != "123456" {
		t.Errorf("event = %+v", ev)
	}
	if ev.State != ArmStateArmedAway {
		t.Errorf("event State = %v, want armed_away", ev.State)
	}
	if _, ok := p.SystemAttribute("seca"); !ok {
		t.Error("arming key should also be stored in the snapshot")
	}

	p.ApplySystemDiff(map[string]any{"secd": map[string]any{"n": "Owner"}})
	if len(events) != 2 || events[1].Armed {
		t.Errorf("events = %+v, want a disarm event", events)
	}
}

func TestApplySnapshotRefresh_OmittedDeviceMarkedInactive(t *testing.T) {
	p := newTestPanel(t, nil)
	sensor := mustDevice(t, p, "12")

	var notified []string
	p.SetOnDeviceChange(func(d Device) { notified = append(notified, d.ID()) })

	refresh := decodeJSON(t, testSnapshot)
	part := firstPartition(refresh)
	devices := part["d"].([]any)
	// Drop device 12 and add a device the panel has never seen.
	part["d"] = append([]any{devices[0], devices[1], devices[3], devices[4]},
		map[string]any{"_id": 99.0, "t": "wireless_sensor"})
	refresh["csce"] = "off"

	if err := p.ApplySnapshotRefresh(refresh); err != nil {
		t.Fatalf("ApplySnapshotRefresh() error = %v", err)
	}

	if sensor.Active() {
		t.Error("omitted device should be inactive")
	}
	if got, _ := p.Device("12"); got != sensor {
		t.Error("omitted device must stay in the tree")
	}
	if _, err := p.Device("99"); !errors.Is(err, ErrDeviceNotFound) {
		t.Error("device first seen in a refresh must be ignored")
	}
	if p.ClimateState() != "off" {
		t.Errorf("ClimateState() = %q, want off", p.ClimateState())
	}
	if len(notified) != 1 || notified[0] != "12" {
		t.Errorf("notified = %v, want [12]", notified)
	}

	// Listed again: reactivated in place.
	notified = nil
	if err := p.ApplySnapshotRefresh(decodeJSON(t, testSnapshot)); err != nil {
		t.Fatalf("ApplySnapshotRefresh() error = %v", err)
	}
	if !sensor.Active() {
		t.Error("device listed again should be active")
	}
	if len(notified) != 1 || notified[0] != "12" {
		t.Errorf("notified = %v, want [12]", notified)
	}
}

func TestApplySnapshotRefresh_WrongPanel(t *testing.T) {
	p := newTestPanel(t, nil)
	if err := p.ApplySnapshotRefresh(map[string]any{"panid": 1.0}); !errors.Is(err, ErrInvalidSnapshot) {
		t.Errorf("error = %v, want ErrInvalidSnapshot", err)
	}
}

func TestPanel_ReadersNeverSeePartialDiff(t *testing.T) {
	p := newTestPanel(t, nil)
	dev := mustDevice(t, p, "14")

	const rounds = 500
	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			attrs := dev.Attributes()
			a, _ := attrs["pa"].(float64)
			b, _ := attrs["pb"].(float64)
			if a != b {
				t.Errorf("observed partial diff: pa=%v pb=%v", a, b)
				return
			}
		}
	}()

	for i := 1; i <= rounds; i++ {
		v := float64(i)
		if err := p.ApplyDeviceDiff("14", map[string]any{"pa": v, "pb": v}); err != nil {
			t.Fatalf("ApplyDeviceDiff() error = %v", err)
		}
	}
	close(stop)
	wg.Wait()
}

func TestApplySystemDiff_PartitionDevicesStripped(t *testing.T) {
	p := newTestPanel(t, nil)

	p.ApplySystemDiff(map[string]any{"par": []any{map[string]any{
		"parid": 1.0,
		"s":     3.0,
		"d":     []any{map[string]any{"_id": 10.0, "s": true}},
	}}})

	part := firstPartition(p.Snapshot())
	if _, ok := part["d"]; ok {
		t.Errorf("par[0] = %v, want the device list stripped", part)
	}
	if p.ArmState() != ArmStateArmedStay {
		t.Errorf("ArmState() = %v, want armed_stay", p.ArmState())
	}
	if got := p.View().System; firstPartition(got)["d"] != nil {
		t.Errorf("View().System = %v, want no device list", got)
	}
}

func TestPanel_View(t *testing.T) {
	p := newTestPanel(t, nil)

	v := p.View()
	if v.Name != "Home" || v.ArmState != ArmStateDisarmed {
		t.Errorf("View() = %+v", v)
	}
	if v.System["csce"] != "heat" {
		t.Errorf("View().System = %v", v.System)
	}

	v.System["csce"] = "mutated"
	if p.ClimateState() != "heat" {
		t.Error("View().System must be a copy")
	}
}

func TestViewOf_StateMatchesAttributes(t *testing.T) {
	p := newTestPanel(t, nil)
	lock := mustDevice(t, p, "10")

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			v := ViewOf(lock)
			locked, _ := v.Attributes["s"].(bool)
			if (v.State == Locked.String()) != locked {
				t.Errorf("torn view: state=%q attrs[s]=%v", v.State, v.Attributes["s"])
				return
			}
			if v.Name != "Front Door" || !v.Active {
				t.Errorf("view = %+v", v)
				return
			}
		}
	}()

	for i := 0; i < 500; i++ {
		if err := p.ApplyDeviceDiff("10", map[string]any{"s": i%2 == 0}); err != nil {
			t.Fatalf("ApplyDeviceDiff() error = %v", err)
		}
	}
	close(stop)
	wg.Wait()
}
