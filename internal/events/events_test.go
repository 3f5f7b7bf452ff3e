package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/skysync/internal/device"
	"github.com/nerrad567/skysync/internal/journal"
	"github.com/nerrad567/skysync/internal/skyapi"
)

const fixture = `{
	"panid": 123456,
	"sn": "Home",
	"csce": "heat",
	"par": [{"parid": 1, "s": 0, "d": [
		{"_id": 10, "t": "door_lock_device", "n": "Front Door", "s": false, "bl": 80},
		{"_id": 11, "t": "garage_door_device", "n": "Garage", "s": 1},
		{"_id": 12, "t": "wireless_sensor", "n": "Window", "s": false, "nested": {"a": 1}}
	]}]
}`

var testTime = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

type submission struct {
	op    string
	id    string
	value any
}

type fakeCommander struct {
	mu    sync.Mutex
	calls []submission
}

func (f *fakeCommander) add(s submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, s)
	return nil
}

func (f *fakeCommander) SetArmedState(_ context.Context, _, _ string, state int) error {
	return f.add(submission{op: "arm", value: state})
}

func (f *fakeCommander) SetLockState(_ context.Context, _, _, deviceID string, locked bool) error {
	return f.add(submission{op: "lock", id: deviceID, value: locked})
}

func (f *fakeCommander) SetGarageDoorState(_ context.Context, _, _, deviceID string, state int) error {
	return f.add(submission{op: "garage", id: deviceID, value: state})
}

func (f *fakeCommander) PanelCredentials(context.Context, string) (skyapi.PanelCredentials, error) {
	return skyapi.PanelCredentials{}, nil
}

func (f *fakeCommander) snapshot() []submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]submission(nil), f.calls...)
}

func newPanel(t *testing.T, cmd device.Commander) *device.Panel {
	t.Helper()
	var system map[string]any
	if err := json.Unmarshal([]byte(fixture), &system); err != nil {
		t.Fatalf("decoding fixture: %v", err)
	}
	env := device.Env{}
	if cmd != nil {
		env.Commander = cmd
	}
	p, err := device.BuildPanel(nil, system, env)
	if err != nil {
		t.Fatalf("BuildPanel() error = %v", err)
	}
	return p
}

func mustDevice(t *testing.T, p *device.Panel, id string) device.Device {
	t.Helper()
	d, err := p.Device(id)
	if err != nil {
		t.Fatalf("Device(%q) error = %v", id, err)
	}
	return d
}

func TestDeviceChanged(t *testing.T) {
	p := newPanel(t, nil)
	ev := DeviceChanged(mustDevice(t, p, "10"), testTime)

	if ev.Kind != KindDeviceChanged || ev.PanelID != "123456" || ev.DeviceID != "10" {
		t.Errorf("identity = %+v", ev)
	}
	if ev.DeviceKind != "lock" || ev.Name != "Front Door" || ev.State != "unlocked" || !ev.Active {
		t.Errorf("fields = %+v", ev)
	}
	if ev.Attributes["bl"] != 80.0 {
		t.Errorf("Attributes = %v", ev.Attributes)
	}
	if ev.Armed != nil {
		t.Error("device events carry no armed flag")
	}
	if !ev.Time.Equal(testTime) {
		t.Errorf("Time = %v", ev.Time)
	}
}

func TestPanelChanged(t *testing.T) {
	p := newPanel(t, nil)
	ev := PanelChanged(p, testTime)

	if ev.Kind != KindPanelChanged || ev.PanelID != "123456" || ev.State != "disarmed" {
		t.Errorf("event = %+v", ev)
	}
	if ev.Armed == nil || *ev.Armed {
		t.Errorf("Armed = %v, want false", ev.Armed)
	}
	if ev.Attributes["csce"] != "heat" {
		t.Errorf("Attributes = %v", ev.Attributes)
	}
}

func TestPanelArming(t *testing.T) {
	ev := PanelArming(device.ArmingEvent{
		PanelID: "123456",
		Key:     device.KeyArmed,
		Armed:   true,
		State:   device.ArmStateArmedAway,
		Data:    map[string]any{"n": "Owner"},
	}, testTime)

	if ev.Kind != KindPanelArming || ev.State != "armed_away" || ev.Armed == nil || !*ev.Armed {
		t.Errorf("event = %+v", ev)
	}
	if ev.Attributes["key"] != device.KeyArmed || ev.Attributes["data"] == nil {
		t.Errorf("Attributes = %v", ev.Attributes)
	}
}

type recordingSink struct {
	name string
	err  error

	mu     sync.Mutex
	events []Event
	seen   chan struct{}
}

func newRecordingSink(name string, err error) *recordingSink {
	return &recordingSink{name: name, err: err, seen: make(chan struct{}, 64)}
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Handle(_ context.Context, ev Event) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	s.seen <- struct{}{}
	return s.err
}

func (s *recordingSink) wait(t *testing.T, n int) []Event {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-s.seen:
		case <-time.After(2 * time.Second):
			t.Fatalf("sink %s saw %d events, want %d", s.name, i, n)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func TestFanout_DeliversInOrderToEverySink(t *testing.T) {
	failing := newRecordingSink("failing", errors.New("boom"))
	ok := newRecordingSink("ok", nil)
	f := NewFanout(nil, failing, nil, ok)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Run(ctx)

	p := newPanel(t, nil)
	f.Attach(p)

	if err := p.ApplyDeviceDiff("10", map[string]any{"s": true}); err != nil {
		t.Fatalf("ApplyDeviceDiff() error = %v", err)
	}
	p.ApplySystemDiff(map[string]any{"csce": "cool", device.KeyDisarmed: map[string]any{"n": "Owner"}})

	want := []Kind{KindDeviceChanged, KindPanelChanged, KindPanelArming}
	for _, s := range []*recordingSink{failing, ok} {
		got := s.wait(t, len(want))
		for i, k := range want {
			if got[i].Kind != k {
				t.Errorf("sink %s event %d = %s, want %s", s.name, i, got[i].Kind, k)
			}
		}
		if got[0].State != "locked" {
			t.Errorf("device event state = %q, want locked", got[0].State)
		}
	}
}

func TestFanout_DropsWhenFull(t *testing.T) {
	f := NewFanout(nil)
	for i := 0; i < DefaultQueueSize+3; i++ {
		f.Emit(Event{Kind: KindPanelChanged, PanelID: "1"})
	}
	if got := f.Dropped(); got != 3 {
		t.Errorf("Dropped() = %d, want 3", got)
	}
}

type published struct {
	topic    string
	retained bool
	v        any
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (f *fakePublisher) PublishJSON(topic string, v any, retained bool) error {
	f.msgs = append(f.msgs, published{topic: topic, retained: retained, v: v})
	return f.err
}

func TestMQTTSink(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewMQTTSink(pub, mqttTopics("home"))
	ctx := context.Background()

	events := []Event{
		{Kind: KindDeviceChanged, PanelID: "1", DeviceID: "10"},
		{Kind: KindPanelChanged, PanelID: "1"},
		{Kind: KindPanelArming, PanelID: "1"},
	}
	for _, ev := range events {
		if err := sink.Handle(ctx, ev); err != nil {
			t.Fatalf("Handle(%s) error = %v", ev.Kind, err)
		}
	}

	want := []published{
		{topic: "home/panel/1/device/10/state", retained: true},
		{topic: "home/panel/1/state", retained: true},
		{topic: "home/panel/1/arming", retained: false},
	}
	for i, w := range want {
		got := pub.msgs[i]
		if got.topic != w.topic || got.retained != w.retained {
			t.Errorf("publish %d = %s retained=%v, want %s retained=%v", i, got.topic, got.retained, w.topic, w.retained)
		}
	}

	if err := sink.Handle(ctx, Event{Kind: "bogus"}); err == nil {
		t.Error("Handle(unknown kind) expected error")
	}

	pub.err = errors.New("not connected")
	if err := sink.Handle(ctx, events[0]); err == nil {
		t.Error("publish error should propagate")
	}
}

type devicePoint struct {
	panelID, deviceID, kind string
	fields                  map[string]any
}

type armPoint struct {
	panelID string
	code    int
	name    string
	armed   bool
}

type fakeWriter struct {
	devices []devicePoint
	arms    []armPoint
}

func (f *fakeWriter) WriteDeviceState(panelID, deviceID, kind string, fields map[string]any, _ time.Time) {
	f.devices = append(f.devices, devicePoint{panelID, deviceID, kind, fields})
}

func (f *fakeWriter) WriteArmState(panelID string, code int, name string, armed bool, _ time.Time) {
	f.arms = append(f.arms, armPoint{panelID, code, name, armed})
}

func TestInfluxSink(t *testing.T) {
	w := &fakeWriter{}
	sink := NewInfluxSink(w)
	ctx := context.Background()
	p := newPanel(t, nil)

	_ = sink.Handle(ctx, DeviceChanged(mustDevice(t, p, "10"), testTime))
	_ = sink.Handle(ctx, DeviceChanged(mustDevice(t, p, "12"), testTime))

	if len(w.devices) != 2 {
		t.Fatalf("device points = %d, want 2", len(w.devices))
	}
	lock := w.devices[0]
	if lock.kind != "lock" || lock.fields["state"] != "unlocked" || lock.fields["bl"] != 80.0 || lock.fields["s"] != false {
		t.Errorf("lock fields = %+v", lock)
	}
	for _, k := range []string{"_id", "t", "n"} {
		if _, ok := lock.fields[k]; ok {
			t.Errorf("field %q should be skipped", k)
		}
	}
	if _, ok := w.devices[1].fields["nested"]; ok {
		t.Error("nested attributes should be skipped")
	}

	armed := true
	_ = sink.Handle(ctx, Event{Kind: KindPanelChanged, PanelID: "1", State: "armed_stay", Armed: &armed})
	_ = sink.Handle(ctx, Event{Kind: KindPanelChanged, PanelID: "1", State: "unknown"})
	_ = sink.Handle(ctx, Event{Kind: KindPanelArming, PanelID: "1"})

	want := []armPoint{{"1", 3, "armed_stay", true}, {"1", -1, "unknown", false}}
	if len(w.arms) != len(want) {
		t.Fatalf("arm points = %+v", w.arms)
	}
	for i := range want {
		if w.arms[i] != want[i] {
			t.Errorf("arm point %d = %+v, want %+v", i, w.arms[i], want[i])
		}
	}
}

type fakeRecorder struct {
	entries []journal.Entry
}

func (f *fakeRecorder) Record(_ context.Context, e journal.Entry) error {
	f.entries = append(f.entries, e)
	return nil
}

func TestJournalSink(t *testing.T) {
	rec := &fakeRecorder{}
	sink := NewJournalSink(rec)
	p := newPanel(t, nil)

	if err := sink.Handle(context.Background(), DeviceChanged(mustDevice(t, p, "11"), testTime)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := rec.entries[0]
	if got.Kind != "device.changed" || got.PanelID != "123456" || got.DeviceID != "11" ||
		got.DeviceKind != "garage_door" || got.State != "closed" || !got.RecordedAt.Equal(testTime) {
		t.Errorf("entry = %+v", got)
	}
	if got.Payload["n"] != "Garage" {
		t.Errorf("Payload = %v", got.Payload)
	}
}
