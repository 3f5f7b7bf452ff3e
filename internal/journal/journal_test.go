package journal

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/skysync/internal/infrastructure/database"
	"github.com/nerrad567/skysync/migrations"
)

// newTestStore opens a migrated journal in a temporary directory.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "journal.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewStore(db.DB)
}

func TestRecordAndHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	entries := []Entry{
		{Kind: "device.changed", PanelID: "123456", DeviceID: "10", DeviceKind: "lock", State: "unlocked",
			Payload: map[string]any{"s": false}, RecordedAt: base},
		{Kind: "device.changed", PanelID: "123456", DeviceID: "10", DeviceKind: "lock", State: "locked",
			Payload: map[string]any{"s": true}, RecordedAt: base.Add(time.Minute)},
		{Kind: "device.changed", PanelID: "123456", DeviceID: "12", DeviceKind: "sensor", State: "opened",
			RecordedAt: base.Add(2 * time.Minute)},
		{Kind: "panel.changed", PanelID: "123456", State: "armed_away", RecordedAt: base.Add(3 * time.Minute)},
		{Kind: "device.changed", PanelID: "999", DeviceID: "10", RecordedAt: base},
	}
	for _, e := range entries {
		if err := store.Record(ctx, e); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	got, err := store.History(ctx, Query{PanelID: "123456", DeviceID: "10"})
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].State != "locked" || got[1].State != "unlocked" {
		t.Errorf("order = %q, %q; want newest first", got[0].State, got[1].State)
	}
	if got[0].Payload["s"] != true {
		t.Errorf("payload = %v", got[0].Payload)
	}
	if !got[0].RecordedAt.Equal(base.Add(time.Minute)) {
		t.Errorf("RecordedAt = %v", got[0].RecordedAt)
	}
	if got[0].ID == 0 || got[0].DeviceKind != "lock" {
		t.Errorf("entry = %+v", got[0])
	}

	all, err := store.History(ctx, Query{PanelID: "123456"})
	if err != nil {
		t.Fatalf("History(panel) error = %v", err)
	}
	if len(all) != 4 || all[0].Kind != "panel.changed" {
		t.Errorf("panel history = %+v", all)
	}
}

func TestHistory_SinceAndLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		err := store.Record(ctx, Entry{Kind: "device.changed", PanelID: "1", DeviceID: "10", RecordedAt: base.Add(time.Duration(i) * time.Minute)})
		if err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	tests := []struct {
		name string
		q    Query
		want int
	}{
		{"default limit", Query{PanelID: "1"}, 5},
		{"limit", Query{PanelID: "1", Limit: 2}, 2},
		{"since is exclusive", Query{PanelID: "1", Since: base.Add(2 * time.Minute)}, 2},
		{"limit above max is clamped", Query{PanelID: "1", Limit: MaxLimit + 50}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.History(ctx, tt.q)
			if err != nil {
				t.Fatalf("History() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestRecord_Invalid(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, e := range []Entry{{PanelID: "1"}, {Kind: "device.changed"}} {
		if err := store.Record(ctx, e); !errors.Is(err, ErrInvalidEntry) {
			t.Errorf("Record(%+v) error = %v, want ErrInvalidEntry", e, err)
		}
	}
	if _, err := store.History(ctx, Query{}); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("History() without panel error = %v", err)
	}
}

func TestRecord_StampsTime(t *testing.T) {
	store := newTestStore(t)
	fixed := time.Date(2026, 10, 17, 8, 30, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	if err := store.Record(context.Background(), Entry{Kind: "panel.arming", PanelID: "1"}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	got, err := store.History(context.Background(), Query{PanelID: "1"})
	if err != nil || len(got) != 1 {
		t.Fatalf("History() = %v, %v", got, err)
	}
	if !got[0].RecordedAt.Equal(fixed) {
		t.Errorf("RecordedAt = %v, want %v", got[0].RecordedAt, fixed)
	}
	if got[0].Payload == nil {
		t.Error("Payload should decode to an empty map")
	}
}

func TestPrune(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	for _, age := range []time.Duration{48 * time.Hour, 25 * time.Hour, time.Hour} {
		if err := store.Record(ctx, Entry{Kind: "device.changed", PanelID: "1", RecordedAt: now.Add(-age)}); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	n, err := store.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Prune() removed %d, want 2", n)
	}

	if _, err := store.Prune(ctx, 0); err == nil {
		t.Error("Prune(0) expected error")
	}
}

type fakeLogger struct {
	mu    sync.Mutex
	infos int
}

func (l *fakeLogger) Info(string, ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos++
}
func (l *fakeLogger) Warn(string, ...any) {}

func TestRunRetention(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	old := time.Now().Add(-72 * time.Hour)
	if err := store.Record(ctx, Entry{Kind: "device.changed", PanelID: "1", RecordedAt: old}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	logger := &fakeLogger{}
	done := make(chan struct{})
	go func() {
		store.RunRetention(ctx, 10*time.Millisecond, 24*time.Hour, logger)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := store.History(context.Background(), Query{PanelID: "1"})
		if err == nil && len(got) == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	<-done

	got, _ := store.History(context.Background(), Query{PanelID: "1"})
	if len(got) != 0 {
		t.Errorf("entries after retention = %d, want 0", len(got))
	}
}
