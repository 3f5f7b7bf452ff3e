package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// History query bounds.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// ErrInvalidEntry is returned when an entry lacks its kind or panel id.
var ErrInvalidEntry = errors.New("journal: entry requires kind and panel id")

// Entry is one recorded change.
type Entry struct {
	ID         int64          `json:"id"`
	Kind       string         `json:"kind"`
	PanelID    string         `json:"panel_id"`
	DeviceID   string         `json:"device_id,omitempty"`
	DeviceKind string         `json:"device_kind,omitempty"`
	State      string         `json:"state,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// Query selects entries. PanelID is required; DeviceID narrows to one
// device. Results are newest first.
type Query struct {
	PanelID  string
	DeviceID string
	Since    time.Time // exclusive; zero means no bound
	Limit    int       // DefaultLimit when <= 0, clamped to MaxLimit
}

// Store is the SQLite-backed journal.
//
// Thread Safety:
//   - Safe for concurrent use; serialisation is left to database/sql and
//     the single-connection pool.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore returns a Store over db. The change_journal table must exist
// (see the migrations package).
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Record inserts e. A zero RecordedAt is stamped with the current time.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.Kind == "" || e.PanelID == "" {
		return ErrInvalidEntry
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = s.now()
	}
	if e.Payload == nil {
		e.Payload = map[string]any{}
	}

	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshalling payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO change_journal (kind, panel_id, device_id, device_kind, state, payload, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Kind, e.PanelID, e.DeviceID, e.DeviceKind, e.State, string(payload), e.RecordedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting journal entry: %w", err)
	}
	return nil
}

// History returns the entries matching q, newest first.
func (s *Store) History(ctx context.Context, q Query) ([]Entry, error) {
	if q.PanelID == "" {
		return nil, fmt.Errorf("%w: panel id is required", ErrInvalidEntry)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	var where strings.Builder
	args := []any{q.PanelID}
	where.WriteString("panel_id = ?")
	if q.DeviceID != "" {
		where.WriteString(" AND device_id = ?")
		args = append(args, q.DeviceID)
	}
	if !q.Since.IsZero() {
		where.WriteString(" AND recorded_at > ?")
		args = append(args, q.Since.UnixMilli())
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, panel_id, device_id, device_kind, state, payload, recorded_at
		 FROM change_journal
		 WHERE `+where.String()+`
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var payload string
		var recordedAt int64
		if err := rows.Scan(&e.ID, &e.Kind, &e.PanelID, &e.DeviceID, &e.DeviceKind, &e.State, &payload, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, fmt.Errorf("unmarshalling payload: %w", err)
		}
		e.RecordedAt = time.UnixMilli(recordedAt).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal: %w", err)
	}
	return entries, nil
}

// Prune deletes entries recorded more than olderThan ago and returns how
// many were removed.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := s.now().Add(-olderThan).UnixMilli()
	result, err := s.db.ExecContext(ctx, "DELETE FROM change_journal WHERE recorded_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting journal entries: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// Logger is the logging interface used by RunRetention.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// RunRetention prunes entries older than keep every interval until ctx
// ends.
func (s *Store) RunRetention(ctx context.Context, interval, keep time.Duration, logger Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Prune(ctx, keep)
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn("journal prune failed", "error", err)
				}
				continue
			}
			if n > 0 {
				logger.Info("journal pruned", "removed", n, "older_than", keep)
			}
		}
	}
}
