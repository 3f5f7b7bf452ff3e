package events

import (
	"context"

	"github.com/nerrad567/skysync/internal/journal"
)

// Recorder is the journal subset used by JournalSink.
// *journal.Store satisfies it.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) error
}

// JournalSink appends every event to the change journal.
type JournalSink struct {
	rec Recorder
}

// NewJournalSink creates a sink writing to rec.
func NewJournalSink(rec Recorder) *JournalSink {
	return &JournalSink{rec: rec}
}

// Name implements Sink.
func (s *JournalSink) Name() string { return "journal" }

// Handle implements Sink.
func (s *JournalSink) Handle(ctx context.Context, ev Event) error {
	return s.rec.Record(ctx, journal.Entry{
		Kind:       string(ev.Kind),
		PanelID:    ev.PanelID,
		DeviceID:   ev.DeviceID,
		DeviceKind: ev.DeviceKind,
		State:      ev.State,
		Payload:    ev.Attributes,
		RecordedAt: ev.Time,
	})
}
