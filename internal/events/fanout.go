package events

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/skysync/internal/device"
)

const (
	// DefaultQueueSize bounds events waiting for Run.
	DefaultQueueSize = 256

	// sinkTimeout bounds a single sink delivery.
	sinkTimeout = 5 * time.Second
)

// Sink receives events in the order they happened.
type Sink interface {
	Name() string
	Handle(ctx context.Context, ev Event) error
}

// Logger is the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Fanout queues events from panel hooks and delivers them to sinks.
//
// Thread Safety:
//   - Emit and Attach are safe for concurrent use.
//   - Run must be called once; sinks are called from its goroutine only.
type Fanout struct {
	queue  chan Event
	logger Logger
	now    func() time.Time

	mu      sync.RWMutex
	sinks   []Sink
	dropped uint64
}

// NewFanout creates a Fanout with DefaultQueueSize. Nil sinks are skipped.
func NewFanout(logger Logger, sinks ...Sink) *Fanout {
	if logger == nil {
		logger = noopLogger{}
	}
	f := &Fanout{
		queue:  make(chan Event, DefaultQueueSize),
		logger: logger,
		now:    time.Now,
	}
	for _, s := range sinks {
		f.AddSink(s)
	}
	return f
}

// AddSink registers another sink. Nil is ignored.
func (f *Fanout) AddSink(s Sink) {
	if s == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, s)
}

// Attach installs the panel-level hooks on p. It replaces any hooks set
// before.
func (f *Fanout) Attach(p *device.Panel) {
	p.SetOnDeviceChange(func(d device.Device) {
		f.Emit(DeviceChanged(d, f.now()))
	})
	p.SetOnChange(func(p *device.Panel) {
		f.Emit(PanelChanged(p, f.now()))
	})
	p.SetOnArming(func(ev device.ArmingEvent) {
		f.Emit(PanelArming(ev, f.now()))
	})
}

// Emit queues ev. When the queue is full the event is dropped and counted.
func (f *Fanout) Emit(ev Event) {
	select {
	case f.queue <- ev:
	default:
		f.mu.Lock()
		f.dropped++
		f.mu.Unlock()
		f.logger.Warn("event queue full, dropping event",
			"kind", ev.Kind, "panel_id", ev.PanelID, "device_id", ev.DeviceID)
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (f *Fanout) Dropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

// Run delivers queued events until ctx ends. Events still queued at that
// point are discarded.
func (f *Fanout) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-f.queue:
			f.deliver(ctx, ev)
		}
	}
}

func (f *Fanout) deliver(ctx context.Context, ev Event) {
	f.mu.RLock()
	sinks := f.sinks
	f.mu.RUnlock()

	for _, s := range sinks {
		sctx, cancel := context.WithTimeout(ctx, sinkTimeout)
		err := s.Handle(sctx, ev)
		cancel()
		if err != nil {
			f.logger.Warn("event sink failed",
				"sink", s.Name(),
				"kind", ev.Kind,
				"panel_id", ev.PanelID,
				"device_id", ev.DeviceID,
				"error", err,
			)
		}
	}
}
