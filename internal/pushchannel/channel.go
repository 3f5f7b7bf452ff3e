package pushchannel

import (
	"context"
	"fmt"
	"sync"
)

// State is the subscription lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Sink receives every message payload, verbatim. A returned error is
// logged; it does not affect the subscription.
type Sink func(payload any) error

// Logger is the logging interface used by Channel.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// attempt is one pending Connect. done is closed once err is final.
type attempt struct {
	done chan struct{}
	err  error
}

func (a *attempt) resolve(err error) {
	a.err = err
	close(a.done)
}

// Channel is one push subscription with an explicit lifecycle.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Hooks and the sink run without the channel lock held.
type Channel struct {
	factory TransportFactory
	logger  Logger

	mu        sync.Mutex
	transport Transport
	state     State
	name      string
	sink      Sink
	pending   *attempt
	unsub     chan struct{}
	closed    bool

	// lastTimetoken is the newest message handed to the sink on the
	// current subscription.
	lastTimetoken int64

	onConnected    func()
	onDisconnected func()
}

// New creates a Disconnected channel. The transport is built by factory on
// the first Connect.
func New(factory TransportFactory) *Channel {
	return &Channel{
		factory: factory,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger.
func (c *Channel) SetLogger(logger Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
}

// SetOnConnected registers the hook fired on each Connecting → Connected
// transition.
func (c *Channel) SetOnConnected(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnected = fn
}

// SetOnDisconnected registers the hook fired once per Connected →
// Disconnected transition.
func (c *Channel) SetOnDisconnected(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnected = fn
}

// State returns the current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Name returns the subscribed channel name, or "" when disconnected.
func (c *Channel) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Disconnected {
		return ""
	}
	return c.name
}

// Connect subscribes to channel and delivers every message to sink. It
// blocks until the transport reports the subscription connected, rejects
// it, or ctx ends.
//
// Connect is idempotent: calling it again for the same channel while
// Connecting or Connected replaces the sink and never duplicates delivery.
//
// Returns:
//   - nil once Connected
//   - ErrAccessDenied if the transport rejected the subscription
//   - ErrChannelBusy if another channel is subscribed
//   - ErrClosed after Close
//   - ctx.Err() if ctx ended first; the attempt is abandoned
func (c *Channel) Connect(ctx context.Context, channel string, sink Sink) error {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return ErrClosed
		}

		// Let an in-flight unsubscribe finish before resubscribing.
		if unsub := c.unsub; unsub != nil {
			c.mu.Unlock()
			select {
			case <-unsub:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		switch c.state {
		case Connected:
			if channel != c.name {
				c.mu.Unlock()
				return fmt.Errorf("%w: %s", ErrChannelBusy, c.name)
			}
			c.sink = sink
			c.mu.Unlock()
			return nil

		case Connecting:
			if channel != c.name {
				c.mu.Unlock()
				return fmt.Errorf("%w: %s", ErrChannelBusy, c.name)
			}
			c.sink = sink
			a := c.pending
			c.mu.Unlock()
			return c.wait(ctx, a)
		}

		return c.subscribeLocked(ctx, channel, sink)
	}
}

// subscribeLocked starts a new attempt. Called with c.mu held; returns with
// it released.
func (c *Channel) subscribeLocked(ctx context.Context, channel string, sink Sink) error {
	if c.transport == nil {
		t, err := c.factory(handler{c})
		if err != nil {
			c.mu.Unlock()
			return fmt.Errorf("creating transport: %w", err)
		}
		c.transport = t
	}

	a := &attempt{done: make(chan struct{})}
	c.state = Connecting
	c.name = channel
	c.sink = sink
	c.pending = a
	t := c.transport
	logger := c.logger
	c.mu.Unlock()

	logger.Info("subscribing", "channel", channel)
	if err := t.Subscribe(channel); err != nil {
		c.mu.Lock()
		if c.pending == a {
			c.resetLocked()
			a.resolve(err)
		}
		c.mu.Unlock()
		return fmt.Errorf("subscribing to %s: %w", channel, err)
	}

	return c.wait(ctx, a)
}

func (c *Channel) wait(ctx context.Context, a *attempt) error {
	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
	}

	c.mu.Lock()
	if c.pending != a {
		// Resolved while we were giving up.
		c.mu.Unlock()
		<-a.done
		return a.err
	}
	t, name := c.transport, c.name
	c.resetLocked()
	a.resolve(ctx.Err())
	logger := c.logger
	c.mu.Unlock()

	logger.Warn("abandoning subscription attempt", "channel", name, "error", ctx.Err())
	if t != nil {
		if err := t.Unsubscribe(name); err != nil {
			logger.Warn("unsubscribe after abandoned attempt failed", "channel", name, "error", err)
		}
	}
	return ctx.Err()
}

// resetLocked returns to Disconnected without firing hooks.
func (c *Channel) resetLocked() {
	c.state = Disconnected
	c.sink = nil
	c.pending = nil
	c.lastTimetoken = 0
}

// Disconnect unsubscribes and waits for the transport's acknowledgment.
//
// It is safe to call when never connected and when already disconnected;
// onDisconnected fires once per connected session however many times
// Disconnect is called. If ctx ends before the acknowledgment arrives the
// local teardown completes anyway and ctx.Err() is returned.
func (c *Channel) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == Disconnected {
		c.mu.Unlock()
		return nil
	}

	done := c.unsub
	if done == nil {
		done = make(chan struct{})
		c.unsub = done
		t, name, logger := c.transport, c.name, c.logger
		c.mu.Unlock()

		logger.Info("unsubscribing", "channel", name)
		if err := t.Unsubscribe(name); err != nil {
			logger.Warn("unsubscribe failed; tearing down locally", "channel", name, "error", err)
			c.teardown()
			return nil
		}
	} else {
		c.mu.Unlock()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		c.teardown()
		return ctx.Err()
	}
}

// teardown enters Disconnected, releases the sink and any waiters, and
// fires onDisconnected if the channel had been Connected. Repeated calls
// are no-ops.
func (c *Channel) teardown() {
	c.mu.Lock()
	if c.state == Disconnected && c.unsub == nil {
		c.mu.Unlock()
		return
	}

	wasConnected := c.state == Connected
	name := c.name
	if c.pending != nil {
		c.pending.resolve(ErrDisconnected)
	}
	c.resetLocked()
	unsub := c.unsub
	c.unsub = nil
	hook := c.onDisconnected
	logger := c.logger
	c.mu.Unlock()

	logger.Info("push channel disconnected", "channel", name)
	if wasConnected && hook != nil {
		hook()
	}
	// Disconnect callers return only once the hook has run.
	if unsub != nil {
		close(unsub)
	}
}

// Close tears the subscription down and releases the transport. Connect
// fails with ErrClosed afterwards.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	t, name := c.transport, c.name
	subscribed := c.state != Disconnected && c.unsub == nil
	c.transport = nil
	c.mu.Unlock()

	if t != nil && subscribed {
		_ = t.Unsubscribe(name)
	}
	c.teardown()

	if t == nil {
		return nil
	}
	return t.Close()
}

// handler adapts transport callbacks onto the channel.
type handler struct {
	c *Channel
}

func (h handler) HandleStatus(s Status) {
	c := h.c

	switch s.Kind {
	case SignalConnected, SignalReconnected:
		c.mu.Lock()
		if c.state != Connecting {
			logger := c.logger
			c.mu.Unlock()
			logger.Debug("push channel status", "status", s.Kind, "detail", s.Detail)
			return
		}
		c.state = Connected
		a := c.pending
		c.pending = nil
		hook, logger, name := c.onConnected, c.logger, c.name
		c.mu.Unlock()

		logger.Info("push channel connected", "channel", name)
		if hook != nil {
			hook()
		}
		a.resolve(nil)

	case SignalUnexpectedDisconnect:
		c.mu.Lock()
		logger := c.logger
		c.mu.Unlock()
		logger.Warn("push channel interrupted; transport will retry", "detail", s.Detail, "error", s.Err)

	case SignalUnsubscribeAck:
		c.teardown()

	case SignalReconnectExhausted:
		c.mu.Lock()
		logger := c.logger
		c.mu.Unlock()
		logger.Error("push channel gave up reconnecting", "detail", s.Detail, "error", s.Err)
		c.teardown()

	case SignalAccessDenied:
		c.mu.Lock()
		logger := c.logger
		if c.state == Connecting {
			a := c.pending
			c.resetLocked()
			err := ErrAccessDenied
			if s.Err != nil {
				err = fmt.Errorf("%w: %v", ErrAccessDenied, s.Err)
			}
			a.resolve(err)
		}
		c.mu.Unlock()
		logger.Error("push channel access denied", "detail", s.Detail, "error", s.Err)

	default:
		c.mu.Lock()
		logger := c.logger
		c.mu.Unlock()
		logger.Debug("push channel status", "status", s.Kind, "detail", s.Detail)
	}
}

func (h handler) HandleMessage(channel string, timetoken int64, payload any) {
	c := h.c

	c.mu.Lock()
	sink, name, logger := c.sink, c.name, c.logger
	if sink == nil || (channel != "" && channel != name) {
		c.mu.Unlock()
		logger.Debug("dropping message", "channel", channel)
		return
	}
	last := c.lastTimetoken
	if timetoken != 0 && timetoken <= last {
		c.mu.Unlock()
		logger.Warn("dropping out-of-order message", "channel", channel, "timetoken", timetoken, "last", last)
		return
	}
	if timetoken != 0 {
		c.lastTimetoken = timetoken
	}
	c.mu.Unlock()

	if err := sink(payload); err != nil {
		logger.Warn("message sink failed", "channel", channel, "error", err)
	}
}

// HandlePresence is accepted and ignored.
func (handler) HandlePresence(any) {}

// HandleSignal is accepted and ignored.
func (handler) HandleSignal(string, any) {}
