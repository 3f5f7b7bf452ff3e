package pubnub

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	pn "github.com/pubnub/go/v7"

	"github.com/nerrad567/skysync/internal/pushchannel"
)

const (
	// DefaultMaxReconnects bounds the SDK's automatic reconnection attempts.
	DefaultMaxReconnects = 50

	// DefaultReorderWindow is how long the pump holds a burst of messages
	// before handing them on in timetoken order.
	DefaultReorderWindow = 50 * time.Millisecond
)

// Config holds the transport settings.
type Config struct {
	// SubscribeKey is the account's subscribe key (required).
	SubscribeKey string

	// UserID identifies this subscriber. A random UUID is used when empty.
	UserID string

	// Origin overrides the SDK's default origin host.
	Origin string

	// ConnectTimeout in seconds; the SDK default applies when zero.
	ConnectTimeout int

	// MaxReconnects caps reconnection attempts; DefaultMaxReconnects when zero.
	MaxReconnects int

	// ReorderWindow overrides DefaultReorderWindow.
	ReorderWindow time.Duration
}

// ErrNoSubscribeKey is returned when Config.SubscribeKey is empty.
var ErrNoSubscribeKey = errors.New("pubnub: subscribe key is required")

// Logger is the logging interface used by Transport.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Transport is a pushchannel.Transport backed by the PubNub SDK.
//
// Thread Safety:
//   - Subscribe, Unsubscribe and Close are safe for concurrent use.
//   - Handler callbacks run on the transport's single pump goroutine.
//   - The SDK announces each message of a subscribe batch from its own
//     goroutine, so the pump buffers messages for the reorder window and
//     delivers them sorted by timetoken. Status events flush the buffer
//     first.
type Transport struct {
	client   *pn.PubNub
	listener *pn.Listener
	handler  pushchannel.Handler
	logger   Logger
	window   time.Duration

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Factory returns a pushchannel.TransportFactory building Transports from
// cfg. The config is validated when the factory is called, not here, so a
// bad key surfaces from the first Connect.
func Factory(cfg Config, logger Logger) pushchannel.TransportFactory {
	return func(h pushchannel.Handler) (pushchannel.Transport, error) {
		return New(cfg, h, logger)
	}
}

// New creates the SDK client, registers the listener and starts the pump.
func New(cfg Config, h pushchannel.Handler, logger Logger) (*Transport, error) {
	if cfg.SubscribeKey == "" {
		return nil, ErrNoSubscribeKey
	}
	if logger == nil {
		logger = noopLogger{}
	}

	userID := cfg.UserID
	if userID == "" {
		userID = uuid.NewString()
	}

	pnConfig := pn.NewConfigWithUserId(pn.UserId(userID))
	pnConfig.SubscribeKey = cfg.SubscribeKey
	pnConfig.Secure = true
	if cfg.Origin != "" {
		pnConfig.Origin = cfg.Origin
	}
	if cfg.ConnectTimeout > 0 {
		pnConfig.ConnectTimeout = cfg.ConnectTimeout
	}
	pnConfig.PNReconnectionPolicy = pn.PNExponentialPolicy
	pnConfig.MaximumReconnectionRetries = cfg.MaxReconnects
	if pnConfig.MaximumReconnectionRetries <= 0 {
		pnConfig.MaximumReconnectionRetries = DefaultMaxReconnects
	}

	t := &Transport{
		client:   pn.NewPubNub(pnConfig),
		listener: pn.NewListener(),
		handler:  h,
		logger:   logger,
		window:   cfg.ReorderWindow,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if t.window <= 0 {
		t.window = DefaultReorderWindow
	}
	t.client.AddListener(t.listener)
	go t.pump()

	logger.Debug("pubnub transport created", "user_id", userID)
	return t, nil
}

// Subscribe starts the subscribe loop for channel. The SDK reports the
// outcome on the status channel.
func (t *Transport) Subscribe(channel string) error {
	if t.closed() {
		return pushchannel.ErrClosed
	}
	t.client.Subscribe().Channels([]string{channel}).Execute()
	return nil
}

// Unsubscribe leaves channel. The SDK acknowledges with a status event.
func (t *Transport) Unsubscribe(channel string) error {
	if t.closed() {
		return pushchannel.ErrClosed
	}
	t.client.Unsubscribe().Channels([]string{channel}).Execute()
	return nil
}

// Close removes the listener, stops the pump and destroys the SDK client.
// Repeated calls are no-ops.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.client.RemoveListener(t.listener)
		close(t.stop)
		<-t.done
		t.client.Destroy()
	})
	return nil
}

func (t *Transport) closed() bool {
	select {
	case <-t.stop:
		return true
	default:
		return false
	}
}

func (t *Transport) pump() {
	defer close(t.done)

	var pending []*pn.PNMessage
	timer := time.NewTimer(t.window)
	timer.Stop()
	defer timer.Stop()

	flush := func() {
		if len(pending) == 0 {
			return
		}
		timer.Stop()
		slices.SortStableFunc(pending, func(a, b *pn.PNMessage) int {
			return cmp.Compare(a.Timetoken, b.Timetoken)
		})
		for _, msg := range pending {
			t.handler.HandleMessage(msg.Channel, msg.Timetoken, msg.Message)
		}
		clear(pending)
		pending = pending[:0]
	}

	for {
		var due <-chan time.Time
		if len(pending) > 0 {
			due = timer.C
		}

		select {
		case <-t.stop:
			return

		case <-due:
			flush()

		case status := <-t.listener.Status:
			if status == nil {
				continue
			}
			flush()
			t.handler.HandleStatus(translateStatus(status))

		case msg := <-t.listener.Message:
			if msg == nil {
				continue
			}
			if len(pending) == 0 {
				timer.Reset(t.window)
			}
			pending = append(pending, msg)

		case presence := <-t.listener.Presence:
			t.handler.HandlePresence(presence)

		case signal := <-t.listener.Signal:
			if signal == nil {
				continue
			}
			t.handler.HandleSignal(signal.Channel, signal.Message)
		}
	}
}

// translateStatus maps an SDK status onto the channel's signal set.
func translateStatus(s *pn.PNStatus) pushchannel.Status {
	out := pushchannel.Status{
		Kind:   pushchannel.SignalOther,
		Detail: fmt.Sprintf("%v/%v", s.Category, s.Operation),
	}
	if s.Error && s.ErrorData != nil {
		out.Err = s.ErrorData
	}

	switch s.Category {
	case pn.PNConnectedCategory:
		out.Kind = pushchannel.SignalConnected
	case pn.PNReconnectedCategory:
		out.Kind = pushchannel.SignalReconnected
	case pn.PNDisconnectedCategory, pn.PNTimeoutCategory:
		out.Kind = pushchannel.SignalUnexpectedDisconnect
	case pn.PNAcknowledgmentCategory:
		if s.Operation == pn.PNUnsubscribeOperation {
			out.Kind = pushchannel.SignalUnsubscribeAck
		}
	case pn.PNAccessDeniedCategory:
		out.Kind = pushchannel.SignalAccessDenied
	case pn.PNReconnectionAttemptsExhausted:
		out.Kind = pushchannel.SignalReconnectExhausted
	}
	return out
}
