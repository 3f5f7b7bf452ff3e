package pushchannel

// SignalKind classifies transport status events.
type SignalKind int

const (
	SignalOther SignalKind = iota
	SignalConnected
	SignalReconnected
	SignalUnexpectedDisconnect
	SignalUnsubscribeAck
	SignalAccessDenied

	// SignalReconnectExhausted means the transport stopped retrying and has
	// dropped its subscriptions.
	SignalReconnectExhausted
)

func (k SignalKind) String() string {
	switch k {
	case SignalConnected:
		return "connected"
	case SignalReconnected:
		return "reconnected"
	case SignalUnexpectedDisconnect:
		return "unexpected_disconnect"
	case SignalUnsubscribeAck:
		return "unsubscribe_ack"
	case SignalAccessDenied:
		return "access_denied"
	case SignalReconnectExhausted:
		return "reconnect_exhausted"
	default:
		return "other"
	}
}

// Status is one transport status event.
type Status struct {
	Kind SignalKind

	// Detail is the transport's own description, for logs.
	Detail string

	Err error
}

// Handler receives transport events. The transport must call it from a
// single goroutine, with messages in publish order.
type Handler interface {
	HandleStatus(Status)

	// HandleMessage delivers one published message. timetoken is the
	// publish timetoken, or zero when the transport has none.
	HandleMessage(channel string, timetoken int64, payload any)

	HandlePresence(event any)
	HandleSignal(channel string, payload any)
}

// Transport is the underlying subscription client.
type Transport interface {
	// Subscribe starts subscribing. The outcome arrives as a Status.
	Subscribe(channel string) error

	// Unsubscribe stops the subscription. Completion arrives as
	// SignalUnsubscribeAck.
	Unsubscribe(channel string) error

	// Close releases the transport and its goroutines.
	Close() error
}

// TransportFactory builds a Transport delivering to h.
type TransportFactory func(h Handler) (Transport, error)
