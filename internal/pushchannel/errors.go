package pushchannel

import "errors"

var (
	// ErrAccessDenied is returned by Connect when the transport rejects the
	// subscription.
	ErrAccessDenied = errors.New("pushchannel: access denied")

	// ErrClosed is returned by Connect after Close.
	ErrClosed = errors.New("pushchannel: closed")

	// ErrDisconnected is returned by a pending Connect when Disconnect or
	// Close tears the subscription down first.
	ErrDisconnected = errors.New("pushchannel: disconnected before connect completed")

	// ErrChannelBusy is returned by Connect for a different channel while
	// one is already subscribed.
	ErrChannelBusy = errors.New("pushchannel: already subscribed to another channel")
)
