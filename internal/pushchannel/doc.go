// Package pushchannel manages the lifecycle of one persistent push
// subscription.
//
// States: Disconnected → Connecting → Connected, back to Disconnected on an
// unsubscribe acknowledgment (or when Disconnect gives up waiting for one),
// and Disconnected → Connecting again when the caller resubscribes.
//
// An unexpected disconnect reported by the transport is transient: the
// transport retries on its own and the channel keeps its sink. Only an
// explicit unsubscribe releases the subscription.
//
// The transport is created lazily on the first Connect and reused for every
// later resubscribe until Close.
package pushchannel
