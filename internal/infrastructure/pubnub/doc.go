// Package pubnub adapts the PubNub Go SDK to pushchannel.Transport.
//
// One Transport owns one SDK instance and one listener. A single goroutine
// drains the listener's status, message, presence and signal channels and
// hands each event to the pushchannel handler, so messages reach the router
// in the order the SDK delivered them.
//
// Reconnection after a network drop is left to the SDK's reconnection
// policy; the adapter only reports what happened.
package pubnub
