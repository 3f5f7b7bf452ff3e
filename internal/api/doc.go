// Package api provides the local HTTP API and WebSocket change stream for
// skysync.
//
// It exposes the mirrored panel tree for inspection, the change journal for
// history queries, and fire-and-forget command endpoints. Commands return
// 202 Accepted: the request was submitted upstream, and the resulting state
// arrives later through the push channel and the change stream.
//
// The server follows the same lifecycle pattern as the infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
