// Package dashboard serves the read-only status page as an embedded asset.
//
// The page lists the mirrored panels and their devices from the local API
// and refreshes itself from the WebSocket change stream. It is plain HTML
// and JavaScript embedded with go:embed, so the binary carries no runtime
// file dependency.
//
// Unknown paths fall back to index.html so the page can keep its own
// routes. Responses are marked no-cache; the assets are tiny.
package dashboard
