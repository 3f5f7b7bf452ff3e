// Package sky composes the session, the panel tree, the push channel and the
// message router into one account mirror.
//
// Connect logs in, fetches a snapshot of every selected panel concurrently,
// builds the panel tree and subscribes to the account's push channel. From
// then on every push payload is routed into the tree in delivery order.
// Commands issued on panels and devices go straight to the request API and
// their effect arrives later as ordinary push diffs.
//
//	o, err := sky.New(sky.Deps{Config: cfg, API: client, Transport: factory, Logger: log})
//	if err := o.Connect(ctx); err != nil { ... }
//	defer o.Close()
//
// Panels are built once, on the first successful snapshot fetch. A later
// Connect (after Disconnect) refreshes them in place, so references held by
// callers stay valid.
package sky
