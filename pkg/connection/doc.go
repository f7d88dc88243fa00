// Package connection keeps a client session to the on-device component.
//
// The component only listens while the channel under test is running, so a
// first dial often races the channel launch and a running session drops
// whenever the channel restarts. A Session dials with exponential backoff
// and, when AutoReconnect is set, dials again after the connection is lost.
//
// # Backoff
//
// Delays start at 250ms and double up to 5s:
//
//	delay = base + random(0, base * 0.25)
//
// The backoff resets after every successful dial.
//
// # Pending Requests
//
// Requests in flight when a connection drops fail with
// interaction.ErrClientClosed. They are not replayed on the new connection;
// the caller decides whether to retry.
package connection
