// Package session owns the SMGP client session engine.
//
// Ownership boundary:
// - connect, login and reconnect lifecycle (state.go, session.go)
// - heartbeat watchdog and dead-link recovery (watchdog.go)
// - inbound frame dispatch and mandatory replies (dispatch.go)
// - bounded-retry outbound send (send.go)
// - sequence ids, handler registry, pending submit tracking
//
// Wire encoding lives in internal/protocol; framing on the TCP stream lives in
// internal/protocol/frame.
package session
