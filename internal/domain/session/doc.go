// Package session owns the single protocol session: its lifecycle state
// machine, the live handle, the pairing token, and the reconnect policy.
//
// The manager is the sole mutator of session state. It consumes typed
// events from the capability over a channel on one goroutine; every other
// component only sees read snapshots and the Send entry point.
package session
