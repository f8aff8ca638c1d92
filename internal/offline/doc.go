// Package offline keeps location writes working without connectivity.
//
// A write that cannot reach the remote store is staged as a pending
// record in a local badger-backed Queue. The Monitor probes the remote
// store; when it comes back the Agent runs a sync pass, which sends
// every pending record in insertion order and removes the ones that
// were accepted. A record that fails stays queued for the next pass.
//
// Each record is sent with its pending ID as the idempotency key, so a
// write that reached the store before the client lost the response is
// not duplicated when the record is sent again.
//
// The queue is owned by one process. A running Agent can serve it to
// other local processes through the control API (NewControlHandler).
package offline
