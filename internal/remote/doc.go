// Package remote is the HTTP client for the FidLoc document store.
//
// Transport failures, timeouts and 5xx/429 answers are reported as
// domain.ErrRemoteUnavailable so callers can queue the write and retry.
// Other error answers are mapped back to the domain error the server
// reported.
package remote
