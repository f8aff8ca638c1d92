// Package token generates random identifiers and compares secret digests.
//
// Generated values are Base64 RawURL encoded so they can travel in URLs
// and HTTP headers unchanged. Digests are hex-encoded SHA-256 and are
// compared in constant time.
package token
