// Package cmap provides a concurrent-safe string-keyed map split into
// shards, each guarded by its own lock.
//
// Keys are assigned to shards with a seeded murmur3 hash, so hot keys
// from one tenant do not serialize lookups for the others.
package cmap
