// Package storage persists fidloc data in an embedded badger database.
//
// KVEngine is the byte-level contract shared by both binaries: the field
// client keeps its pending-record queue in it, and the server keeps the
// organization document collections and API keys in it through DocStore.
//
// Key layout on the server:
//
//	org/{org}/locations/{id}   location document (JSON)
//	org/{org}/idem/{key}       idempotency key -> location id
//	apikey/{key_id}            API key (JSON, includes the secret hash)
package storage
