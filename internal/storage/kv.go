package storage

import (
	"context"
	"errors"
	"time"
)

// Common errors
var (
	ErrKeyNotFound = errors.New("key not found")
	ErrClosed      = errors.New("kv engine closed")
)

// Txn is a read-write view used inside KVEngine.Update.
// Values returned by Get are copies and stay valid after the transaction.
type Txn interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
}

// KVEngine defines the embedded key-value storage contract.
//
// Implementations must be safe for concurrent use and durable across
// process restarts. Scan visits keys in lexical order.
type KVEngine interface {
	// Get retrieves a value by key.
	// Returns ErrKeyNotFound if key doesn't exist.
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Set stores a key-value pair.
	Set(ctx context.Context, key, value []byte) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key []byte) error

	// Update runs fn in a single read-write transaction. A conflicting
	// concurrent transaction causes fn to be retried.
	Update(ctx context.Context, fn func(txn Txn) error) error

	// Scan iterates over keys with a given prefix in lexical order.
	// Callback returns false to stop iteration.
	Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error

	// Count returns the number of keys with the given prefix.
	Count(ctx context.Context, prefix []byte) (int, error)

	// GC triggers value log garbage collection.
	// Returns the number of value log files rewritten.
	GC(ctx context.Context) (int, error)

	// Stats returns storage statistics.
	Stats(ctx context.Context) (*KVStats, error)

	// Close gracefully shuts down the KV engine.
	Close() error
}

// KVStats contains storage engine statistics.
type KVStats struct {
	// LSMSize is the LSM tree size in bytes.
	LSMSize int64 `json:"lsm_size"`

	// ValueLogSize is the value log size in bytes.
	ValueLogSize int64 `json:"value_log_size"`

	// LastGCTime is the last GC run timestamp (Unix milliseconds).
	LastGCTime int64 `json:"last_gc_time,omitempty"`

	// GCRewrites counts value log files rewritten by GC.
	GCRewrites uint64 `json:"gc_rewrites"`
}

// TotalSize returns the LSM plus value log size.
func (s *KVStats) TotalSize() int64 {
	return s.LSMSize + s.ValueLogSize
}

// KVConfig configures an embedded KV engine.
type KVConfig struct {
	// Dir is the storage directory. Ignored when InMemory is set.
	Dir string

	// InMemory keeps all data in memory (tests, dry runs).
	InMemory bool

	// GCInterval is the interval between automatic GC runs.
	// Zero disables automatic GC.
	GCInterval time.Duration

	// GCThreshold is the discard ratio that makes a value log file
	// eligible for rewrite (0.0-1.0).
	GCThreshold float64

	// CacheSize is the block cache size in bytes.
	CacheSize int64

	// ValueLogFileSize is the max value log file size in bytes.
	ValueLogFileSize int64

	// SyncWrites fsyncs after each write.
	SyncWrites bool
}

// DefaultKVConfig returns the default KV configuration.
// Writes are synced: a queued location must survive a crash of the client.
func DefaultKVConfig(dir string) KVConfig {
	return KVConfig{
		Dir:              dir,
		GCInterval:       10 * time.Minute,
		GCThreshold:      0.5,
		CacheSize:        16 << 20,
		ValueLogFileSize: 64 << 20,
		SyncWrites:       true,
	}
}
