package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
)

// maxTxnRetries bounds Update retries on badger.ErrConflict.
const maxTxnRetries = 5

// BadgerEngine implements KVEngine using Badger v3.
type BadgerEngine struct {
	db     *badger.DB
	cfg    KVConfig
	logger *slog.Logger

	lastGCTime atomic.Int64
	gcRewrites atomic.Uint64
	closed     atomic.Bool

	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

// NewBadgerEngine opens (or creates) a badger database.
func NewBadgerEngine(cfg KVConfig, logger *slog.Logger) (*BadgerEngine, error) {
	if cfg.Dir == "" && !cfg.InMemory {
		return nil, fmt.Errorf("badger: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger: logger}
	opts.SyncWrites = cfg.SyncWrites && !cfg.InMemory
	if cfg.CacheSize > 0 {
		opts.BlockCacheSize = cfg.CacheSize
	}
	if cfg.ValueLogFileSize > 0 && !cfg.InMemory {
		opts.ValueLogFileSize = cfg.ValueLogFileSize
	}
	if cfg.GCThreshold <= 0 || cfg.GCThreshold >= 1 {
		cfg.GCThreshold = 0.5
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	e := &BadgerEngine{
		db:     db,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		go e.gcLoop(cfg.GCInterval)
	} else {
		close(e.doneCh)
	}

	logger.Debug("badger engine opened",
		"dir", cfg.Dir,
		"in_memory", cfg.InMemory,
		"gc_interval", cfg.GCInterval)

	return e, nil
}

func (e *BadgerEngine) check(ctx context.Context) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

// Get retrieves a value by key.
func (e *BadgerEngine) Get(ctx context.Context, key []byte) ([]byte, error) {
	if err := e.check(ctx); err != nil {
		return nil, err
	}

	var value []byte
	err := e.db.View(func(txn *badger.Txn) error {
		var err error
		value, err = getCopy(txn, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set stores a key-value pair.
func (e *BadgerEngine) Set(ctx context.Context, key, value []byte) error {
	if err := e.check(ctx); err != nil {
		return err
	}
	return e.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// Delete removes a key.
func (e *BadgerEngine) Delete(ctx context.Context, key []byte) error {
	if err := e.check(ctx); err != nil {
		return err
	}
	return e.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// Update runs fn in a read-write transaction, retrying on conflicts.
func (e *BadgerEngine) Update(ctx context.Context, fn func(txn Txn) error) error {
	for attempt := 0; ; attempt++ {
		if err := e.check(ctx); err != nil {
			return err
		}
		err := e.db.Update(func(txn *badger.Txn) error {
			return fn(badgerTxn{txn: txn})
		})
		if errors.Is(err, badger.ErrConflict) && attempt < maxTxnRetries {
			e.logger.Debug("badger txn conflict, retrying", "attempt", attempt+1)
			continue
		}
		return err
	}
}

// Scan iterates over keys with a given prefix.
func (e *BadgerEngine) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error {
	if err := e.check(ctx); err != nil {
		return err
	}
	return e.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if !fn(item.KeyCopy(nil), value) {
				break
			}
		}
		return nil
	})
}

// Count returns the number of keys with the given prefix.
func (e *BadgerEngine) Count(ctx context.Context, prefix []byte) (int, error) {
	if err := e.check(ctx); err != nil {
		return 0, err
	}
	n := 0
	err := e.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// GC rewrites value log files until badger reports nothing to reclaim.
func (e *BadgerEngine) GC(ctx context.Context) (int, error) {
	if err := e.check(ctx); err != nil {
		return 0, err
	}
	if e.cfg.InMemory {
		return 0, nil
	}

	start := time.Now()
	rewrites := 0
	for {
		if err := ctx.Err(); err != nil {
			return rewrites, err
		}
		err := e.db.RunValueLogGC(e.cfg.GCThreshold)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) {
				break
			}
			return rewrites, fmt.Errorf("gc: %w", err)
		}
		rewrites++
	}

	e.lastGCTime.Store(time.Now().UnixMilli())
	e.gcRewrites.Add(uint64(rewrites))

	e.logger.Debug("badger gc completed",
		"rewrites", rewrites,
		"elapsed", time.Since(start))

	return rewrites, nil
}

// Stats returns storage statistics.
func (e *BadgerEngine) Stats(ctx context.Context) (*KVStats, error) {
	if err := e.check(ctx); err != nil {
		return nil, err
	}
	lsm, vlog := e.db.Size()
	return &KVStats{
		LSMSize:      lsm,
		ValueLogSize: vlog,
		LastGCTime:   e.lastGCTime.Load(),
		GCRewrites:   e.gcRewrites.Load(),
	}, nil
}

// Size reports the LSM and value log sizes. It feeds the storage collector.
func (e *BadgerEngine) Size() (lsm, vlog int64) {
	if e.closed.Load() {
		return 0, 0
	}
	return e.db.Size()
}

// Close stops background GC and closes the database.
func (e *BadgerEngine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		close(e.stopCh)
		<-e.doneCh

		if cerr := e.db.Close(); cerr != nil {
			err = fmt.Errorf("close db: %w", cerr)
			return
		}
		e.logger.Debug("badger engine closed", "dir", e.cfg.Dir)
	})
	return err
}

func (e *BadgerEngine) gcLoop(interval time.Duration) {
	defer close(e.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if _, err := e.GC(ctx); err != nil && !errors.Is(err, ErrClosed) {
				e.logger.Error("auto gc failed", "error", err)
			}
			cancel()

		case <-e.stopCh:
			return
		}
	}
}

// badgerTxn adapts *badger.Txn to Txn.
type badgerTxn struct {
	txn *badger.Txn
}

func (t badgerTxn) Get(key []byte) ([]byte, error) {
	return getCopy(t.txn, key)
}

func (t badgerTxn) Set(key, value []byte) error {
	return t.txn.Set(key, value)
}

func (t badgerTxn) Delete(key []byte) error {
	return t.txn.Delete(key)
}

func getCopy(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
// Badger's info output is chatty, so it is logged at debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}
