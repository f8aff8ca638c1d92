package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fidloc/fidloc-go/internal/core/domain"
	"github.com/fidloc/fidloc-go/internal/storage"
	"github.com/fidloc/fidloc-go/internal/telemetry/metric"
	"github.com/fidloc/fidloc-go/pkg/crypto/adaptive"
)

const pendingPrefix = "pending/"

// Record encodings. Plain records are JSON objects and start with '{'.
const sealedMarker byte = 0x01

func pendingKey(id string) []byte {
	return []byte(pendingPrefix + id)
}

// Subscriber receives the full pending list after the queue changes.
type Subscriber func(pending []*domain.PendingRecord)

// Queue is the local store of pending records.
//
// Records are keyed by pending ID, whose ULID body sorts by creation
// time, so iteration order is insertion order.
type Queue struct {
	kv      storage.KVEngine
	cipher  adaptive.Cipher
	logger  *slog.Logger
	metrics *metric.AgentMetrics

	// mu serializes mutations with their notifications so subscribers
	// observe changes in the order they were made.
	mu sync.Mutex

	subMu   sync.RWMutex
	subs    map[uint64]Subscriber
	nextSub uint64
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithCipher seals record payloads at rest.
func WithCipher(c adaptive.Cipher) QueueOption {
	return func(q *Queue) {
		q.cipher = c
	}
}

// WithQueueLogger sets the logger.
func WithQueueLogger(l *slog.Logger) QueueOption {
	return func(q *Queue) {
		q.logger = l
	}
}

// WithQueueMetrics records queue depth and enqueues.
func WithQueueMetrics(m *metric.AgentMetrics) QueueOption {
	return func(q *Queue) {
		q.metrics = m
	}
}

// NewQueue creates a queue on kv.
func NewQueue(kv storage.KVEngine, opts ...QueueOption) *Queue {
	q := &Queue{
		kv:     kv,
		logger: slog.Default(),
		subs:   make(map[uint64]Subscriber),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue stages loc for orgID and notifies subscribers.
func (q *Queue) Enqueue(ctx context.Context, orgID string, loc *domain.Location) (*domain.PendingRecord, error) {
	rec, err := domain.NewPendingRecord(orgID, loc)
	if err != nil {
		return nil, err
	}
	if err := q.EnqueueRecord(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// EnqueueRecord stores a record built by the caller, keeping its pending ID.
func (q *Queue) EnqueueRecord(ctx context.Context, rec *domain.PendingRecord) error {
	if !domain.IsValidPendingID(rec.PendingID) {
		return domain.ErrInvalidArgument.WithDetails("invalid pending id")
	}
	if err := domain.ValidateOrgID(rec.OrgID); err != nil {
		return err
	}

	data, err := q.encode(rec)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.kv.Set(ctx, pendingKey(rec.PendingID), data); err != nil {
		return domain.ErrStorageError.WithCause(err)
	}

	q.logger.Info("location queued",
		"pending_id", rec.PendingID,
		"org", rec.OrgID,
		"name", rec.Location.Name)
	q.metrics.Enqueued()
	q.notify(ctx)
	return nil
}

// List returns all pending records in insertion order. Records that
// cannot be decoded are logged and skipped; they stay in the store.
func (q *Queue) List(ctx context.Context) ([]*domain.PendingRecord, error) {
	var out []*domain.PendingRecord
	err := q.kv.Scan(ctx, []byte(pendingPrefix), func(key, value []byte) bool {
		rec, err := q.decode(key, value)
		if err != nil {
			q.logger.Warn("skipping unreadable pending record", "key", string(key), "error", err)
			return true
		}
		out = append(out, rec)
		return true
	})
	if err != nil {
		return nil, domain.ErrStorageError.WithCause(err)
	}
	return out, nil
}

// Get returns one pending record.
func (q *Queue) Get(ctx context.Context, pendingID string) (*domain.PendingRecord, error) {
	raw, err := q.kv.Get(ctx, pendingKey(pendingID))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, domain.ErrPendingNotFound
		}
		return nil, domain.ErrStorageError.WithCause(err)
	}
	return q.decode(pendingKey(pendingID), raw)
}

// Len returns the number of records List would return. Records that
// cannot be decoded are not counted.
func (q *Queue) Len(ctx context.Context) (int, error) {
	pending, err := q.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(pending), nil
}

// Remove deletes a record and notifies subscribers.
func (q *Queue) Remove(ctx context.Context, pendingID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	err := q.kv.Update(ctx, func(txn storage.Txn) error {
		if _, err := txn.Get(pendingKey(pendingID)); err != nil {
			return err
		}
		return txn.Delete(pendingKey(pendingID))
	})
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return domain.ErrPendingNotFound
		}
		return domain.ErrStorageError.WithCause(err)
	}

	q.notify(ctx)
	return nil
}

// RecordFailure bumps the attempt counter of a record and stores the
// failure message. The record stays queued.
func (q *Queue) RecordFailure(ctx context.Context, pendingID string, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	err := q.kv.Update(ctx, func(txn storage.Txn) error {
		raw, err := txn.Get(pendingKey(pendingID))
		if err != nil {
			return err
		}
		rec, err := q.decode(pendingKey(pendingID), raw)
		if err != nil {
			return err
		}
		rec.MarkFailed(cause)
		data, err := q.encode(rec)
		if err != nil {
			return err
		}
		return txn.Set(pendingKey(pendingID), data)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrKeyNotFound):
		return domain.ErrPendingNotFound
	case domain.IsDomainError(err, ""):
		return err
	default:
		return domain.ErrStorageError.WithCause(err)
	}
}

// Subscribe registers fn to receive the pending list after every add and
// remove. fn runs on the goroutine that changed the queue and must not
// modify the queue itself. The returned function unsubscribes.
func (q *Queue) Subscribe(fn Subscriber) (unsubscribe func()) {
	q.subMu.Lock()
	id := q.nextSub
	q.nextSub++
	q.subs[id] = fn
	q.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			q.subMu.Lock()
			delete(q.subs, id)
			q.subMu.Unlock()
		})
	}
}

// notify must be called with q.mu held.
func (q *Queue) notify(ctx context.Context) {
	pending, err := q.List(context.WithoutCancel(ctx))
	if err != nil {
		q.logger.Error("failed to list queue for subscribers", "error", err)
		return
	}
	q.metrics.SetQueueDepth(len(pending))

	q.subMu.RLock()
	subs := make([]Subscriber, 0, len(q.subs))
	for _, fn := range q.subs {
		subs = append(subs, fn)
	}
	q.subMu.RUnlock()

	for _, fn := range subs {
		fn(clonePending(pending))
	}
}

func clonePending(in []*domain.PendingRecord) []*domain.PendingRecord {
	out := make([]*domain.PendingRecord, len(in))
	for i, rec := range in {
		out[i] = rec.Clone()
	}
	return out
}

func (q *Queue) encode(rec *domain.PendingRecord) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, domain.ErrInternalServer.WithCause(err)
	}
	if q.cipher == nil {
		return data, nil
	}
	sealed, err := q.cipher.Encrypt(data, pendingKey(rec.PendingID))
	if err != nil {
		return nil, domain.ErrInternalServer.WithCause(err)
	}
	return append([]byte{sealedMarker}, sealed...), nil
}

func (q *Queue) decode(key, raw []byte) (*domain.PendingRecord, error) {
	if len(raw) == 0 {
		return nil, domain.ErrQueueCorrupt.WithDetails("empty record")
	}

	data := raw
	if raw[0] == sealedMarker {
		if q.cipher == nil {
			return nil, domain.ErrQueueCorrupt.WithDetails("record is encrypted, queue passphrase required")
		}
		plain, err := q.cipher.Decrypt(raw[1:], key)
		if err != nil {
			return nil, domain.ErrQueueCorrupt.WithCause(fmt.Errorf("decrypt: %w", err))
		}
		data = plain
	}

	rec := &domain.PendingRecord{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, domain.ErrQueueCorrupt.WithCause(err)
	}
	return rec, nil
}
