package cmap

import (
	"crypto/rand"
	"encoding/binary"
	"sync"

	"github.com/spaolacci/murmur3"
)

// DefaultShardCount is the default number of shards.
const DefaultShardCount = 16

// Map is a concurrent-safe sharded map keyed by string.
type Map[V any] struct {
	shards    []*shard[V]
	shardMask uint32
	seed      uint32
}

type shard[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

// New creates a new sharded map with the default shard count.
func New[V any]() *Map[V] {
	return NewWithShards[V](DefaultShardCount)
}

// NewWithShards creates a sharded map. shardCount is rounded to the
// default when it is not a positive power of two.
func NewWithShards[V any](shardCount int) *Map[V] {
	if shardCount <= 0 || shardCount&(shardCount-1) != 0 {
		shardCount = DefaultShardCount
	}

	var seed [4]byte
	_, _ = rand.Read(seed[:])

	m := &Map[V]{
		shards:    make([]*shard[V], shardCount),
		shardMask: uint32(shardCount - 1),
		seed:      binary.LittleEndian.Uint32(seed[:]),
	}
	for i := range m.shards {
		m.shards[i] = &shard[V]{items: make(map[string]V)}
	}
	return m
}

func (m *Map[V]) getShard(key string) *shard[V] {
	h := murmur3.Sum32WithSeed([]byte(key), m.seed)
	return m.shards[h&m.shardMask]
}

// Get retrieves a value by key.
func (m *Map[V]) Get(key string) (V, bool) {
	s := m.getShard(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

// Set stores a key-value pair.
func (m *Map[V]) Set(key string, value V) {
	s := m.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
}

// Delete removes a key.
func (m *Map[V]) Delete(key string) {
	s := m.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
}

// GetOrSet returns the existing value for key, or stores and returns
// value. loaded reports whether the value already existed.
func (m *Map[V]) GetOrSet(key string, value V) (actual V, loaded bool) {
	s := m.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.items[key]; ok {
		return existing, true
	}
	s.items[key] = value
	return value, false
}

// GetOrCreate is GetOrSet with a lazily built value; create runs under
// the shard lock at most once per missing key.
func (m *Map[V]) GetOrCreate(key string, create func() V) V {
	s := m.getShard(key)

	s.mu.RLock()
	v, ok := s.items[key]
	s.mu.RUnlock()
	if ok {
		return v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.items[key]; ok {
		return v
	}
	v = create()
	s.items[key] = v
	return v
}

// DeleteFunc removes every entry for which fn returns true and reports
// how many were removed.
func (m *Map[V]) DeleteFunc(fn func(key string, value V) bool) int {
	removed := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for k, v := range s.items {
			if fn(k, v) {
				delete(s.items, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Range calls fn for every entry until fn returns false. Shards are
// locked one at a time, so the view is not a consistent snapshot.
func (m *Map[V]) Range(fn func(key string, value V) bool) {
	for _, s := range m.shards {
		s.mu.RLock()
		for k, v := range s.items {
			if !fn(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

// Count returns the total number of items.
func (m *Map[V]) Count() int {
	n := 0
	for _, s := range m.shards {
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}

// Clear removes all items.
func (m *Map[V]) Clear() {
	for _, s := range m.shards {
		s.mu.Lock()
		s.items = make(map[string]V)
		s.mu.Unlock()
	}
}
