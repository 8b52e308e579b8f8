package cache

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// entry is the cached record. Callers never see it; Get hands out clones of
// the value so cached state cannot be mutated from outside.
type entry[T any] struct {
	value          T
	createdAt      time.Time
	expiresAt      time.Time
	ttl            time.Duration
	hitCount       int64
	lastAccessedAt time.Time
}

// Namespace is one logical cache with its own TTL and LRU size cap. Inserts
// beyond maxSize evict the least recently used entry; expired entries are
// dropped on access and by the manager's janitor.
type Namespace[T any] struct {
	name  string
	ttl   time.Duration
	clone func(T) T

	mu     sync.Mutex
	lru    *lru.Cache[string, *entry[T]]
	hits   int64
	misses int64
}

// NewNamespace registers a namespace with the manager. The clone function
// guards copy-out semantics; pass Identity for value types that carry no
// shared references.
func NewNamespace[T any](m *Manager, name string, maxSize int, ttl time.Duration, clone func(T) T) (*Namespace[T], error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("cache namespace %q: maxSize must be positive", name)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("cache namespace %q: ttl must be positive", name)
	}
	if clone == nil {
		return nil, fmt.Errorf("cache namespace %q: clone function is required", name)
	}
	cache, err := lru.New[string, *entry[T]](maxSize)
	if err != nil {
		return nil, fmt.Errorf("cache namespace %q: %w", name, err)
	}
	n := &Namespace[T]{
		name:  name,
		ttl:   ttl,
		clone: clone,
		lru:   cache,
	}
	if err := m.register(name, n); err != nil {
		return nil, err
	}
	return n, nil
}

// Get returns a copy of the cached value. Expired entries count as misses
// and are removed on the spot.
func (n *Namespace[T]) Get(key string) (T, bool) {
	var zero T
	n.mu.Lock()
	defer n.mu.Unlock()

	e, ok := n.lru.Get(key)
	if !ok {
		n.misses++
		return zero, false
	}
	now := time.Now()
	if now.After(e.expiresAt) {
		n.lru.Remove(key)
		n.misses++
		return zero, false
	}
	e.hitCount++
	e.lastAccessedAt = now
	n.hits++
	return n.clone(e.value), true
}

// Set stores a copy of the value under the namespace default TTL.
func (n *Namespace[T]) Set(key string, value T) {
	n.SetWithTTL(key, value, n.ttl)
}

// SetWithTTL stores a copy of the value with an explicit TTL.
func (n *Namespace[T]) SetWithTTL(key string, value T, ttl time.Duration) {
	if ttl <= 0 {
		ttl = n.ttl
	}
	now := time.Now()
	e := &entry[T]{
		value:          n.clone(value),
		createdAt:      now,
		expiresAt:      now.Add(ttl),
		ttl:            ttl,
		lastAccessedAt: now,
	}
	n.mu.Lock()
	n.lru.Add(key, e)
	n.mu.Unlock()
}

// Len reports the current number of entries, expired or not.
func (n *Namespace[T]) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lru.Len()
}

// Stats reports cumulative hits and misses.
func (n *Namespace[T]) Stats() (hits, misses int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.hits, n.misses
}

// sweep drops expired entries. Each removal takes the lock separately so
// query-path Get/Set never waits longer than a single entry removal.
func (n *Namespace[T]) sweep(now time.Time) int {
	n.mu.Lock()
	var expired []string
	for _, key := range n.lru.Keys() {
		if e, ok := n.lru.Peek(key); ok && now.After(e.expiresAt) {
			expired = append(expired, key)
		}
	}
	n.mu.Unlock()

	removed := 0
	for _, key := range expired {
		n.mu.Lock()
		// a Set between the scan and this removal may have refreshed the entry
		if e, ok := n.lru.Peek(key); ok && now.After(e.expiresAt) {
			n.lru.Remove(key)
			removed++
		}
		n.mu.Unlock()
	}
	return removed
}

func (n *Namespace[T]) purge() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	size := n.lru.Len()
	n.lru.Purge()
	return size
}

// Identity is the clone function for values with value semantics.
func Identity[T any](v T) T { return v }

// CloneSlice copies a slice of value-semantics elements.
func CloneSlice[T any](v []T) []T {
	if v == nil {
		return nil
	}
	out := make([]T, len(v))
	copy(out, v)
	return out
}
