package utils

import (
	"sync"
	"time"
)

// TTLMap is a concurrency-safe map whose entries expire ttl after their last
// write. Expired entries are swept in the background until Close is called.
type TTLMap[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]ttlEntry[V]
	ttl     time.Duration
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
}

type ttlEntry[V any] struct {
	value   V
	expires time.Time
}

// NewTTLMap creates a TTLMap and starts its sweeper.
func NewTTLMap[K comparable, V any](ttl time.Duration) *TTLMap[K, V] {
	m := &TTLMap[K, V]{
		entries: make(map[K]ttlEntry[V]),
		ttl:     ttl,
		now:     time.Now,
		done:    make(chan struct{}),
	}

	go m.sweep()

	return m
}

// Get returns the live value for key.
func (m *TTLMap[K, V]) Get(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok || m.now().After(entry.expires) {
		var zero V
		return zero, false
	}
	return entry.value, true
}

// GetOrCreate returns the live value for key, creating it with create if it
// is missing or expired. The entry's expiry is refreshed either way.
func (m *TTLMap[K, V]) GetOrCreate(key K, create func() V) V {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	entry, ok := m.entries[key]
	if !ok || now.After(entry.expires) {
		entry.value = create()
	}
	entry.expires = now.Add(m.ttl)
	m.entries[key] = entry

	return entry.value
}

// Set stores value under key.
func (m *TTLMap[K, V]) Set(key K, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = ttlEntry[V]{value: value, expires: m.now().Add(m.ttl)}
}

// Delete removes key.
func (m *TTLMap[K, V]) Delete(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (m *TTLMap[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.entries)
}

// Close stops the sweeper.
func (m *TTLMap[K, V]) Close() {
	m.once.Do(func() { close(m.done) })
}

func (m *TTLMap[K, V]) sweep() {
	ticker := time.NewTicker(m.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.removeExpired()
		}
	}
}

func (m *TTLMap[K, V]) removeExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, entry := range m.entries {
		if now.After(entry.expires) {
			delete(m.entries, key)
		}
	}
}
