// Package cache provides caching implementations for Steward resolution
// results.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xraph/steward"
	"github.com/xraph/steward/id"
)

// Compile-time interface check.
var _ steward.Cache = (*Memory)(nil)

// Memory is an in-memory cache with TTL-based expiration, keyed by
// (user, node, group-admin inheritance flag).
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ttl     time.Duration
	maxSize int
}

type entry struct {
	userKey   string
	nodeKey   string
	level     steward.Level
	held      bool
	expiresAt time.Time
}

// MemoryOption configures the memory cache.
type MemoryOption func(*Memory)

// WithTTL sets the cache entry time-to-live.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) { m.ttl = ttl }
}

// WithMaxSize sets the maximum number of cache entries.
func WithMaxSize(n int) MemoryOption {
	return func(m *Memory) { m.maxSize = n }
}

// NewMemory creates a new in-memory cache.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string]*entry),
		ttl:     5 * time.Minute,
		maxSize: 10000,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns a cached resolution.
func (m *Memory) Get(_ context.Context, userID id.UserID, nodeID id.NodeID, groupAdmin bool) (steward.Level, bool, bool) {
	key := cacheKey(userID, nodeID, groupAdmin)
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return "", false, false
	}
	if time.Now().After(e.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return "", false, false
	}
	return e.level, e.held, true
}

// Set stores a resolution result in the cache.
func (m *Memory) Set(_ context.Context, userID id.UserID, nodeID id.NodeID, groupAdmin bool, lvl steward.Level, held bool) {
	key := cacheKey(userID, nodeID, groupAdmin)
	m.mu.Lock()
	defer m.mu.Unlock()

	// Evict if at capacity.
	if len(m.entries) >= m.maxSize {
		m.evictExpired()
		if len(m.entries) >= m.maxSize {
			m.evictOne()
		}
	}

	m.entries[key] = &entry{
		userKey:   userID.String(),
		nodeKey:   nodeID.String(),
		level:     lvl,
		held:      held,
		expiresAt: time.Now().Add(m.ttl),
	}
}

// InvalidateUser removes all cached resolutions for a user.
func (m *Memory) InvalidateUser(_ context.Context, userID id.UserID) {
	key := userID.String()
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, e := range m.entries {
		if e.userKey == key {
			delete(m.entries, k)
		}
	}
}

// InvalidateNode removes all cached resolutions for a node.
func (m *Memory) InvalidateNode(_ context.Context, nodeID id.NodeID) {
	key := nodeID.String()
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, e := range m.entries {
		if e.nodeKey == key {
			delete(m.entries, k)
		}
	}
}

// InvalidateAll removes every cached resolution.
func (m *Memory) InvalidateAll(_ context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*entry)
}

func cacheKey(userID id.UserID, nodeID id.NodeID, groupAdmin bool) string {
	return fmt.Sprintf("%s:%s:%t", userID, nodeID, groupAdmin)
}

// evictExpired removes all expired entries. Must hold write lock.
func (m *Memory) evictExpired() {
	now := time.Now()
	for k, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, k)
		}
	}
}

// evictOne removes one arbitrary entry. Must hold write lock.
func (m *Memory) evictOne() {
	for k := range m.entries {
		delete(m.entries, k)
		return
	}
}
