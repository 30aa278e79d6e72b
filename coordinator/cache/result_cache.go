package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dot5enko/tessera/result"
)

type CacheEntry struct {
	ID    uuid.UUID
	Key   string
	Table *result.Table
	Stats *CacheStats
}

// ResultCache maps query keys onto results. When maxEntries is reached the
// least recently read entry is evicted.
type ResultCache struct {
	storage       map[string]*CacheEntry
	storageLocker sync.RWMutex

	maxEntries int

	hits    atomic.Int64
	misses  atomic.Int64
	evicted atomic.Int64
}

// NewResultCache creates a cache; maxEntries <= 0 means unbounded.
func NewResultCache(maxEntries int) *ResultCache {
	return &ResultCache{
		storage:    make(map[string]*CacheEntry),
		maxEntries: maxEntries,
	}
}

func (m *ResultCache) Get(key string) (*result.Table, bool) {

	m.storageLocker.RLock()
	entry, ok := m.storage[key]
	m.storageLocker.RUnlock()

	if !ok {
		m.misses.Add(1)
		return nil, false
	}

	m.hits.Add(1)
	entry.Stats.touch(time.Now())

	return entry.Table, true
}

func (m *ResultCache) Put(key string, table *result.Table) *CacheEntry {

	tn := time.Now()
	uid, _ := uuid.NewV7()

	entry := &CacheEntry{
		ID:    uid,
		Key:   key,
		Table: table,
		Stats: &CacheStats{Created: tn},
	}
	entry.Stats.LastRead.Store(tn.UnixNano())

	m.storageLocker.Lock()
	defer m.storageLocker.Unlock()

	if _, exists := m.storage[key]; !exists && m.maxEntries > 0 && len(m.storage) >= m.maxEntries {
		m.evictLocked()
	}
	m.storage[key] = entry

	return entry
}

func (m *ResultCache) evictLocked() {

	var (
		victim   string
		oldest   int64
		selected bool
	)

	for key, entry := range m.storage {
		lastRead := entry.Stats.LastRead.Load()
		if !selected || lastRead < oldest {
			victim, oldest, selected = key, lastRead, true
		}
	}

	if selected {
		delete(m.storage, victim)
		m.evicted.Add(1)
	}
}

// Purge drops every entry and returns how many were removed.
func (m *ResultCache) Purge() int {
	m.storageLocker.Lock()
	defer m.storageLocker.Unlock()

	removed := len(m.storage)
	m.storage = make(map[string]*CacheEntry)

	return removed
}

func (m *ResultCache) Len() int {
	m.storageLocker.RLock()
	defer m.storageLocker.RUnlock()

	return len(m.storage)
}

func (m *ResultCache) Summary() Summary {
	return Summary{
		Entries: m.Len(),
		Hits:    m.hits.Load(),
		Misses:  m.misses.Load(),
		Evicted: m.evicted.Load(),
	}
}
