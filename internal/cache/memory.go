package cache

import (
	"container/list"
	"sync"
	"time"
)

const (
	// DefaultMaxSize bounds the entry count when no explicit size is given.
	DefaultMaxSize = 1000

	defaultSweepInterval = 5 * time.Minute
)

// Memory is an in-memory cache with per-entry TTL, tag-based bulk
// invalidation, and LRU eviction once the entry count reaches maxSize.
// Expiry is checked lazily on Get; a background sweep additionally reclaims
// entries that are never read again.
type Memory struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	lru     *list.List // front = most recently used
	tags    map[string]map[string]struct{}
	maxSize int

	hits      int64
	misses    int64
	evictions int64
	expired   int64

	stop    chan struct{}
	stopped bool
}

type memoryEntry struct {
	key       string
	value     interface{}
	expiresAt time.Time
	tags      []string
}

// NewMemory creates a memory cache holding at most maxSize entries.
// Non-positive maxSize selects DefaultMaxSize.
func NewMemory(maxSize int) *Memory {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	m := &Memory{
		items:   make(map[string]*list.Element),
		lru:     list.New(),
		tags:    make(map[string]map[string]struct{}),
		maxSize: maxSize,
		stop:    make(chan struct{}),
	}
	go m.sweepLoop(defaultSweepInterval)
	return m
}

// Get returns the live value for key. An expired entry counts as a miss and
// is removed.
func (m *Memory) Get(key string) (interface{}, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		m.misses++
		return nil, false
	}
	e := el.Value.(*memoryEntry)
	if time.Now().After(e.expiresAt) {
		m.removeLocked(el)
		m.expired++
		m.misses++
		return nil, false
	}
	m.lru.MoveToFront(el)
	m.hits++
	return e.value, true
}

// Set stores value under key for ttl, replacing any existing entry. Tags
// associate the entry with invalidation groups.
func (m *Memory) Set(key string, value interface{}, ttl time.Duration, tags ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.items[key]; ok {
		m.removeLocked(el)
	}
	for m.lru.Len() >= m.maxSize {
		m.evictOldestLocked()
	}

	e := &memoryEntry{
		key:       key,
		value:     value,
		expiresAt: time.Now().Add(ttl),
		tags:      tags,
	}
	m.items[key] = m.lru.PushFront(e)
	for _, tag := range tags {
		set, ok := m.tags[tag]
		if !ok {
			set = make(map[string]struct{})
			m.tags[tag] = set
		}
		set[key] = struct{}{}
	}
}

// Delete removes key and reports whether it was present.
func (m *Memory) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return false
	}
	m.removeLocked(el)
	return true
}

// InvalidateTag removes every entry carrying tag and returns how many were
// removed.
func (m *Memory) InvalidateTag(tag string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.tags[tag]
	if !ok {
		return 0
	}
	n := 0
	for key := range set {
		if el, ok := m.items[key]; ok {
			m.removeLocked(el)
			n++
		}
	}
	// removeLocked deletes the tag set once it empties, but be safe against
	// an entry that vanished between index and items.
	delete(m.tags, tag)
	return n
}

// Clear removes all entries and the tag index. Counters are preserved.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = make(map[string]*list.Element)
	m.lru.Init()
	m.tags = make(map[string]map[string]struct{})
}

// Len returns the current entry count, including not-yet-swept expired
// entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lru.Len()
}

// Stats returns a snapshot of the cache counters.
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Entries:   m.lru.Len(),
		MaxSize:   m.maxSize,
		Hits:      m.hits,
		Misses:    m.misses,
		Evictions: m.evictions,
		Expired:   m.expired,
	}
}

// Close stops the background sweep goroutine.
func (m *Memory) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.stopped {
		close(m.stop)
		m.stopped = true
	}
}

// removeLocked unlinks el from the map, LRU list, and tag index.
func (m *Memory) removeLocked(el *list.Element) {
	e := el.Value.(*memoryEntry)
	m.lru.Remove(el)
	delete(m.items, e.key)
	for _, tag := range e.tags {
		if set, ok := m.tags[tag]; ok {
			delete(set, e.key)
			if len(set) == 0 {
				delete(m.tags, tag)
			}
		}
	}
}

func (m *Memory) evictOldestLocked() {
	el := m.lru.Back()
	if el == nil {
		return
	}
	m.removeLocked(el)
	m.evictions++
}

func (m *Memory) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stop:
			return
		}
	}
}

func (m *Memory) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var dead []*list.Element
	for el := m.lru.Back(); el != nil; el = el.Prev() {
		if now.After(el.Value.(*memoryEntry).expiresAt) {
			dead = append(dead, el)
		}
	}
	for _, el := range dead {
		m.removeLocked(el)
		m.expired++
	}
}
