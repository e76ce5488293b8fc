package history

import (
	"container/list"
	"sync"
	"time"

	"github.com/masa-finance/resilient-engine/api/types"
)

// Default values
const (
	defaultMaxSize    = 1000
	defaultMaxAgeSecs = 600
)

type cacheEntry struct {
	key       string
	result    types.ExecutionResult
	timestamp time.Time
	element   *list.Element // pointer to the element in the list
}

// Cache keeps the most recent execution envelopes by uuid so callers can
// re-fetch a result after the synchronous response was consumed. Oldest
// entries are evicted by size and by age.
type Cache struct {
	lock    sync.Mutex
	entries map[string]*cacheEntry
	order   *list.List // oldest at Front, newest at Back
	maxSize int
	maxAge  time.Duration
}

// NewCache creates a new Cache with the specified maxSize and maxAge
func NewCache(maxSize int, maxAge time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	if maxAge <= 0 {
		maxAge = defaultMaxAgeSecs * time.Second
	}
	c := &Cache{
		entries: make(map[string]*cacheEntry),
		order:   list.New(),
		maxSize: maxSize,
		maxAge:  maxAge,
	}
	go c.periodicCleanup()
	return c
}

func (c *Cache) Set(key string, result types.ExecutionResult) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if entry, exists := c.entries[key]; exists {
		// Update and move to back
		entry.result = result
		entry.timestamp = time.Now()
		c.order.MoveToBack(entry.element)
		return
	}
	// New entry
	entry := &cacheEntry{
		key:       key,
		result:    result,
		timestamp: time.Now(),
	}
	entry.element = c.order.PushBack(entry)
	c.entries[key] = entry
	// Evict if over size
	for len(c.entries) > c.maxSize {
		oldest := c.order.Front()
		if oldest != nil {
			oldestEntry := oldest.Value.(*cacheEntry)
			delete(c.entries, oldestEntry.key)
			c.order.Remove(oldest)
		}
	}
}

func (c *Cache) Get(key string) (types.ExecutionResult, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	entry, exists := c.entries[key]
	if !exists {
		return types.ExecutionResult{}, false
	}
	// If expired, remove
	if c.maxAge > 0 && time.Since(entry.timestamp) > c.maxAge {
		c.order.Remove(entry.element)
		delete(c.entries, key)
		return types.ExecutionResult{}, false
	}
	return entry.result, true
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.entries)
}

func (c *Cache) periodicCleanup() {
	ticker := time.NewTicker(c.maxAge / 2)
	defer ticker.Stop()
	for range ticker.C {
		c.cleanupExpired()
	}
}

func (c *Cache) cleanupExpired() {
	c.lock.Lock()
	defer c.lock.Unlock()
	now := time.Now()
	for e := c.order.Front(); e != nil; {
		next := e.Next()
		entry := e.Value.(*cacheEntry)
		if c.maxAge > 0 && now.Sub(entry.timestamp) > c.maxAge {
			delete(c.entries, entry.key)
			c.order.Remove(e)
		}
		e = next
	}
}
