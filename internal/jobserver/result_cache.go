package jobserver

import (
	"container/list"
	"sync"
	"time"

	"github.com/trendsift/viral-engine/api/types"
)

const (
	defaultCacheSize = 1000
	defaultCacheAge  = 10 * time.Minute
)

// ResultCache holds finished job results until the caller collects them.
// It is bounded two ways: the least recently written entries fall out once
// maxSize is reached, and entries older than maxAge expire even when the
// cache is not full. A result that was never collected is simply gone.
type ResultCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	order   *list.List // oldest at the front
	maxSize int
	maxAge  time.Duration
}

type cacheEntry struct {
	uuid     string
	result   types.JobResult
	storedAt time.Time
	element  *list.Element
}

func NewResultCache(maxSize int, maxAge time.Duration) *ResultCache {
	if maxSize <= 0 {
		maxSize = defaultCacheSize
	}
	if maxAge <= 0 {
		maxAge = defaultCacheAge
	}
	rc := &ResultCache{
		entries: make(map[string]*cacheEntry),
		order:   list.New(),
		maxSize: maxSize,
		maxAge:  maxAge,
	}
	go rc.expireLoop()
	return rc
}

// Set stores the result under the job UUID. Storing an existing UUID
// refreshes its age and its place in the eviction order.
func (rc *ResultCache) Set(uuid string, result types.JobResult) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if entry, ok := rc.entries[uuid]; ok {
		entry.result = result
		entry.storedAt = time.Now()
		rc.order.MoveToBack(entry.element)
		return
	}

	entry := &cacheEntry{
		uuid:     uuid,
		result:   result,
		storedAt: time.Now(),
	}
	entry.element = rc.order.PushBack(entry)
	rc.entries[uuid] = entry

	for len(rc.entries) > rc.maxSize {
		oldest := rc.order.Front()
		if oldest == nil {
			break
		}
		evicted := oldest.Value.(*cacheEntry)
		delete(rc.entries, evicted.uuid)
		rc.order.Remove(oldest)
	}
}

// Get returns the cached result for the UUID. Expired entries are removed
// on access rather than waiting for the next sweep.
func (rc *ResultCache) Get(uuid string) (types.JobResult, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	entry, ok := rc.entries[uuid]
	if !ok {
		return types.JobResult{}, false
	}
	if time.Since(entry.storedAt) > rc.maxAge {
		rc.order.Remove(entry.element)
		delete(rc.entries, uuid)
		return types.JobResult{}, false
	}
	return entry.result, true
}

func (rc *ResultCache) expireLoop() {
	ticker := time.NewTicker(rc.maxAge / 2)
	defer ticker.Stop()
	for range ticker.C {
		rc.expire(time.Now())
	}
}

func (rc *ResultCache) expire(now time.Time) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for e := rc.order.Front(); e != nil; {
		next := e.Next()
		entry := e.Value.(*cacheEntry)
		if now.Sub(entry.storedAt) > rc.maxAge {
			delete(rc.entries, entry.uuid)
			rc.order.Remove(e)
		}
		e = next
	}
}
