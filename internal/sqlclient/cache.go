package sqlclient

import (
	"crypto/md5"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	queryCacheTTL = 300 * time.Second
	queryCacheMax = 100
)

type cacheEntry struct {
	value     any
	timestamp time.Time
}

// queryCache holds recent upstream results keyed by normalized query.
// When full it drops the oldest half rather than evicting one at a time.
type queryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	max     int
}

func newQueryCache(ttl time.Duration, max int) *queryCache {
	return &queryCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		max:     max,
	}
}

func (qc *queryCache) get(key string) (any, bool) {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	entry, ok := qc.entries[key]
	if !ok {
		return nil, false
	}
	if time.Since(entry.timestamp) > qc.ttl {
		delete(qc.entries, key)
		return nil, false
	}
	return entry.value, true
}

func (qc *queryCache) set(key string, value any) {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	if len(qc.entries) >= qc.max {
		qc.evictOldestLocked(qc.max / 2)
	}
	qc.entries[key] = cacheEntry{value: value, timestamp: time.Now()}
}

func (qc *queryCache) evictOldestLocked(n int) {
	type keyed struct {
		key string
		ts  time.Time
	}
	ordered := make([]keyed, 0, len(qc.entries))
	for k, e := range qc.entries {
		ordered = append(ordered, keyed{key: k, ts: e.timestamp})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ts.Before(ordered[j].ts) })

	for i := 0; i < n && i < len(ordered); i++ {
		delete(qc.entries, ordered[i].key)
	}
}

func (qc *queryCache) clear() {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	qc.entries = make(map[string]cacheEntry)
}

func (qc *queryCache) stats() map[string]any {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	return map[string]any{
		"entries":     len(qc.entries),
		"max_entries": qc.max,
		"ttl_seconds": int(qc.ttl.Seconds()),
	}
}

// cacheKey normalizes a query before hashing so formatting-only variants of
// the same statement share an entry.
func cacheKey(source, query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	return fmt.Sprintf("%x", md5.Sum([]byte(source+":"+normalized)))
}
