package derive

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/finlens/finlens/internal/domain"
)

// DefaultSnapshotTTL bounds how long a derived snapshot is served before it
// is recomputed. Derivation is cheap but runs on every filter change, and
// clients poll; the cache absorbs the repeats.
const DefaultSnapshotTTL = 5 * time.Minute

// Cache memoizes derived series per (dataset, selection, rate) key.
// Entries are stored msgpack-encoded, so callers always receive a private
// copy and cannot mutate each other's snapshots.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	data     []byte
	storedAt time.Time
}

// NewCache creates a snapshot cache. A non-positive ttl selects the default.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Key builds the cache key for a dataset and selection. Year order in the
// selection does not affect the result, so years are sorted before keying.
func Key(datasetID string, sel domain.FilterSelection, rate float64) string {
	years := make([]int, len(sel.Years))
	copy(years, sel.Years)
	sort.Ints(years)

	parts := make([]string, len(years))
	for i, y := range years {
		parts[i] = fmt.Sprintf("%d", y)
	}
	return fmt.Sprintf("%s|%s|%s|%s|%.6f",
		datasetID, strings.Join(parts, ","), sel.Industry, sel.Currency, rate)
}

// Get returns the cached snapshot for key if it is still fresh.
func (c *Cache) Get(key string) (*domain.DerivedSeries, bool) {
	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok && c.now().Sub(entry.storedAt) > c.ttl {
		delete(c.entries, key)
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		return nil, false
	}

	var out domain.DerivedSeries
	if err := msgpack.Unmarshal(entry.data, &out); err != nil {
		// A decode failure means the entry is corrupt; drop it.
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return &out, true
}

// Put stores a snapshot under key. Encoding failures are swallowed; the
// cache is an optimization and must never fail a derivation.
func (c *Cache) Put(key string, series *domain.DerivedSeries) {
	data, err := msgpack.Marshal(series)
	if err != nil {
		return
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{data: data, storedAt: c.now()}
	c.mu.Unlock()
}

// InvalidateDataset drops every entry belonging to a dataset. Called when an
// upload replaces it.
func (c *Cache) InvalidateDataset(datasetID string) {
	prefix := datasetID + "|"
	c.mu.Lock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}

// Purge removes expired entries. Wired to the periodic cleanup job.
func (c *Cache) Purge() int {
	now := c.now()
	removed := 0

	c.mu.Lock()
	for k, entry := range c.entries {
		if now.Sub(entry.storedAt) > c.ttl {
			delete(c.entries, k)
			removed++
		}
	}
	c.mu.Unlock()

	return removed
}

// Len reports the number of entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
