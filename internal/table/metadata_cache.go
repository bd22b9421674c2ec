package table

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/devrev/tablecore/internal/clock"
)

// DefaultMetadataCacheBytes bounds the cache of immutable instant artifacts
const DefaultMetadataCacheBytes = 8 << 20

const (
	cacheEntryOverhead = 64
	frequencyWeight    = 0.5
	recencyWeight      = 0.5
)

type cacheEntry struct {
	key         string
	value       []byte
	accessCount int64
	lastAccess  time.Time
	score       float64
}

func (e *cacheEntry) size() int64 {
	return int64(len(e.key) + len(e.value) + cacheEntryOverhead)
}

// metadataCache keeps the content of completed instants and compaction plans, which never
// change once written. Eviction drops the entry with the lowest frequency/recency score.
type metadataCache struct {
	mu          sync.Mutex
	entries     map[string]*cacheEntry
	maxSize     int64
	currentSize int64
	clock       clock.Clock
	logger      *zap.Logger

	hits   int64
	misses int64
}

// CacheStats holds metadata cache statistics
type CacheStats struct {
	Size       int64
	MaxSize    int64
	EntryCount int
	Hits       int64
	Misses     int64
}

func newMetadataCache(maxSize int64, c clock.Clock, logger *zap.Logger) *metadataCache {
	return &metadataCache{
		entries: make(map[string]*cacheEntry),
		maxSize: maxSize,
		clock:   c,
		logger:  logger,
	}
}

func (c *metadataCache) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, found := c.entries[key]
	if !found {
		c.misses++
		return nil, false
	}
	c.hits++
	entry.accessCount++
	entry.lastAccess = c.clock.Now()
	return entry.value, true
}

func (c *metadataCache) put(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, found := c.entries[key]; found {
		return
	}
	entry := &cacheEntry{key: key, value: value, accessCount: 1, lastAccess: c.clock.Now()}
	if entry.size() > c.maxSize {
		return
	}
	for c.currentSize+entry.size() > c.maxSize && len(c.entries) > 0 {
		c.evictLowestScore()
	}
	c.entries[key] = entry
	c.currentSize += entry.size()
}

func (c *metadataCache) remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, found := c.entries[key]; found {
		delete(c.entries, key)
		c.currentSize -= entry.size()
	}
}

// evictLowestScore must be called with mu held
func (c *metadataCache) evictLowestScore() {
	now := c.clock.Now()
	var lowest *cacheEntry
	for _, entry := range c.entries {
		entry.score = frequencyWeight*float64(entry.accessCount) - recencyWeight*now.Sub(entry.lastAccess).Seconds()
		if lowest == nil || entry.score < lowest.score {
			lowest = entry
		}
	}
	if lowest == nil {
		return
	}
	delete(c.entries, lowest.key)
	c.currentSize -= lowest.size()
	c.logger.Debug("Evicted metadata cache entry",
		zap.String("key", lowest.key),
		zap.Float64("score", lowest.score))
}

func (c *metadataCache) stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Size:       c.currentSize,
		MaxSize:    c.maxSize,
		EntryCount: len(c.entries),
		Hits:       c.hits,
		Misses:     c.misses,
	}
}
