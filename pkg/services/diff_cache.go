package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/matriflow/matriflow-engine/pkg/models"
)

// CachedDiff is the value memoized per version pair. Entries are replaced
// wholesale, never partially updated.
type CachedDiff struct {
	Diff   *models.MatrixDiff     `json:"diff"`
	Impact *models.ImpactAnalysis `json:"impact,omitempty"`
}

// DiffCache memoizes computed (diff, impact) pairs per ordered version
// pair. (from,to) and (to,from) are distinct keys since diff direction
// affects the added/removed labeling. A miss is never an error; callers
// recompute and store. Concurrent Set races for the same key are benign
// idempotent overwrites.
type DiffCache interface {
	GetVersionDiff(ctx context.Context, matrixID uuid.UUID, fromVersion, toVersion int) (*CachedDiff, bool)
	SetVersionDiff(ctx context.Context, matrixID uuid.UUID, fromVersion, toVersion int, diff *models.MatrixDiff, impact *models.ImpactAnalysis)
}

func diffCacheKey(matrixID uuid.UUID, fromVersion, toVersion int) string {
	return fmt.Sprintf("matriflow:diff:%s:%d:%d", matrixID, fromVersion, toVersion)
}

// memoryDiffCache is the in-process backend: a TTL map with LRU eviction
// and a periodic sweep of expired entries.
type memoryDiffCache struct {
	mu       sync.Mutex
	entries  map[string]*memoryCacheEntry
	ttl      time.Duration
	maxSize  int
	stop     chan struct{}
	stopOnce sync.Once
}

type memoryCacheEntry struct {
	value      *CachedDiff
	expiresAt  time.Time
	lastAccess time.Time
}

// NewMemoryDiffCache creates an in-memory diff cache holding at most
// maxSize entries for ttl each, and starts its cleanup goroutine.
func NewMemoryDiffCache(ttl time.Duration, maxSize int) DiffCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	c := &memoryDiffCache{
		entries: make(map[string]*memoryCacheEntry),
		ttl:     ttl,
		maxSize: maxSize,
		stop:    make(chan struct{}),
	}
	c.startCleanup(time.Minute)
	return c
}

var _ DiffCache = (*memoryDiffCache)(nil)

func (c *memoryDiffCache) GetVersionDiff(_ context.Context, matrixID uuid.UUID, fromVersion, toVersion int) (*CachedDiff, bool) {
	// Full lock, not RLock: a hit updates the entry's lastAccess, and
	// concurrent reads of the same key must not race on that write.
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[diffCacheKey(matrixID, fromVersion, toVersion)]
	if !exists {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		// Expired entries are swept by the cleanup goroutine.
		return nil, false
	}

	entry.lastAccess = time.Now()
	return entry.value, true
}

func (c *memoryDiffCache) SetVersionDiff(_ context.Context, matrixID uuid.UUID, fromVersion, toVersion int, diff *models.MatrixDiff, impact *models.ImpactAnalysis) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxSize {
		c.evictLRU()
	}

	now := time.Now()
	c.entries[diffCacheKey(matrixID, fromVersion, toVersion)] = &memoryCacheEntry{
		value:      &CachedDiff{Diff: diff, Impact: impact},
		expiresAt:  now.Add(c.ttl),
		lastAccess: now,
	}
}

func (c *memoryDiffCache) evictLRU() {
	var oldestKey string
	var oldestTime time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.lastAccess.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.lastAccess
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func (c *memoryDiffCache) startCleanup(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.cleanup()
			case <-c.stop:
				return
			}
		}
	}()
}

// Stop halts the cleanup goroutine. The cache stays usable afterward;
// expired entries are then never swept, only treated as misses on Get.
// Safe to call more than once.
func (c *memoryDiffCache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *memoryDiffCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// redisDiffCache stores cached pairs as JSON with a server-side TTL so
// multiple engine instances share one diff cache. Backend failures are
// treated as misses, never surfaced as errors.
type redisDiffCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisDiffCache creates a Redis-backed diff cache.
func NewRedisDiffCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) DiffCache {
	return &redisDiffCache{
		client: client,
		ttl:    ttl,
		logger: logger.Named("diff-cache"),
	}
}

var _ DiffCache = (*redisDiffCache)(nil)

func (c *redisDiffCache) GetVersionDiff(ctx context.Context, matrixID uuid.UUID, fromVersion, toVersion int) (*CachedDiff, bool) {
	key := diffCacheKey(matrixID, fromVersion, toVersion)
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("Cache read failed, treating as miss",
			zap.String("key", key),
			zap.Error(err))
		return nil, false
	}

	var cached CachedDiff
	if err := json.Unmarshal(data, &cached); err != nil {
		c.logger.Warn("Cache entry is not decodable, treating as miss",
			zap.String("key", key),
			zap.Error(err))
		return nil, false
	}
	return &cached, true
}

func (c *redisDiffCache) SetVersionDiff(ctx context.Context, matrixID uuid.UUID, fromVersion, toVersion int, diff *models.MatrixDiff, impact *models.ImpactAnalysis) {
	key := diffCacheKey(matrixID, fromVersion, toVersion)
	data, err := json.Marshal(&CachedDiff{Diff: diff, Impact: impact})
	if err != nil {
		c.logger.Warn("Failed to encode cache entry",
			zap.String("key", key),
			zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("Cache write failed",
			zap.String("key", key),
			zap.Error(err))
	}
}
