package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/matriflow/matriflow-engine/pkg/models"
)

func cachedFixture(t *testing.T) (*models.MatrixDiff, *models.ImpactAnalysis) {
	t.Helper()
	diff := analyzedFixtureDiff(t)
	impact := NewImpactAnalyzer(zap.NewNop()).Analyze(diff)
	return diff, impact
}

func newTestMemoryCache(t *testing.T, ttl time.Duration, maxSize int) DiffCache {
	t.Helper()
	cache := NewMemoryDiffCache(ttl, maxSize)
	t.Cleanup(cache.(*memoryDiffCache).Stop)
	return cache
}

func TestMemoryDiffCache_SetAndGet(t *testing.T) {
	cache := newTestMemoryCache(t, time.Minute, 10)
	ctx := context.Background()
	matrixID := uuid.New()
	diff, impact := cachedFixture(t)

	_, hit := cache.GetVersionDiff(ctx, matrixID, 1, 2)
	assert.False(t, hit)

	cache.SetVersionDiff(ctx, matrixID, 1, 2, diff, impact)

	cached, hit := cache.GetVersionDiff(ctx, matrixID, 1, 2)
	require.True(t, hit)
	assert.Equal(t, diff, cached.Diff)
	assert.Equal(t, impact, cached.Impact)
}

func TestMemoryDiffCache_DirectionMatters(t *testing.T) {
	cache := newTestMemoryCache(t, time.Minute, 10)
	ctx := context.Background()
	matrixID := uuid.New()
	diff, impact := cachedFixture(t)

	cache.SetVersionDiff(ctx, matrixID, 1, 2, diff, impact)

	_, hit := cache.GetVersionDiff(ctx, matrixID, 2, 1)
	assert.False(t, hit, "(from,to) and (to,from) must be distinct keys")
}

func TestMemoryDiffCache_KeyedByMatrix(t *testing.T) {
	cache := newTestMemoryCache(t, time.Minute, 10)
	ctx := context.Background()
	diff, impact := cachedFixture(t)

	cache.SetVersionDiff(ctx, uuid.New(), 1, 2, diff, impact)

	_, hit := cache.GetVersionDiff(ctx, uuid.New(), 1, 2)
	assert.False(t, hit)
}

func TestMemoryDiffCache_Expiry(t *testing.T) {
	cache := newTestMemoryCache(t, 10*time.Millisecond, 10)
	ctx := context.Background()
	matrixID := uuid.New()
	diff, impact := cachedFixture(t)

	cache.SetVersionDiff(ctx, matrixID, 1, 2, diff, impact)

	_, hit := cache.GetVersionDiff(ctx, matrixID, 1, 2)
	require.True(t, hit)

	time.Sleep(20 * time.Millisecond)

	_, hit = cache.GetVersionDiff(ctx, matrixID, 1, 2)
	assert.False(t, hit, "entry must expire after its TTL")
}

func TestMemoryDiffCache_OverwriteReplacesWholesale(t *testing.T) {
	cache := newTestMemoryCache(t, time.Minute, 10)
	ctx := context.Background()
	matrixID := uuid.New()
	diff, impact := cachedFixture(t)

	cache.SetVersionDiff(ctx, matrixID, 1, 2, diff, impact)
	cache.SetVersionDiff(ctx, matrixID, 1, 2, diff, nil)

	cached, hit := cache.GetVersionDiff(ctx, matrixID, 1, 2)
	require.True(t, hit)
	assert.Nil(t, cached.Impact)
}

func TestMemoryDiffCache_EvictsWhenFull(t *testing.T) {
	cache := newTestMemoryCache(t, time.Minute, 2)
	ctx := context.Background()
	matrixID := uuid.New()
	diff, impact := cachedFixture(t)

	cache.SetVersionDiff(ctx, matrixID, 1, 2, diff, impact)
	time.Sleep(time.Millisecond)
	cache.SetVersionDiff(ctx, matrixID, 2, 3, diff, impact)
	time.Sleep(time.Millisecond)
	cache.SetVersionDiff(ctx, matrixID, 3, 4, diff, impact)

	_, hit := cache.GetVersionDiff(ctx, matrixID, 1, 2)
	assert.False(t, hit, "least recently used entry must be evicted at capacity")
	_, hit = cache.GetVersionDiff(ctx, matrixID, 2, 3)
	assert.True(t, hit)
	_, hit = cache.GetVersionDiff(ctx, matrixID, 3, 4)
	assert.True(t, hit)
}

func TestMemoryDiffCache_ConcurrentAccess(t *testing.T) {
	cache := newTestMemoryCache(t, time.Minute, 100)
	ctx := context.Background()
	matrixID := uuid.New()
	diff, impact := cachedFixture(t)

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				cache.SetVersionDiff(ctx, matrixID, n, n+1, diff, impact)
				cache.GetVersionDiff(ctx, matrixID, n, n+1)
			}
		}(i + 1)
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	cached, hit := cache.GetVersionDiff(ctx, matrixID, 1, 2)
	require.True(t, hit)
	assert.Equal(t, diff, cached.Diff)
}

// Concurrent hits on one key, the shape of a UI paginating the same diff.
// A hit touches the entry's access time, so this must hold under -race.
func TestMemoryDiffCache_ConcurrentGetsSameKey(t *testing.T) {
	cache := newTestMemoryCache(t, time.Minute, 10)
	ctx := context.Background()
	matrixID := uuid.New()
	diff, impact := cachedFixture(t)

	cache.SetVersionDiff(ctx, matrixID, 1, 2, diff, impact)

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 200; j++ {
				cached, hit := cache.GetVersionDiff(ctx, matrixID, 1, 2)
				if !hit || cached.Diff == nil {
					t.Error("expected a hit on the shared key")
					return
				}
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}

func TestMemoryDiffCache_StopIsIdempotentAndKeepsCacheUsable(t *testing.T) {
	cache := NewMemoryDiffCache(time.Minute, 10)
	ctx := context.Background()
	matrixID := uuid.New()
	diff, impact := cachedFixture(t)

	mem := cache.(*memoryDiffCache)
	mem.Stop()
	mem.Stop()

	cache.SetVersionDiff(ctx, matrixID, 1, 2, diff, impact)
	_, hit := cache.GetVersionDiff(ctx, matrixID, 1, 2)
	assert.True(t, hit)
}

func TestDiffCacheKey(t *testing.T) {
	matrixID := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	key := diffCacheKey(matrixID, 3, 7)
	assert.Equal(t, fmt.Sprintf("matriflow:diff:%s:3:7", matrixID), key)
}
