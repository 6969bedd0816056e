package regions

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/malaria-risk-index/internal/domain"
	"github.com/couchcryptid/malaria-risk-index/internal/observability"
)

// --- mock for cache tests ---

type countingResolver struct {
	calls int
	err   error
}

func (m *countingResolver) Resolve(_ context.Context, name string) (domain.Region, error) {
	m.calls++
	if m.err != nil {
		return domain.Region{}, m.err
	}
	return domain.Region{Name: name, Geometry: square(0, 0, 1)}, nil
}

// --- CachedResolver tests ---

func TestCachedResolver_MemoryHit(t *testing.T) {
	inner := &countingResolver{}
	metrics := observability.NewMetricsForTesting()
	cached := NewCachedResolver(inner, nil, 10, metrics, discardLogger())

	r1, err := cached.Resolve(context.Background(), "Northern")
	require.NoError(t, err)
	r2, err := cached.Resolve(context.Background(), "Northern")
	require.NoError(t, err)

	assert.Equal(t, r1, r2)
	assert.Equal(t, 1, inner.calls, "should only call inner once")
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.RegionCache.WithLabelValues("memory", "hit")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.RegionLookups.WithLabelValues("success")), 0)
}

func TestCachedResolver_ErrorsNotCached(t *testing.T) {
	inner := &countingResolver{err: fmt.Errorf("%w: %q", domain.ErrRegionNotFound, "Atlantis")}
	metrics := observability.NewMetricsForTesting()
	cached := NewCachedResolver(inner, nil, 10, metrics, discardLogger())

	_, err := cached.Resolve(context.Background(), "Atlantis")
	require.ErrorIs(t, err, domain.ErrRegionNotFound)
	_, err = cached.Resolve(context.Background(), "Atlantis")
	require.ErrorIs(t, err, domain.ErrRegionNotFound)

	assert.Equal(t, 2, inner.calls)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.RegionLookups.WithLabelValues("not_found")), 0)
}

func TestCachedResolver_UpstreamError(t *testing.T) {
	inner := &countingResolver{err: errors.New("connection refused")}
	metrics := observability.NewMetricsForTesting()
	cached := NewCachedResolver(inner, nil, 10, metrics, discardLogger())

	_, err := cached.Resolve(context.Background(), "Northern")
	require.Error(t, err)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.RegionLookups.WithLabelValues("error")), 0)
}

func TestCachedResolver_StoreTier(t *testing.T) {
	store := openTestStore(t)
	inner := &countingResolver{}

	first := NewCachedResolver(inner, store, 10, observability.NewMetricsForTesting(), discardLogger())
	_, err := first.Resolve(context.Background(), "Eastern")
	require.NoError(t, err)
	require.Equal(t, 1, inner.calls)

	// A fresh memory tier reads through to the store.
	metrics := observability.NewMetricsForTesting()
	second := NewCachedResolver(inner, store, 10, metrics, discardLogger())
	got, err := second.Resolve(context.Background(), "Eastern")
	require.NoError(t, err)

	assert.Equal(t, "Eastern", got.Name)
	assert.Equal(t, 1, inner.calls)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.RegionCache.WithLabelValues("disk", "hit")), 0)
}

// --- LRU cache unit tests ---

func region(name string) domain.Region {
	return domain.Region{Name: name}
}

func TestLRUCache_BasicGetPut(t *testing.T) {
	c := newLRUCache(3)

	c.put("a", region("A"))
	c.put("b", region("B"))

	result, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "A", result.Name)

	_, ok = c.get("missing")
	assert.False(t, ok)
}

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", region("A"))
	c.put("b", region("B"))
	c.put("c", region("C")) // evicts "a"

	_, ok := c.get("a")
	assert.False(t, ok, "a should have been evicted")
	assert.Equal(t, 2, c.len())

	result, ok := c.get("c")
	assert.True(t, ok)
	assert.Equal(t, "C", result.Name)
}

func TestLRUCache_AccessPromotesEntry(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", region("A"))
	c.put("b", region("B"))
	c.get("a")
	c.put("c", region("C"))

	_, ok := c.get("a")
	assert.True(t, ok, "a was accessed recently, should not be evicted")
	_, ok = c.get("b")
	assert.False(t, ok, "b should have been evicted")
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", region("A1"))
	c.put("a", region("A2"))

	result, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "A2", result.Name)
	assert.Equal(t, 1, c.len())
}

func TestLRUCache_MinimumSize(t *testing.T) {
	c := newLRUCache(0)
	c.put("a", region("A"))

	_, ok := c.get("a")
	assert.True(t, ok)
}
