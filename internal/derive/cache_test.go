package derive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finlens/finlens/internal/domain"
)

func TestCacheRoundTrip(t *testing.T) {
	cache := NewCache(time.Minute)

	series := &domain.DerivedSeries{
		Values: map[string]domain.Series{
			domain.MetricRevenue: {{Year: 2019, Value: 100}, {Year: 2020, Value: 80}},
		},
		Growth: map[string]domain.Series{
			domain.MetricRevenue: {{Year: 2020, Value: -20}},
		},
		CostRatio: domain.Series{{Year: 2019, Value: 65}},
		TopShareholders: map[int][]domain.ShareholderEntry{
			2019: {{Name: "Alpha Holdings", Percentage: 12.5}},
		},
	}

	key := Key("ds-1", domain.FilterSelection{Years: []int{2019, 2020}}, 1.0)
	cache.Put(key, series)

	got, ok := cache.Get(key)
	require.True(t, ok)
	assert.Equal(t, series, got)

	// Mutating the returned copy must not affect later reads.
	got.CostRatio[0].Value = 0
	again, ok := cache.Get(key)
	require.True(t, ok)
	assert.InDelta(t, 65.0, again.CostRatio[0].Value, 1e-9)
}

func TestCacheExpiry(t *testing.T) {
	cache := NewCache(time.Minute)

	current := time.Now()
	cache.now = func() time.Time { return current }

	key := Key("ds-1", domain.FilterSelection{}, 1.0)
	cache.Put(key, &domain.DerivedSeries{})

	_, ok := cache.Get(key)
	assert.True(t, ok)

	current = current.Add(2 * time.Minute)
	_, ok = cache.Get(key)
	assert.False(t, ok)
}

func TestCacheKeyIgnoresYearOrder(t *testing.T) {
	a := Key("ds-1", domain.FilterSelection{Years: []int{2020, 2019}, Currency: "USD"}, 0.005)
	b := Key("ds-1", domain.FilterSelection{Years: []int{2019, 2020}, Currency: "USD"}, 0.005)
	assert.Equal(t, a, b)

	c := Key("ds-1", domain.FilterSelection{Years: []int{2019, 2020}, Currency: "LKR"}, 1.0)
	assert.NotEqual(t, a, c)
}

func TestCacheInvalidateDataset(t *testing.T) {
	cache := NewCache(time.Minute)

	cache.Put(Key("ds-1", domain.FilterSelection{}, 1.0), &domain.DerivedSeries{})
	cache.Put(Key("ds-1", domain.FilterSelection{Years: []int{2020}}, 1.0), &domain.DerivedSeries{})
	cache.Put(Key("ds-2", domain.FilterSelection{}, 1.0), &domain.DerivedSeries{})
	require.Equal(t, 3, cache.Len())

	cache.InvalidateDataset("ds-1")
	assert.Equal(t, 1, cache.Len())

	_, ok := cache.Get(Key("ds-2", domain.FilterSelection{}, 1.0))
	assert.True(t, ok)
}

func TestCachePurge(t *testing.T) {
	cache := NewCache(time.Minute)

	current := time.Now()
	cache.now = func() time.Time { return current }

	cache.Put(Key("ds-1", domain.FilterSelection{}, 1.0), &domain.DerivedSeries{})
	current = current.Add(2 * time.Minute)
	cache.Put(Key("ds-2", domain.FilterSelection{}, 1.0), &domain.DerivedSeries{})

	removed := cache.Purge()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, cache.Len())
}
