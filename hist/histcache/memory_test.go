package histcache

import (
	"testing"

	"github.com/vigilab/vigil/vos"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCachePutGet(t *testing.T) {
	mc := NewMemoryCache(3600)

	mc.Put(1, vos.HPoint{Ts: 100, Value: 1.0})
	mc.Put(1, vos.HPoint{Ts: 110, Value: 2.0})
	mc.Put(1, vos.HPoint{Ts: 120, Value: 3.0})

	points := mc.Get(1, 110)
	require.Len(t, points, 2)
	// newest first
	assert.Equal(t, vos.HPoint{Ts: 120, Value: 3.0}, points[0])
	assert.Equal(t, vos.HPoint{Ts: 110, Value: 2.0}, points[1])

	assert.Empty(t, mc.Get(1, 121))
	assert.Empty(t, mc.Get(2, 0))
}

func TestMemoryCacheLast(t *testing.T) {
	mc := NewMemoryCache(3600)

	_, ok := mc.Last(1, 0)
	assert.False(t, ok)

	mc.Put(1, vos.HPoint{Ts: 100, Value: 1.0})
	mc.Put(1, vos.HPoint{Ts: 110, Value: 2.0})

	p, ok := mc.Last(1, 0)
	require.True(t, ok)
	assert.Equal(t, vos.HPoint{Ts: 110, Value: 2.0}, p)

	p, ok = mc.Last(1, 1)
	require.True(t, ok)
	assert.Equal(t, vos.HPoint{Ts: 100, Value: 1.0}, p)

	_, ok = mc.Last(1, 2)
	assert.False(t, ok)
}

func TestMemoryCacheDropsDuplicatesAndOld(t *testing.T) {
	mc := NewMemoryCache(3600)

	mc.Put(1, vos.HPoint{Ts: 100, Value: 1.0})
	mc.Put(1, vos.HPoint{Ts: 100, Value: 9.0}) // duplicate timestamp
	mc.Put(1, vos.HPoint{Ts: 90, Value: 9.0})  // older than the newest

	points := mc.Get(1, 0)
	require.Len(t, points, 1)
	assert.Equal(t, 1.0, points[0].Value)
}

func TestMemoryCacheRetention(t *testing.T) {
	mc := NewMemoryCache(60)

	mc.Put(1, vos.HPoint{Ts: 100, Value: 1.0})
	mc.Put(1, vos.HPoint{Ts: 200, Value: 2.0})

	// 100 < 200-60, pushed out by the retention window
	points := mc.Get(1, 0)
	require.Len(t, points, 1)
	assert.Equal(t, int64(200), points[0].Ts)
}

func TestParseMember(t *testing.T) {
	p, ok := parseMember("1700000000:3.5")
	require.True(t, ok)
	assert.Equal(t, vos.HPoint{Ts: 1700000000, Value: 3.5}, p)

	_, ok = parseMember("garbage")
	assert.False(t, ok)
}
