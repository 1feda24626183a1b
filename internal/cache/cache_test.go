package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualTime struct {
	mu  sync.Mutex
	now time.Time
}

func (m *manualTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *manualTime) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

func TestTTLCacheExpires(t *testing.T) {
	clk := &manualTime{now: time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC)}
	c := newTTLCache[string, int](clk.Now)

	c.Set("a", 1, time.Second)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	clk.Advance(time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestTTLCacheWithoutTTLPersists(t *testing.T) {
	clk := &manualTime{now: time.Now()}
	c := newTTLCache[string, string](clk.Now)

	c.Set("k", "v", 0)
	clk.Advance(24 * time.Hour)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	c.Delete("k")
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestTTLCacheSweepsExpiredOnSet(t *testing.T) {
	clk := &manualTime{now: time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC)}
	c := newTTLCache[int, int](clk.Now)

	for i := 0; i < 100; i++ {
		c.Set(i, i, time.Second)
	}
	c.Set(-1, -1, 0)
	assert.Equal(t, 101, c.Len())

	clk.Advance(sweepInterval)
	c.Set(1000, 1000, time.Hour)
	assert.Equal(t, 2, c.Len())

	v, ok := c.Get(-1)
	require.True(t, ok)
	assert.Equal(t, -1, v)
}

func TestTTLCacheConcurrentAccess(t *testing.T) {
	c := NewTTLCache[int, int]()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Set(i%4, i, time.Minute)
			c.Get(i % 4)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 4, c.Len())
}

func TestEntitlementCache(t *testing.T) {
	assert.Nil(t, NewEntitlementCache(0))
	assert.Nil(t, NewEntitlementCache(-time.Second))

	c := NewEntitlementCache(time.Minute)
	limit := int64(5)

	_, ok := c.Get("t1")
	assert.False(t, ok)

	c.Set(" t1 ", EntitlementSnapshot{Plan: "starter", Active: true, MonthlyCap: &limit})
	snap, ok := c.Get("t1")
	require.True(t, ok)
	assert.Equal(t, "starter", snap.Plan)
	require.NotNil(t, snap.MonthlyCap)
	assert.EqualValues(t, 5, *snap.MonthlyCap)

	c.Invalidate("t1")
	_, ok = c.Get("t1")
	assert.False(t, ok)

	c.Set("", EntitlementSnapshot{Active: true})
	_, ok = c.Get("")
	assert.False(t, ok)
}
