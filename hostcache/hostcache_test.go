package hostcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	ms int64
}

func (c *fakeClock) now() int64 { return c.ms }

func newTestCache(capacity int, expire int, clock *fakeClock) (*Cache, *int) {
	c := New(capacity, expire, clock.now)
	calls := new(int)
	c.resolve = func(hostName string) (uint32, bool) {
		*calls++
		switch hostName {
		case "alpha.example":
			return 0x7F000001, true
		case "beta.example":
			return 0x0A000002, true
		default:
			return 0, false
		}
	}
	return c, calls
}

func TestResolveCachesHits(t *testing.T) {
	clock := &fakeClock{ms: 1000}
	c, calls := newTestCache(4, 60000, clock)

	addr, ok := c.Resolve("alpha.example")
	assert.True(t, ok)
	assert.Equal(t, uint32(0x7F000001), addr)

	clock.ms += 100
	_, ok = c.Resolve("alpha.example")
	assert.True(t, ok)
	assert.Equal(t, 1, *calls, "second lookup must hit the cache")
}

func TestResolveCachesFailures(t *testing.T) {
	clock := &fakeClock{ms: 1000}
	c, calls := newTestCache(4, 60000, clock)

	_, ok := c.Resolve("unknown.example")
	assert.False(t, ok)
	_, ok = c.Resolve("unknown.example")
	assert.False(t, ok)
	assert.Equal(t, 1, *calls, "negative result must be cached")
}

func TestResolveExpiry(t *testing.T) {
	clock := &fakeClock{ms: 1000}
	c, calls := newTestCache(4, 500, clock)

	c.Resolve("alpha.example")
	clock.ms += 600
	c.Resolve("alpha.example")
	assert.Equal(t, 2, *calls, "expired entry must be re-resolved")
}

func TestResolveEvictsLeastRecentlyResolved(t *testing.T) {
	clock := &fakeClock{ms: 1000}
	c, calls := newTestCache(1, 60000, clock)

	c.Resolve("alpha.example")
	clock.ms += 10
	c.Resolve("beta.example")
	clock.ms += 10
	c.Resolve("alpha.example")
	assert.Equal(t, 3, *calls, "capacity-1 cache must evict on every new host")
}

func TestResolveEmptyHostName(t *testing.T) {
	clock := &fakeClock{ms: 1000}
	c, calls := newTestCache(2, 60000, clock)

	_, ok := c.Resolve("")
	assert.False(t, ok)
	assert.Equal(t, 0, *calls)
}
