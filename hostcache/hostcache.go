// Package hostcache caches host-name resolution results. The cache is a
// fixed array scanned linearly; the victim is the entry with the minimum
// resolve time and entries older than the expire time are zeroed before
// lookup. Failures are cached too, to bound repeated resolver load.
package hostcache

import (
	"encoding/binary"
	"net"

	log "github.com/sirupsen/logrus"
)

type entry struct {
	hostName    string
	resolved    bool
	addr        uint32
	resolveTime int64
}

// Cache is a bounded host-name to IPv4 cache with TTL expiry.
type Cache struct {
	entries    []entry
	expireTime int64
	now        func() int64
	resolve    func(hostName string) (uint32, bool)
}

// New creates a cache of the given capacity. expireTime is in
// milliseconds of the same monotonic clock now reports.
func New(capacity int, expireTime int, now func() int64) *Cache {
	return &Cache{
		entries:    make([]entry, capacity),
		expireTime: int64(expireTime),
		now:        now,
		resolve:    resolveIPv4,
	}
}

// Resolve returns the IPv4 address of hostName in host byte order,
// consulting the cache first. A cached failure counts as a miss result
// without invoking the resolver again.
func (c *Cache) Resolve(hostName string) (uint32, bool) {
	if hostName == "" {
		return 0, false
	}

	now := c.now()
	var found *entry
	victim := 0
	victimTime := c.entries[0].resolveTime
	for i := range c.entries {
		cur := &c.entries[i]

		if now-cur.resolveTime >= c.expireTime {
			*cur = entry{}
		}

		if cur.resolveTime < victimTime {
			victim = i
			victimTime = cur.resolveTime
		}

		if cur.hostName == hostName {
			found = cur
			break
		}
	}

	if found == nil {
		found = &c.entries[victim]
		found.hostName = hostName
		found.addr, found.resolved = c.resolve(hostName)
		found.resolveTime = now
	}

	if !found.resolved {
		return 0, false
	}
	return found.addr, true
}

// resolveIPv4 resolves synchronously; the first IPv4 address wins.
func resolveIPv4(hostName string) (uint32, bool) {
	addrs, err := net.LookupIP(hostName)
	if err != nil {
		log.Errorf("Failed to resolve hostname %q: %v", hostName, err)
		return 0, false
	}

	for _, addr := range addrs {
		if v4 := addr.To4(); v4 != nil {
			return binary.BigEndian.Uint32(v4), true
		}
	}
	return 0, false
}
