package client

import (
	"strings"
	"sync"
	"time"
)

type cacheEntry struct {
	value   interface{}
	expires time.Time
}

// ttlCache is a small in-process read cache keyed by "<caregiver>|<kind>|<params>".
type ttlCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

func newTTLCache(ttl time.Duration, now func() time.Time) *ttlCache {
	return &ttlCache{ttl: ttl, now: now, entries: make(map[string]cacheEntry)}
}

func cacheKey(caregiverID, kind, params string) string {
	return caregiverID + "|" + kind + "|" + params
}

func (c *ttlCache) get(key string) (interface{}, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

func (c *ttlCache) put(key string, value interface{}) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, expires: c.now().Add(c.ttl)}
}

// invalidate drops every entry of the caregiver whose kind is one of kinds.
func (c *ttlCache) invalidate(caregiverID string, kinds ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		for _, kind := range kinds {
			if strings.HasPrefix(key, caregiverID+"|"+kind+"|") {
				delete(c.entries, key)
				break
			}
		}
	}
}
