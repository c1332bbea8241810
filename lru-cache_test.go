package socks5d

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLRUCache_AddAndGet(t *testing.T) {
	c := newLRUCache(10)
	c.add("a", &cacheEntry{Addrs: []string{"1.2.3.4:80"}, Expiry: time.Now().Add(time.Minute)})

	got := c.get("a")
	if assert.NotNil(t, got) {
		assert.Equal(t, []string{"1.2.3.4:80"}, got.Addrs)
	}
	assert.Nil(t, c.get("missing"))
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := newLRUCache(2)
	c.add("a", &cacheEntry{Addrs: []string{"a"}})
	c.add("b", &cacheEntry{Addrs: []string{"b"}})
	c.add("c", &cacheEntry{Addrs: []string{"c"}}) // evicts "a", the least recently used

	assert.Nil(t, c.get("a"))
	assert.NotNil(t, c.get("b"))
	assert.NotNil(t, c.get("c"))
	assert.Equal(t, 2, c.size())
}

func TestLRUCache_TouchProtectsFromEviction(t *testing.T) {
	c := newLRUCache(2)
	c.add("a", &cacheEntry{Addrs: []string{"a"}})
	c.add("b", &cacheEntry{Addrs: []string{"b"}})
	c.touch("a") // "a" is now most recently used; "b" becomes the eviction candidate
	c.add("c", &cacheEntry{Addrs: []string{"c"}})

	assert.Nil(t, c.get("b"))
	assert.NotNil(t, c.get("a"))
	assert.NotNil(t, c.get("c"))
}

func TestLRUCache_Delete(t *testing.T) {
	c := newLRUCache(10)
	c.add("a", &cacheEntry{Addrs: []string{"a"}})
	c.delete("a")
	assert.Nil(t, c.get("a"))
	assert.Equal(t, 0, c.size())

	// deleting an absent key is a no-op, not a panic.
	c.delete("absent")
}

func TestLRUCache_ResizeNoLimit(t *testing.T) {
	c := newLRUCache(0)
	for i := 0; i < 50; i++ {
		c.add(fmt.Sprintf("key-%d", i), &cacheEntry{Addrs: []string{"x"}})
	}
	assert.Equal(t, 50, c.size())
}

func TestLRUCache_DeleteFunc(t *testing.T) {
	c := newLRUCache(10)
	now := time.Now()
	c.add("expired", &cacheEntry{Addrs: []string{"x"}, Expiry: now.Add(-time.Second)})
	c.add("fresh", &cacheEntry{Addrs: []string{"y"}, Expiry: now.Add(time.Hour)})

	total, removed := c.deleteFunc(func(e *cacheEntry) bool {
		return now.After(e.Expiry)
	})

	assert.Equal(t, 2, total)
	assert.Equal(t, 1, removed)
	assert.Nil(t, c.get("expired"))
	assert.NotNil(t, c.get("fresh"))
}
