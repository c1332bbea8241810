package socks5d

import "time"

// lruCache is a bounded, doubly-linked-list-backed approximate-LRU map
// from cache key to a timestamped address list. It is adapted from the
// teacher's dns.Msg-keyed LRU cache to a plain string-keyed one; the
// linked-list bookkeeping (touch/resize/deleteFunc) is unchanged in
// spirit.
type lruCache struct {
	maxItems   int
	items      map[string]*cacheItem
	head, tail *cacheItem
}

type cacheItem struct {
	key        string
	entry      *cacheEntry
	prev, next *cacheItem
}

type cacheEntry struct {
	Addrs   []string // string form so the entry is comparable/copyable cheaply
	Expiry  time.Time
}

func newLRUCache(capacity int) *lruCache {
	head := new(cacheItem)
	tail := new(cacheItem)
	head.next = tail
	tail.prev = head
	return &lruCache{
		maxItems: capacity,
		items:    make(map[string]*cacheItem),
		head:     head,
		tail:     tail,
	}
}

func (c *lruCache) add(key string, entry *cacheEntry) {
	if item := c.touch(key); item != nil {
		item.entry = entry
		return
	}
	item := &cacheItem{
		key:   key,
		entry: entry,
		next:  c.head.next,
		prev:  c.head,
	}
	c.head.next.prev = item
	c.head.next = item
	c.items[key] = item
	c.resize()
}

// touch loads an item and moves it to the top of the list (most
// recently used), returning nil on a miss.
func (c *lruCache) touch(key string) *cacheItem {
	item := c.items[key]
	if item == nil {
		return nil
	}
	item.prev.next = item.next
	item.next.prev = item.prev
	item.next = c.head.next
	item.prev = c.head
	c.head.next.prev = item
	c.head.next = item
	return item
}

func (c *lruCache) get(key string) *cacheEntry {
	if item := c.touch(key); item != nil {
		return item.entry
	}
	return nil
}

func (c *lruCache) delete(key string) {
	item := c.items[key]
	if item == nil {
		return
	}
	item.prev.next = item.next
	item.next.prev = item.prev
	delete(c.items, key)
}

// resize shrinks the cache down to maxItems by evicting from the tail
// (least recently used). A non-positive maxItems means no limit.
func (c *lruCache) resize() {
	if c.maxItems <= 0 {
		return
	}
	drop := len(c.items) - c.maxItems
	for i := 0; i < drop; i++ {
		item := c.tail.prev
		if item == c.head {
			break
		}
		item.prev.next = c.tail
		c.tail.prev = item.prev
		delete(c.items, item.key)
	}
}

func (c *lruCache) size() int {
	return len(c.items)
}

// deleteFunc iterates the cache from most- to least-recently-used and
// removes every item for which f returns true. Used by the periodic
// garbage collector to drop expired entries regardless of access order.
func (c *lruCache) deleteFunc(f func(*cacheEntry) bool) (total, removed int) {
	item := c.head.next
	for item != c.tail {
		next := item.next
		total++
		if f(item.entry) {
			item.prev.next = item.next
			item.next.prev = item.prev
			delete(c.items, item.key)
			removed++
		}
		item = next
	}
	return total, removed
}
