package store

import (
	"container/list"
	"sync"
)

// sourceCache is an in-memory id → record map bounded to a configured size,
// evicting the least-recently-accessed entry when full. It is a read
// optimization only: the sqlite store remains the source of truth and every
// entry holds a private copy of the record.
type sourceCache struct {
	mu    sync.Mutex
	limit int
	order *list.List               // front = most recently accessed
	items map[string]*list.Element // id → element whose Value is *Source
}

func newSourceCache(limit int) *sourceCache {
	return &sourceCache{
		limit: limit,
		order: list.New(),
		items: make(map[string]*list.Element),
	}
}

func (c *sourceCache) get(id string) (*Source, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[id]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	src := el.Value.(*Source).clone()
	return src, true
}

func (c *sourceCache) put(src *Source) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[src.ID]; ok {
		el.Value = src.clone()
		c.order.MoveToFront(el)
		return
	}

	c.items[src.ID] = c.order.PushFront(src.clone())
	for c.order.Len() > c.limit {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*Source).ID)
	}
}

func (c *sourceCache) remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[id]; ok {
		c.order.Remove(el)
		delete(c.items, id)
	}
}

func (c *sourceCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
