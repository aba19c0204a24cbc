package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRU is a size-bounded cache whose entries expire after sitting idle for
// the configured TTL. Every Get renews the entry.
type LRU[T any] struct {
	mu      sync.Mutex
	maxSize int
	idleTTL time.Duration
	items   map[string]*list.Element
	order   *list.List
	onEvict func(key string, value T)
	now     func() time.Time
}

type entry[T any] struct {
	key      string
	value    T
	lastUsed time.Time
}

// Option configures an LRU.
type Option[T any] func(*LRU[T])

// WithOnEvict registers fn to run for every entry that leaves the cache:
// expired, pushed out by size, deleted, replaced or purged. fn runs without
// the cache lock held.
func WithOnEvict[T any](fn func(key string, value T)) Option[T] {
	return func(c *LRU[T]) { c.onEvict = fn }
}

// WithClock replaces time.Now.
func WithClock[T any](now func() time.Time) Option[T] {
	return func(c *LRU[T]) { c.now = now }
}

// NewLRU creates a cache holding at most maxSize entries. A zero idleTTL
// disables expiry.
func NewLRU[T any](maxSize int, idleTTL time.Duration, opts ...Option[T]) *LRU[T] {
	if maxSize <= 0 {
		maxSize = 1
	}
	c := &LRU[T]{
		maxSize: maxSize,
		idleTTL: idleTTL,
		items:   make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *LRU[T]) expired(e *entry[T], now time.Time) bool {
	return c.idleTTL > 0 && now.Sub(e.lastUsed) > c.idleTTL
}

// Get returns the value for key and marks it used.
func (c *LRU[T]) Get(key string) (T, bool) {
	var zero T
	c.mu.Lock()
	elem, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		return zero, false
	}
	e := elem.Value.(*entry[T])
	now := c.now()
	if c.expired(e, now) {
		c.remove(elem)
		c.mu.Unlock()
		c.evicted(e)
		return zero, false
	}
	e.lastUsed = now
	c.order.MoveToFront(elem)
	c.mu.Unlock()
	return e.value, true
}

// Set stores value under key, replacing and evicting any previous value.
func (c *LRU[T]) Set(key string, value T) {
	var gone []*entry[T]

	c.mu.Lock()
	if elem, ok := c.items[key]; ok {
		gone = append(gone, elem.Value.(*entry[T]))
		c.remove(elem)
	}
	c.items[key] = c.order.PushFront(&entry[T]{key: key, value: value, lastUsed: c.now()})
	for c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		gone = append(gone, oldest.Value.(*entry[T]))
		c.remove(oldest)
	}
	c.mu.Unlock()

	for _, e := range gone {
		c.evicted(e)
	}
}

// GetOrCreate returns the cached value for key, or stores and returns the
// result of create. create runs under the cache lock; a create error leaves
// the cache untouched.
func (c *LRU[T]) GetOrCreate(key string, create func() (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	var gone []*entry[T]
	c.mu.Lock()
	if elem, ok := c.items[key]; ok {
		e := elem.Value.(*entry[T])
		e.lastUsed = c.now()
		c.order.MoveToFront(elem)
		c.mu.Unlock()
		return e.value, nil
	}
	v, err := create()
	if err != nil {
		c.mu.Unlock()
		var zero T
		return zero, err
	}
	c.items[key] = c.order.PushFront(&entry[T]{key: key, value: v, lastUsed: c.now()})
	for c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		gone = append(gone, oldest.Value.(*entry[T]))
		c.remove(oldest)
	}
	c.mu.Unlock()

	for _, e := range gone {
		c.evicted(e)
	}
	return v, nil
}

// Delete removes key from the cache.
func (c *LRU[T]) Delete(key string) {
	c.mu.Lock()
	elem, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	e := elem.Value.(*entry[T])
	c.remove(elem)
	c.mu.Unlock()
	c.evicted(e)
}

// CleanExpired removes all idle entries and returns how many were removed.
func (c *LRU[T]) CleanExpired() int {
	var gone []*entry[T]

	c.mu.Lock()
	now := c.now()
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()
		if e := elem.Value.(*entry[T]); c.expired(e, now) {
			gone = append(gone, e)
			c.remove(elem)
		}
		elem = prev
	}
	c.mu.Unlock()

	for _, e := range gone {
		c.evicted(e)
	}
	return len(gone)
}

// Purge evicts every entry.
func (c *LRU[T]) Purge() {
	c.mu.Lock()
	gone := make([]*entry[T], 0, c.order.Len())
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		gone = append(gone, elem.Value.(*entry[T]))
	}
	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.mu.Unlock()

	for _, e := range gone {
		c.evicted(e)
	}
}

// Size returns the current number of entries, expired ones included until
// they are cleaned.
func (c *LRU[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *LRU[T]) remove(elem *list.Element) {
	delete(c.items, elem.Value.(*entry[T]).key)
	c.order.Remove(elem)
}

func (c *LRU[T]) evicted(e *entry[T]) {
	if c.onEvict != nil {
		c.onEvict(e.key, e.value)
	}
}
