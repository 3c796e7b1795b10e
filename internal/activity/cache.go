package activity

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

type (
	// compileCache keeps the most recently used compiled scripts, keyed by
	// a hash of their source
	compileCache[T any] struct {
		entries map[string]*list.Element
		order   *list.List
		build   func(src string) (T, error)
		size    int
		mu      sync.Mutex
	}

	cacheEntry[T any] struct {
		value T
		key   string
	}
)

func newCompileCache[T any](
	size int, build func(src string) (T, error),
) *compileCache[T] {
	return &compileCache[T]{
		entries: map[string]*list.Element{},
		order:   list.New(),
		build:   build,
		size:    size,
	}
}

// Get returns the compiled form of src, building it on a miss. Build
// failures are not cached
func (c *compileCache[T]) Get(src string) (T, error) {
	key := hashSource(src)

	c.mu.Lock()
	if elem, ok := c.entries[key]; ok {
		c.order.MoveToFront(elem)
		c.mu.Unlock()
		return elem.Value.(*cacheEntry[T]).value, nil
	}
	c.mu.Unlock()

	value, err := c.build(src)
	if err != nil {
		var zero T
		return zero, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		c.order.MoveToFront(elem)
		return elem.Value.(*cacheEntry[T]).value, nil
	}
	c.entries[key] = c.order.PushFront(&cacheEntry[T]{
		key:   key,
		value: value,
	})
	if c.order.Len() > c.size {
		back := c.order.Back()
		c.order.Remove(back)
		delete(c.entries, back.Value.(*cacheEntry[T]).key)
	}
	return value, nil
}

// Len returns the number of cached entries
func (c *compileCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func hashSource(src string) string {
	h := sha256.Sum256([]byte(src))
	return hex.EncodeToString(h[:])
}
