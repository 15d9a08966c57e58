// Package cache provides a thread-safe LRU cache for compiled Gondola formulas.
//
// Scanners and servers compile the same handful of formulas over and over.
// The cache avoids re-parsing, re-checking and re-simplifying a formula
// whose source and declarations did not change. Cached expressions are
// shared: callers must not rewrite them, only evaluate them.
//
// # Example
//
//	c := cache.New(1024)
//	key := cache.Key(src, vars)
//	expr, err := c.GetOrCompile(key, compile)
package cache

import (
	"container/list"
	"strings"
	"sync"

	"github.com/sandrolain/gondola/pkg/types"
)

const defaultCapacity = 256

type entry struct {
	key  string
	expr *types.Expression
}

// Cache holds up to a fixed number of compiled expressions and drops the
// one used least recently when full. It is safe for concurrent use.
type Cache struct {
	mu    sync.Mutex
	max   int
	order *list.List // front is the most recently used
	index map[string]*list.Element
	stats Stats
}

// Stats counts cache lookups. Hits plus Misses is the number of Get calls.
type Stats struct {
	Len       int
	Hits      int64
	Misses    int64
	Evictions int64
}

// New returns a cache holding at most capacity expressions, 256 when
// capacity is not positive.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Cache{
		max:   capacity,
		order: list.New(),
		index: make(map[string]*list.Element, capacity),
	}
}

// Key builds the cache key of a formula. The same source compiled
// against different declarations yields a different tree (or none), so
// the declared names and types take part in the key, together with any
// extra discriminators such as custom function names.
func Key(source string, vars *types.Variables, extra ...string) string {
	var b strings.Builder
	b.WriteString(source)
	b.WriteByte(0)
	if vars != nil {
		for _, name := range vars.Names() {
			v, err := vars.Get(name)
			if err != nil {
				continue
			}
			b.WriteString(name)
			b.WriteByte(':')
			b.WriteString(v.Type.String())
			if v.Constant {
				b.WriteString("!")
			}
			b.WriteByte(';')
		}
	}
	for _, e := range extra {
		b.WriteByte(0)
		b.WriteString(e)
	}
	return b.String()
}

// Get returns the expression stored under key and marks it as recently
// used.
func (c *Cache) Get(key string) (*types.Expression, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	c.order.MoveToFront(el)
	return el.Value.(*entry).expr, true
}

// Set stores expr under key, evicting the least recently used entry when
// the cache is full.
func (c *Cache) Set(key string, expr *types.Expression) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		el.Value.(*entry).expr = expr
		c.order.MoveToFront(el)
		return
	}
	for c.order.Len() >= c.max {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.index, oldest.Value.(*entry).key)
		c.stats.Evictions++
	}
	c.index[key] = c.order.PushFront(&entry{key: key, expr: expr})
}

// GetOrCompile returns the cached expression for key or stores the one
// compile builds. Compilation errors are returned and nothing is stored.
// Two goroutines missing the same key at once may both compile; the last
// one stored wins.
func (c *Cache) GetOrCompile(key string, compile func() (*types.Expression, error)) (*types.Expression, error) {
	if expr, ok := c.Get(key); ok {
		return expr, nil
	}
	expr, err := compile()
	if err != nil {
		return nil, err
	}
	c.Set(key, expr)
	return expr, nil
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Cache) Capacity() int {
	return c.max
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.stats
	st.Len = c.order.Len()
	return st
}

// Invalidate drops key. Missing keys are ignored.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		c.order.Remove(el)
		delete(c.index, key)
	}
}

// Clear drops every entry. Counters are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	clear(c.index)
}
