package expressions

import "sync"

// maxCachedPrograms bounds each engine's compile cache. Queries arrive from
// HTTP and MCP clients, so the key space is unbounded.
const maxCachedPrograms = 256

// programCache memoizes compiled programs by expression text.
type programCache[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

func newProgramCache[T any]() *programCache[T] {
	return &programCache[T]{items: make(map[string]T)}
}

// getOrCompile returns the cached program for expression or compiles it.
// When full, the cache is dropped wholesale before inserting.
func (c *programCache[T]) getOrCompile(expression string, compile func(string) (T, error)) (T, error) {
	c.mu.RLock()
	if prg, ok := c.items[expression]; ok {
		c.mu.RUnlock()
		return prg, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if prg, ok := c.items[expression]; ok {
		return prg, nil
	}
	prg, err := compile(expression)
	if err != nil {
		return prg, err
	}
	if len(c.items) >= maxCachedPrograms {
		c.items = make(map[string]T)
	}
	c.items[expression] = prg
	return prg, nil
}

func (c *programCache[T]) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
