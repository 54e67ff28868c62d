package pipeline

import (
	"sort"
	"sync"
)

// Context is the shared state passed to every stage of a run: an immutable
// configuration value plus a free-form key/value map that stages write for
// later stages to read. Producers and consumers agree on keys out of band.
//
// The engine runs one stage at a time, so stages never race on the map; the
// mutex only protects observers that read it from other goroutines.
type Context struct {
	config interface{}

	mu   sync.RWMutex
	data map[string]interface{}
}

// NewContext returns an empty Context carrying config as its static configuration.
func NewContext(config interface{}) *Context {
	return &Context{config: config, data: make(map[string]interface{})}
}

// Config returns the static configuration the Context was created with.
func (c *Context) Config() interface{} { return c.config }

// Get returns the value stored under key.
func (c *Context) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[key]
	return v, ok
}

// Set stores value under key, replacing any previous value.
func (c *Context) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = make(map[string]interface{})
	}
	c.data[key] = value
}

// Delete removes key.
func (c *Context) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// Keys returns the stored keys in sorted order.
func (c *Context) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.data))
	for k := range c.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// capture copies the listed keys that are present. Returns nil when none are.
func (c *Context) capture(keys []string) map[string]interface{} {
	if len(keys) == 0 {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out map[string]interface{}
	for _, k := range keys {
		v, ok := c.data[k]
		if !ok {
			continue
		}
		if out == nil {
			out = make(map[string]interface{}, len(keys))
		}
		out[k] = v
	}
	return out
}

// restore writes every entry of values into the Context.
func (c *Context) restore(values map[string]interface{}) {
	for k, v := range values {
		c.Set(k, v)
	}
}

// Value returns the value stored under key as a T. The second result is false
// when the key is missing or holds a different type.
func Value[T any](c *Context, key string) (T, bool) {
	var zero T
	v, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

// ConfigAs returns the Context configuration as a T.
func ConfigAs[T any](c *Context) (T, bool) {
	t, ok := c.config.(T)
	return t, ok
}
