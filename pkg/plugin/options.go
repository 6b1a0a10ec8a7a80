package plugin

import (
	"sort"
	"sync"
)

// Options is a concurrency-safe key/value store shared by the pipe and its
// plugins.
type Options struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewOptions returns options holding a copy of values.
func NewOptions(values map[string]any) *Options {
	o := &Options{values: make(map[string]any, len(values))}
	for k, v := range values {
		o.values[k] = v
	}
	return o
}

// Get returns the value of key, or backup when the key is unset.
func (o *Options) Get(key string, backup any) any {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if v, ok := o.values[key]; ok {
		return v
	}
	return backup
}

// String returns the value of key when it is a string, otherwise backup.
func (o *Options) String(key, backup string) string {
	if s, ok := o.Get(key, nil).(string); ok {
		return s
	}
	return backup
}

// Bool returns the value of key when it is a bool, otherwise backup.
func (o *Options) Bool(key string, backup bool) bool {
	if b, ok := o.Get(key, nil).(bool); ok {
		return b
	}
	return backup
}

// Set stores value under key.
func (o *Options) Set(key string, value any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.values[key] = value
}

// Merge copies every key of values into o, replacing existing keys.
func (o *Options) Merge(values map[string]any) {
	if len(values) == 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for k, v := range values {
		o.values[k] = v
	}
}

// Keys returns the sorted keys.
func (o *Options) Keys() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	keys := make([]string, 0, len(o.values))
	for k := range o.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
