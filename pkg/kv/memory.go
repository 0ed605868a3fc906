package kv

import (
	"context"
	"iter"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-memory Store backed by a map. It is safe for concurrent
// use and intended for tests or runs that do not need persistence.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
	opts *Options
}

// NewMemory creates a new in-memory Store. Pass nil for default options.
func NewMemory(opts *Options) *Memory {
	return &Memory{
		data: make(map[string][]byte),
		opts: opts,
	}
}

func (m *Memory) Get(_ context.Context, key Key) ([]byte, error) {
	k := string(m.opts.encode(key))
	m.mu.RLock()
	v, ok := m.data[k]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	// Copy so callers cannot mutate stored bytes.
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (m *Memory) Set(_ context.Context, key Key, value []byte) error {
	k := string(m.opts.encode(key))
	cp := make([]byte, len(value))
	copy(cp, value)
	m.mu.Lock()
	m.data[k] = cp
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key Key) error {
	k := string(m.opts.encode(key))
	m.mu.Lock()
	delete(m.data, k)
	m.mu.Unlock()
	return nil
}

func (m *Memory) List(_ context.Context, prefix Key) iter.Seq2[Entry, error] {
	// Append separator so prefix "a:b" does not match key "a:bc".
	var p string
	if len(prefix) > 0 {
		p = string(m.opts.encode(prefix)) + string(m.opts.sep())
	}

	// Snapshot matching entries under the read lock so iteration does not
	// race with writers.
	m.mu.RLock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if p == "" || strings.HasPrefix(k, p) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		v := m.data[k]
		cp := make([]byte, len(v))
		copy(cp, v)
		entries = append(entries, Entry{Key: m.opts.decode([]byte(k)), Value: cp})
	}
	m.mu.RUnlock()

	return func(yield func(Entry, error) bool) {
		for _, e := range entries {
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.data = make(map[string][]byte)
	m.mu.Unlock()
	return nil
}
