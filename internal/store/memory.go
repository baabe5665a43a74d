package store

import (
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process KV.
type Memory struct {
	mu    sync.RWMutex
	items map[string][]byte
}

var _ KV = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		items: make(map[string][]byte),
	}
}

func (m *Memory) Get(key []byte) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[string(key)]
	if !ok {
		return nil, false, nil
	}
	return cloneBytes(v), true, nil
}

func (m *Memory) Put(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[string(key)] = cloneBytes(value)
	return nil
}

func (m *Memory) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, string(key))
	return nil
}

func (m *Memory) List(prefix []byte) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return listSorted(m.items, prefix), nil
}

func listSorted(items map[string][]byte, prefix []byte) []Entry {
	p := string(prefix)
	keys := make([]string, 0, len(items))
	for k := range items {
		if strings.HasPrefix(k, p) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, Entry{Key: []byte(k), Value: cloneBytes(items[k])})
	}
	return out
}
