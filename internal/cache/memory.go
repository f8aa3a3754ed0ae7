package cache

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

// ErrQuotaExceeded is returned by storages that are full.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// MemoryStorage is an in-process Storage bounded by entry count.
type MemoryStorage struct {
	mu         sync.RWMutex
	items      map[string]string
	maxEntries int
}

// NewMemoryStorage creates a MemoryStorage holding at most maxEntries
// items. Zero or less means unbounded.
func NewMemoryStorage(maxEntries int) *MemoryStorage {
	return &MemoryStorage{items: make(map[string]string), maxEntries: maxEntries}
}

func (m *MemoryStorage) GetItem(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok, nil
}

func (m *MemoryStorage) SetItem(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.items[key]; !exists && m.maxEntries > 0 && len(m.items) >= m.maxEntries {
		return ErrQuotaExceeded
	}
	m.items[key] = value
	return nil
}

func (m *MemoryStorage) RemoveItem(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

// Keys lists the keys starting with prefix in sorted order.
func (m *MemoryStorage) Keys(prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.items {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Len returns the number of stored items.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
