package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMemoryCacheSize = 1_024

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// MemoryRuleCache is a process-local LRU with per-entry expiry.
type MemoryRuleCache struct {
	cache *lru.Cache[string, memoryItem]
	now   func() time.Time
}

func NewMemoryRuleCache(size int) (*MemoryRuleCache, error) {
	if size < 1 {
		size = defaultMemoryCacheSize
	}
	c, err := lru.New[string, memoryItem](size)
	if err != nil {
		return nil, err
	}
	return &MemoryRuleCache{cache: c, now: time.Now}, nil
}

func (m *MemoryRuleCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	cached, ok := m.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	if m.now().After(cached.expiresAt) {
		m.cache.Remove(key)
		return nil, false, nil
	}
	return cached.value, true, nil
}

func (m *MemoryRuleCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.cache.Add(key, memoryItem{value: value, expiresAt: m.now().Add(ttl)})
	return nil
}

func (m *MemoryRuleCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		m.cache.Remove(key)
	}
	return nil
}
