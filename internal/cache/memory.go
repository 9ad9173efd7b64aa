package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemoryCache implements Cacher in-process with TTL and LRU eviction.
// Values are stored JSON-encoded so Get behaves exactly like the Redis
// implementation.
type MemoryCache struct {
	items    map[string]*memoryItem
	mu       sync.RWMutex
	maxSize  int
	stopChan chan struct{}
	stopOnce sync.Once
}

type memoryItem struct {
	data       []byte
	expiration time.Time
	accessed   time.Time
}

// NewMemoryCache creates a new memory cache
func NewMemoryCache(maxSize int) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 10000
	}

	mc := &MemoryCache{
		items:    make(map[string]*memoryItem),
		maxSize:  maxSize,
		stopChan: make(chan struct{}),
	}

	go mc.cleanupLoop()

	return mc
}

// Set stores a value with expiration
func (mc *MemoryCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if _, exists := mc.items[key]; !exists && len(mc.items) >= mc.maxSize {
		mc.evictLRU()
	}

	if expiration <= 0 {
		expiration = 24 * time.Hour
	}

	mc.items[key] = &memoryItem{
		data:       data,
		expiration: time.Now().Add(expiration),
		accessed:   time.Now(),
	}
	return nil
}

// Get retrieves a value if present and not expired
func (mc *MemoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	item, exists := mc.items[key]
	if !exists {
		mc.mu.Unlock()
		return ErrMiss
	}
	if time.Now().After(item.expiration) {
		delete(mc.items, key)
		mc.mu.Unlock()
		return ErrMiss
	}
	item.accessed = time.Now()
	data := item.data
	mc.mu.Unlock()

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to decode cache value: %w", err)
	}
	return nil
}

// Delete removes a key
func (mc *MemoryCache) Delete(ctx context.Context, key string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	delete(mc.items, key)
	return nil
}

// HealthCheck always succeeds for the in-process cache
func (mc *MemoryCache) HealthCheck(ctx context.Context) error {
	return nil
}

// Close stops the cleanup loop
func (mc *MemoryCache) Close() error {
	mc.stopOnce.Do(func() {
		close(mc.stopChan)
	})
	return nil
}

// evictLRU removes the least recently accessed item. Caller holds the lock.
func (mc *MemoryCache) evictLRU() {
	var oldestKey string
	var oldestTime time.Time

	for key, item := range mc.items {
		if oldestKey == "" || item.accessed.Before(oldestTime) {
			oldestKey = key
			oldestTime = item.accessed
		}
	}
	if oldestKey != "" {
		delete(mc.items, oldestKey)
	}
}

func (mc *MemoryCache) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-mc.stopChan:
			return
		case <-ticker.C:
			now := time.Now()
			mc.mu.Lock()
			for key, item := range mc.items {
				if now.After(item.expiration) {
					delete(mc.items, key)
				}
			}
			mc.mu.Unlock()
		}
	}
}
