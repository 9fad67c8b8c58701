package cache

import (
	"sync"
	"time"
)

// Item элемент кэша
type Item struct {
	Value      interface{}
	Expiration int64
}

// IsExpired проверяет, истек ли срок жизни элемента
func (i *Item) IsExpired() bool {
	if i.Expiration == 0 {
		return false
	}
	return time.Now().UnixNano() > i.Expiration
}

// Cache in-memory кэш с TTL и фоновой очисткой
type Cache struct {
	items             map[string]*Item
	mu                sync.RWMutex
	defaultExpiration time.Duration
	cleanupInterval   time.Duration
	stopCleanup       chan struct{}
	maxItems          int
}

// Config конфигурация кэша
type Config struct {
	DefaultExpiration time.Duration
	CleanupInterval   time.Duration
	MaxItems          int
}

// New создает новый кэш
func New(config Config) *Cache {
	if config.DefaultExpiration == 0 {
		config.DefaultExpiration = 5 * time.Minute
	}
	if config.CleanupInterval == 0 {
		config.CleanupInterval = 10 * time.Minute
	}
	if config.MaxItems == 0 {
		config.MaxItems = 10000
	}

	c := &Cache{
		items:             make(map[string]*Item),
		defaultExpiration: config.DefaultExpiration,
		cleanupInterval:   config.CleanupInterval,
		stopCleanup:       make(chan struct{}),
		maxItems:          config.MaxItems,
	}

	go c.cleanupLoop()

	return c
}

// Set добавляет элемент с TTL по умолчанию
func (c *Cache) Set(key string, value interface{}) {
	var expiration int64
	if c.defaultExpiration > 0 {
		expiration = time.Now().Add(c.defaultExpiration).UnixNano()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.items) >= c.maxItems {
		c.evictOne()
	}

	c.items[key] = &Item{
		Value:      value,
		Expiration: expiration,
	}
}

// Get получает элемент из кэша
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	item, found := c.items[key]
	c.mu.RUnlock()

	if !found {
		return nil, false
	}

	if item.IsExpired() {
		c.Delete(key)
		return nil, false
	}

	return item.Value, true
}

// Delete удаляет элемент из кэша
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Clear очищает кэш
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*Item)
}

// Count возвращает количество элементов в кэше
func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stop останавливает фоновую очистку
func (c *Cache) Stop() {
	close(c.stopCleanup)
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCleanup:
			return
		case <-ticker.C:
			c.deleteExpired()
		}
	}
}

func (c *Cache) deleteExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, item := range c.items {
		if item.IsExpired() {
			delete(c.items, key)
		}
	}
}

func (c *Cache) evictOne() {
	// Простая стратегия: удаляем первый найденный просроченный
	// или любой элемент если просроченных нет
	var keyToDelete string

	for key, item := range c.items {
		if item.IsExpired() {
			keyToDelete = key
			break
		}
		if keyToDelete == "" {
			keyToDelete = key
		}
	}

	if keyToDelete != "" {
		delete(c.items, keyToDelete)
	}
}
