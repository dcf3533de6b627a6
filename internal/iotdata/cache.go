package iotdata

import (
	"container/list"
	"sync"
	"time"

	"github.com/qverse/iotbridge/internal/logger"
)

// CacheConfig 解析结果缓存配置
type CacheConfig struct {
	Enabled bool          `json:"enabled"`
	MaxSize int           `json:"max_size"`
	TTL     time.Duration `json:"ttl"`
}

// DefaultCacheConfig 返回默认缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled: true,
		MaxSize: 100,
		TTL:     5 * time.Minute,
	}
}

type cacheEntry struct {
	key       string
	value     interface{}
	expiresAt time.Time
}

// Cache 带TTL的LRU缓存
// 读取时惰性剔除过期项；容量满时淘汰最久未使用项。
type Cache struct {
	mu      sync.Mutex
	cfg     CacheConfig
	order   *list.List // 头部为最近使用
	entries map[string]*list.Element
	log     *logger.Logger
	nowFunc func() time.Time
}

// NewCache 创建缓存
func NewCache(cfg CacheConfig) *Cache {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultCacheConfig().MaxSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCacheConfig().TTL
	}
	return &Cache{
		cfg:     cfg,
		order:   list.New(),
		entries: make(map[string]*list.Element),
		log:     logger.WithModule("iotdata.cache"),
		nowFunc: time.Now,
	}
}

// Get 读取缓存值
// 命中时刷新使用顺序；过期项在此处剔除。
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cfg.Enabled {
		return nil, false
	}
	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)
	if c.nowFunc().After(entry.expiresAt) {
		c.removeElement(elem)
		c.log.Debug("Cache entry expired", "key", key)
		return nil, false
	}
	c.order.MoveToFront(elem)
	return entry.value, true
}

// Set 写入缓存值，容量满时淘汰最久未使用项
func (c *Cache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cfg.Enabled {
		return
	}

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.value = value
		entry.expiresAt = c.nowFunc().Add(c.cfg.TTL)
		c.order.MoveToFront(elem)
		return
	}

	for len(c.entries) >= c.cfg.MaxSize {
		c.evictOldest()
	}

	entry := &cacheEntry{
		key:       key,
		value:     value,
		expiresAt: c.nowFunc().Add(c.cfg.TTL),
	}
	c.entries[key] = c.order.PushFront(entry)
}

// Delete 删除指定键
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		c.removeElement(elem)
	}
}

// Clear 清空缓存
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

// Len 当前缓存条目数
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Config 返回当前缓存配置
func (c *Cache) Config() CacheConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// SetConfig 更新缓存配置
// 停用时清空全部条目；缩容时立即淘汰超出部分。
func (c *Cache) SetConfig(cfg CacheConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cfg.MaxSize <= 0 {
		cfg.MaxSize = c.cfg.MaxSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = c.cfg.TTL
	}
	c.cfg = cfg

	if !cfg.Enabled {
		c.clearLocked()
		c.log.Info("Cache disabled, entries cleared")
		return
	}
	for len(c.entries) > cfg.MaxSize {
		c.evictOldest()
	}
}

func (c *Cache) evictOldest() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}
	entry := oldest.Value.(*cacheEntry)
	c.removeElement(oldest)
	c.log.Debug("Cache entry evicted", "key", entry.key)
}

func (c *Cache) removeElement(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	c.order.Remove(elem)
	delete(c.entries, entry.key)
}

func (c *Cache) clearLocked() {
	c.order.Init()
	c.entries = make(map[string]*list.Element)
}
