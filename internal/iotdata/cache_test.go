package iotdata

import (
	"testing"
	"time"
)

func TestCacheSetGet(t *testing.T) {
	c := NewCache(DefaultCacheConfig())

	c.Set("k", "v")
	got, ok := c.Get("k")
	if !ok || got != "v" {
		t.Errorf("Get = %v, %v", got, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Error("missing key should not hit")
	}
}

func TestCacheLRUEviction(t *testing.T) {
	c := NewCache(CacheConfig{Enabled: true, MaxSize: 2, TTL: time.Minute})

	c.Set("a", 1)
	c.Set("b", 2)
	// 访问a使其成为最近使用
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should hit")
	}
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b should be evicted as least recently used")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a should survive")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("c should survive")
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	c := NewCache(CacheConfig{Enabled: true, MaxSize: 10, TTL: time.Minute})
	now := time.Now()
	c.nowFunc = func() time.Time { return now }

	c.Set("k", "v")
	if _, ok := c.Get("k"); !ok {
		t.Fatal("fresh entry should hit")
	}

	// 时间推进越过TTL，读取时惰性剔除
	now = now.Add(time.Minute + time.Second)
	if _, ok := c.Get("k"); ok {
		t.Error("expired entry should miss")
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d after lazy expiry", c.Len())
	}
}

func TestCacheDisableClears(t *testing.T) {
	c := NewCache(DefaultCacheConfig())
	c.Set("k", "v")

	cfg := c.Config()
	cfg.Enabled = false
	c.SetConfig(cfg)

	if c.Len() != 0 {
		t.Errorf("Len = %d after disable", c.Len())
	}
	if _, ok := c.Get("k"); ok {
		t.Error("disabled cache should not hit")
	}

	// 停用期间写入被忽略
	c.Set("k2", "v2")
	if c.Len() != 0 {
		t.Error("disabled cache should not accept writes")
	}
}

func TestCacheShrinkEvicts(t *testing.T) {
	c := NewCache(CacheConfig{Enabled: true, MaxSize: 4, TTL: time.Minute})
	for _, k := range []string{"a", "b", "c", "d"} {
		c.Set(k, k)
	}

	c.SetConfig(CacheConfig{Enabled: true, MaxSize: 2, TTL: time.Minute})
	if c.Len() != 2 {
		t.Errorf("Len = %d after shrink, want 2", c.Len())
	}
	// 留下的是最近使用的两项
	if _, ok := c.Get("c"); !ok {
		t.Error("c should survive shrink")
	}
	if _, ok := c.Get("d"); !ok {
		t.Error("d should survive shrink")
	}
}

func TestCacheUpdateExisting(t *testing.T) {
	c := NewCache(CacheConfig{Enabled: true, MaxSize: 2, TTL: time.Minute})
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 10)

	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
	got, _ := c.Get("a")
	if got != 10 {
		t.Errorf("a = %v, want 10", got)
	}
}
