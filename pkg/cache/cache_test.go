package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestMemoryCacheSetGetExpire(t *testing.T) {
	c := NewMemoryCache(10)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("books:popular", "payload", time.Minute)
	if v, ok := c.Get("books:popular"); !ok || v != "payload" {
		t.Fatalf("expected hit, got %q ok=%v", v, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("books:popular"); ok {
		t.Fatalf("expected entry expired")
	}
	if c.Len() != 0 {
		t.Fatalf("expected lazy eviction on read, len=%d", c.Len())
	}
}

func TestMemoryCacheBound(t *testing.T) {
	c := NewMemoryCache(2)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("a", "1", time.Minute)
	now = now.Add(time.Second)
	c.Set("b", "2", time.Minute)
	now = now.Add(time.Second)
	// Touch "a" so "b" becomes the LRU victim.
	c.Get("a")
	now = now.Add(time.Second)
	c.Set("c", "3", time.Minute)

	if c.Len() != 2 {
		t.Fatalf("expected bounded size 2, got %d", c.Len())
	}
	if _, ok := c.Get("b"); ok {
		t.Fatalf("expected LRU entry evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("expected recently used entry kept")
	}
}

func TestMemoryCacheDeletePrefix(t *testing.T) {
	c := NewMemoryCache(10)
	c.Set("recommend:1:abc", "x", time.Minute)
	c.Set("recommend:1:def", "y", time.Minute)
	c.Set("recommend:2:abc", "z", time.Minute)
	c.DeletePrefix("recommend:1:")
	if _, ok := c.Get("recommend:1:abc"); ok {
		t.Fatalf("expected prefix entry deleted")
	}
	if _, ok := c.Get("recommend:2:abc"); !ok {
		t.Fatalf("expected other namespace kept")
	}
}

func TestRedisCacheRoundTrip(t *testing.T) {
	srv := miniredis.RunT(t)
	c := NewRedisCache(srv.Addr(), "", "soniclibrary:test")

	c.Set("books:search:q1", "result", time.Minute)
	if v, ok := c.Get("books:search:q1"); !ok || v != "result" {
		t.Fatalf("expected hit, got %q ok=%v", v, ok)
	}

	srv.FastForward(2 * time.Minute)
	if _, ok := c.Get("books:search:q1"); ok {
		t.Fatalf("expected TTL expiry")
	}
}

func TestRedisCacheDeletePrefix(t *testing.T) {
	srv := miniredis.RunT(t)
	c := NewRedisCache(srv.Addr(), "", "soniclibrary:test")

	c.Set("recommend:1:a", "x", time.Minute)
	c.Set("recommend:1:b", "y", time.Minute)
	c.Set("books:popular", "z", time.Minute)

	c.DeletePrefix("recommend:1:")
	if _, ok := c.Get("recommend:1:a"); ok {
		t.Fatalf("expected recommend entries dropped")
	}
	if _, ok := c.Get("books:popular"); !ok {
		t.Fatalf("expected unrelated entry kept")
	}
}
