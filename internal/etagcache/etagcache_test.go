package etagcache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	c := New(mr.Addr())
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestPutGet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	key := Key("GET", "https://api.example.com/items?id=1")

	if _, ok := c.Get(ctx, key); ok {
		t.Fatal("unexpected hit on empty cache")
	}

	c.Put(ctx, key, &Entry{ETag: `"abc"`, ContentType: "application/json", Body: []byte(`{"a":1}`)})

	entry, ok := c.Get(ctx, key)
	if !ok {
		t.Fatal("expected hit after Put")
	}
	if entry.ETag != `"abc"` {
		t.Errorf("ETag = %q", entry.ETag)
	}
	if string(entry.Body) != `{"a":1}` {
		t.Errorf("Body = %q", entry.Body)
	}
}

func TestPutWithoutETagIgnored(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	key := Key("GET", "https://api.example.com/x")

	c.Put(ctx, key, &Entry{Body: []byte("body")})
	if _, ok := c.Get(ctx, key); ok {
		t.Error("entry without an ETag must not be cached")
	}
}

func TestKeyDistinguishesRequests(t *testing.T) {
	a := Key("GET", "https://api.example.com/a")
	b := Key("GET", "https://api.example.com/b")
	m := Key("POST", "https://api.example.com/a")
	if a == b || a == m {
		t.Error("keys must differ per method and URL")
	}
}

func TestClear(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	key := Key("GET", "https://api.example.com/x")
	c.Put(ctx, key, &Entry{ETag: `"e"`, Body: []byte("b")})

	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, ok := c.Get(ctx, key); ok {
		t.Error("entry survived Clear")
	}
}

func TestNilCacheIsNoop(t *testing.T) {
	var c *Cache
	ctx := context.Background()
	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("nil cache returned a hit")
	}
	c.Put(ctx, "k", &Entry{ETag: `"e"`})
	if err := c.Clear(ctx); err != nil {
		t.Errorf("Clear() on nil cache = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil cache = %v", err)
	}
}
