// Package etagcache caches response bodies with their ETags in Redis so
// repeat GETs can be made conditional. A 304 Not Modified then resolves to
// the cached body without re-downloading it; the request pipeline's default
// status predicate already treats 304 as success for exactly this flow.
//
// The cache is optional: enable it by setting UPCALL_REDIS_ADDR.
package etagcache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL bounds staleness; a matching ETag refreshes the entry.
	DefaultTTL = 24 * time.Hour

	keyPrefix = "upcall:etag:"
)

// Entry is one cached response.
type Entry struct {
	ETag        string `json:"etag"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
}

// Cache reads and writes entries in Redis. A nil *Cache is a no-op, so
// callers can thread it through unconditionally.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New connects a cache to the given Redis address.
func New(addr string) *Cache {
	return &Cache{
		rdb: redis.NewClient(&redis.Options{Addr: addr}),
		ttl: DefaultTTL,
	}
}

// FromEnv returns a cache configured from UPCALL_REDIS_ADDR, or nil when
// the variable is unset.
func FromEnv() *Cache {
	addr := strings.TrimSpace(os.Getenv("UPCALL_REDIS_ADDR"))
	if addr == "" {
		return nil
	}
	return New(addr)
}

// Key derives the cache key for a request line.
func Key(method, url string) string {
	sum := sha1.Sum([]byte(method + " " + url))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Get loads the entry for key. Returns false on miss or any Redis error;
// the cache never fails a request.
func (c *Cache) Get(ctx context.Context, key string) (*Entry, bool) {
	if c == nil {
		return nil, false
	}
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false
	}
	return &e, true
}

// Put stores an entry. Errors are dropped for the same reason as in Get.
func (c *Cache) Put(ctx context.Context, key string, e *Entry) {
	if c == nil || e == nil || e.ETag == "" {
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, key, data, c.ttl).Err()
}

// Clear removes every cached entry.
func (c *Cache) Clear(ctx context.Context) error {
	if c == nil {
		return nil
	}
	iter := c.rdb.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}
