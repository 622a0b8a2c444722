package cached

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

// Backend holds encoded cache entries and the tombstones left by invalidations.
type Backend interface {
	// Get returns the entry under key. Missing keys and tombstones are misses, not errors.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Fill stores value unless key already holds an entry or a live tombstone, and reports
	// whether it did.
	Fill(ctx context.Context, key string, value []byte) (bool, error)
	// Invalidate replaces whatever key holds with a tombstone that refuses fills for ttl.
	Invalidate(ctx context.Context, key string, ttl time.Duration) error
}

type lruEntry struct {
	value     []byte
	tombstone bool
	expires   time.Time // zero never expires
}

// LRU is a process-local Backend with a bounded number of entries. Tombstones count
// against the bound.
type LRU struct {
	mu    sync.Mutex
	cache *lru.Cache[string, lruEntry]
	ttl   time.Duration
	now   func() time.Time
}

// NewLRU creates a local cache of at most size entries. A ttl <= 0 keeps entries until
// they are evicted or invalidated.
func NewLRU(size int, ttl time.Duration) *LRU {
	if size <= 0 {
		size = DefaultSize
	}
	cache, _ := lru.New[string, lruEntry](size) // only fails for size <= 0
	return &LRU{cache: cache, ttl: ttl, now: time.Now}
}

func (l *LRU) Get(_ context.Context, key string) ([]byte, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.live(key, l.cache.Get)
	if !ok || e.tombstone {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (l *LRU) Fill(_ context.Context, key string, value []byte) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.live(key, l.cache.Peek); ok {
		return false, nil
	}
	l.cache.Add(key, lruEntry{value: value, expires: l.deadline(l.ttl)})
	return true, nil
}

func (l *LRU) Invalidate(_ context.Context, key string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache.Add(key, lruEntry{tombstone: true, expires: l.deadline(ttl)})
	return nil
}

// Len returns the number of cached entries and tombstones.
func (l *LRU) Len() int { return l.cache.Len() }

// live looks key up with get and removes it when it has expired. l.mu must be held.
func (l *LRU) live(key string, get func(string) (lruEntry, bool)) (lruEntry, bool) {
	e, ok := get(key)
	if !ok {
		return lruEntry{}, false
	}
	if !e.expires.IsZero() && !l.now().Before(e.expires) {
		l.cache.Remove(key)
		return lruEntry{}, false
	}
	return e, true
}

func (l *LRU) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return l.now().Add(ttl)
}

// redisClient is the subset of go-redis commands the Redis backend uses.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// tombstone is stored under invalidated Redis keys. Encoded rows are JSON arrays, so it
// never collides with an entry.
var tombstone = []byte("\x00tombstone")

// Redis is a Backend shared between processes.
type Redis struct {
	client redisClient
	ttl    time.Duration
}

// NewRedis creates a Redis backend. Entries expire after ttl; 0 keeps them until they are
// invalidated.
func NewRedis(client redis.Cmdable, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// DialRedis connects to the Redis server at addr.
func DialRedis(addr string, ttl time.Duration) *Redis {
	return NewRedis(redis.NewClient(&redis.Options{Addr: addr}), ttl)
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if bytes.Equal(v, tombstone) {
		return nil, false, nil
	}
	return v, true, nil
}

func (r *Redis) Fill(ctx context.Context, key string, value []byte) (bool, error) {
	return r.client.SetNX(ctx, key, value, r.ttl).Result()
}

func (r *Redis) Invalidate(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Set(ctx, key, tombstone, ttl).Err()
}
