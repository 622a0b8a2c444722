package cached

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis keeps values in a map and records the expiration of the last write.
type fakeRedis struct {
	values  map[string]string
	lastTTL time.Duration
	err     error
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.values[key] = string(value.([]byte))
	f.lastTTL = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if _, ok := f.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = string(value.([]byte))
	f.lastTTL = expiration
	return redis.NewBoolResult(true, nil)
}

func TestRedisBackend(t *testing.T) {
	ctx := context.Background()
	fake := &fakeRedis{values: map[string]string{}}
	r := &Redis{client: fake, ttl: time.Minute}

	_, ok, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "redis.Nil is a miss")

	filled, err := r.Fill(ctx, "k", []byte("v"))
	require.NoError(t, err)
	assert.True(t, filled)
	assert.Equal(t, time.Minute, fake.lastTTL)

	v, ok, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	filled, err = r.Fill(ctx, "k", []byte("other"))
	require.NoError(t, err)
	assert.False(t, filled, "a fill never overwrites an entry")

	require.NoError(t, r.Invalidate(ctx, "k", time.Second))
	assert.Equal(t, time.Second, fake.lastTTL)
	_, ok, err = r.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "a tombstone is a miss")

	filled, err = r.Fill(ctx, "k", []byte("stale"))
	require.NoError(t, err)
	assert.False(t, filled, "a tombstone refuses fills")
}

func TestRedisBackendErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection refused")
	r := &Redis{client: &fakeRedis{values: map[string]string{}, err: boom}}

	_, ok, err := r.Get(ctx, "k")
	assert.ErrorIs(t, err, boom)
	assert.False(t, ok)
	_, err = r.Fill(ctx, "k", []byte("v"))
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, r.Invalidate(ctx, "k", time.Second), boom)
}

// fakeClock is a settable time source.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLRU(size int, ttl time.Duration) (*LRU, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewLRU(size, ttl)
	l.now = clock.now
	return l, clock
}

func TestLRUExpires(t *testing.T) {
	ctx := context.Background()
	l, clock := newTestLRU(0, 10*time.Millisecond)
	_, err := l.Fill(ctx, "k", []byte("v"))
	require.NoError(t, err)

	_, ok, _ := l.Get(ctx, "k")
	assert.True(t, ok)

	clock.advance(10 * time.Millisecond)
	_, ok, _ = l.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, l.Len())
}

func TestLRUTombstoneRefusesFills(t *testing.T) {
	ctx := context.Background()
	l, clock := newTestLRU(4, 0)
	_, err := l.Fill(ctx, "k", []byte("old"))
	require.NoError(t, err)

	filled, err := l.Fill(ctx, "k", []byte("other"))
	require.NoError(t, err)
	assert.False(t, filled, "a fill never overwrites an entry")

	require.NoError(t, l.Invalidate(ctx, "k", time.Second))
	_, ok, _ := l.Get(ctx, "k")
	assert.False(t, ok)

	filled, err = l.Fill(ctx, "k", []byte("old"))
	require.NoError(t, err)
	assert.False(t, filled)

	clock.advance(time.Second)
	filled, err = l.Fill(ctx, "k", []byte("new"))
	require.NoError(t, err)
	assert.True(t, filled)
	v, ok, _ := l.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, []byte("new"), v)
}

func TestConfigValidate(t *testing.T) {
	var c Config
	c.validate()
	assert.Equal(t, "persist:", c.KeyPrefix)
	assert.NotNil(t, c.Logger)
	assert.Equal(t, DefaultTombstone, c.Tombstone)

	c = Config{KeyPrefix: "app:", Tombstone: time.Second}
	c.validate()
	assert.Equal(t, "app:", c.KeyPrefix)
	assert.Equal(t, time.Second, c.Tombstone)
}
