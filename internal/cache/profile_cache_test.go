package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lorelink/internal/models"
)

// fakeRedis implements only the commands the profile cache issues.
type fakeRedis struct {
	redis.Cmdable
	data map[string]string
	ttls map[string]time.Duration
	err  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx, "get", key)
	switch v, ok := f.data[key]; {
	case f.err != nil:
		cmd.SetErr(f.err)
	case !ok:
		cmd.SetErr(redis.Nil)
	default:
		cmd.SetVal(v)
	}
	return cmd
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx, "set", key, value)
	f.data[key] = string(value.([]byte))
	f.ttls[key] = expiration
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "del")
	for _, k := range keys {
		delete(f.data, k)
	}
	cmd.SetVal(int64(len(keys)))
	return cmd
}

func TestRedisProfileCache(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	c := NewRedisProfileCache(fake, time.Minute)

	t.Run("miss", func(t *testing.T) {
		p, err := c.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Nil(t, p)
	})

	t.Run("set then get keeps tombstone", func(t *testing.T) {
		deletedAt := time.Now().UTC()
		require.NoError(t, c.Set(ctx, &models.Profile{UserID: "u1", Handle: "alice", DeletedAt: &deletedAt}))
		assert.Equal(t, time.Minute, fake.ttls["lorelink:profile:u1"])

		p, err := c.Get(ctx, "u1")
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, "alice", p.Handle)
		assert.True(t, p.Tombstoned())
	})

	t.Run("delete invalidates", func(t *testing.T) {
		require.NoError(t, c.Delete(ctx, "u1"))
		p, err := c.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Nil(t, p)
	})

	t.Run("transport failure is a network error", func(t *testing.T) {
		fake.err = errors.New("connection refused")
		defer func() { fake.err = nil }()

		_, err := c.Get(ctx, "u1")
		assert.True(t, errors.Is(err, models.ErrNetwork))
	})
}
