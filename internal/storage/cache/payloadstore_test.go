package cache_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-notification-dispatch/internal/storage/cache"
	"github.com/tinywideclouds/go-notification-dispatch/pkg/dispatch"
	"github.com/tinywideclouds/go-notification-dispatch/pkg/notify"
)

// jsonCache mimics RedisClient's JSON round trip in memory.
type jsonCache struct {
	values   map[string][]byte
	counters map[string]int64
}

func newJSONCache() *jsonCache {
	return &jsonCache{values: make(map[string][]byte), counters: make(map[string]int64)}
}

func (c *jsonCache) Get(_ context.Context, key string, dest interface{}) error {
	b, ok := c.values[key]
	if !ok {
		return redis.Nil
	}
	return json.Unmarshal(b, dest)
}

func (c *jsonCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.values[key] = b
	return nil
}

func (c *jsonCache) Del(_ context.Context, key string) error {
	delete(c.values, key)
	return nil
}

func (c *jsonCache) Incr(_ context.Context, key string) (int64, error) {
	c.counters[key]++
	return c.counters[key], nil
}

func TestPayloadStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Stores and releases a payload", func(t *testing.T) {
		store := cache.NewPayloadStore(newJSONCache(), time.Hour)
		payload := notify.RawPushPayload{
			Type:         notify.PushTypeAlert | notify.PushTypeBadge,
			AlertMessage: "Sale!",
			BadgeIcon:    5,
		}

		require.NoError(t, store.Put(ctx, 3, payload))
		got, err := store.Get(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, payload, got)

		require.NoError(t, store.Delete(ctx, 3))
		_, err = store.Get(ctx, 3)
		assert.ErrorIs(t, err, dispatch.ErrPayloadNotFound)
	})

	t.Run("Uses the ttl and key layout", func(t *testing.T) {
		mockCache := new(MockCache)
		store := cache.NewPayloadStore(mockCache, 10*time.Minute)
		mockCache.On("Set", ctx, "notify:payload:9", mock.Anything, 10*time.Minute).Return(nil)

		require.NoError(t, store.Put(ctx, 9, notify.RawPushPayload{}))
		mockCache.AssertExpectations(t)
	})

	t.Run("Replicas sharing redis allocate distinct handles", func(t *testing.T) {
		shared := newJSONCache()
		replicaA := cache.NewPayloadStore(shared, time.Hour)
		replicaB := cache.NewPayloadStore(shared, time.Hour)

		ha, err := replicaA.NextHandle(ctx)
		require.NoError(t, err)
		hb, err := replicaB.NextHandle(ctx)
		require.NoError(t, err)
		assert.NotEqual(t, ha, hb)

		require.NoError(t, replicaA.Put(ctx, ha, notify.RawPushPayload{AlertMessage: "for A"}))
		require.NoError(t, replicaB.Put(ctx, hb, notify.RawPushPayload{AlertMessage: "for B"}))
		require.NoError(t, replicaA.Delete(ctx, ha))

		got, err := replicaB.Get(ctx, hb)
		require.NoError(t, err)
		assert.Equal(t, "for B", got.AlertMessage)
	})

	t.Run("Handle allocation errors are wrapped", func(t *testing.T) {
		mockCache := new(MockCache)
		store := cache.NewPayloadStore(mockCache, time.Minute)
		mockCache.On("Incr", ctx, "notify:payload:seq").Return(int64(0), assert.AnError)

		_, err := store.NextHandle(ctx)
		assert.ErrorIs(t, err, assert.AnError)
	})

	t.Run("Transport errors are not reported as missing", func(t *testing.T) {
		mockCache := new(MockCache)
		store := cache.NewPayloadStore(mockCache, time.Minute)
		mockCache.On("Get", ctx, "notify:payload:4", mock.Anything).Return(assert.AnError)

		_, err := store.Get(ctx, 4)
		require.Error(t, err)
		assert.NotErrorIs(t, err, dispatch.ErrPayloadNotFound)
		assert.ErrorIs(t, err, assert.AnError)
	})
}
