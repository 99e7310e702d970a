// Package cache provides Redis-backed storage: a device lookup cache in
// front of the token store and a push payload store.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tinywideclouds/go-notification-dispatch/pkg/dispatch"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
	"github.com/tinywideclouds/go-platform/pkg/notification/v1"
)

// DeviceCache answers the relay's "where can this user be reached" lookups
// from Redis and falls back to the token store on a miss. Device changes
// go to the store first and then evict the owner's entry.
type DeviceCache struct {
	store  dispatch.TokenStore
	cache  CacheClient
	ttl    time.Duration
	logger *slog.Logger
}

var _ dispatch.TokenStore = (*DeviceCache)(nil)

func NewDeviceCache(store dispatch.TokenStore, cache CacheClient, ttl time.Duration, logger *slog.Logger) *DeviceCache {
	return &DeviceCache{
		store:  store,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With("component", "DeviceCache"),
	}
}

func (c *DeviceCache) Fetch(ctx context.Context, owner urn.URN) (*notification.NotificationRequest, error) {
	key := devicesKey(owner)

	var devices notification.NotificationRequest
	err := c.cache.Get(ctx, key, &devices)
	if err == nil {
		return &devices, nil
	}
	if !errors.Is(err, redis.Nil) {
		c.logger.Warn("Device cache read failed, using token store", "owner", owner.String(), "err", err)
	}

	devicesFromStore, err := c.store.Fetch(ctx, owner)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, devicesFromStore, c.ttl); err != nil {
		c.logger.Warn("Device cache fill failed", "owner", owner.String(), "err", err)
	}
	return devicesFromStore, nil
}

func (c *DeviceCache) RegisterFCM(ctx context.Context, owner urn.URN, token string) error {
	if err := c.store.RegisterFCM(ctx, owner, token); err != nil {
		return err
	}
	c.evict(ctx, owner)
	return nil
}

func (c *DeviceCache) RegisterWeb(ctx context.Context, owner urn.URN, sub notification.WebPushSubscription) error {
	if err := c.store.RegisterWeb(ctx, owner, sub); err != nil {
		return err
	}
	c.evict(ctx, owner)
	return nil
}

func (c *DeviceCache) UnregisterFCM(ctx context.Context, owner urn.URN, token string) error {
	if err := c.store.UnregisterFCM(ctx, owner, token); err != nil {
		return err
	}
	c.evict(ctx, owner)
	return nil
}

func (c *DeviceCache) UnregisterWeb(ctx context.Context, owner urn.URN, endpoint string) error {
	if err := c.store.UnregisterWeb(ctx, owner, endpoint); err != nil {
		return err
	}
	c.evict(ctx, owner)
	return nil
}

// evict drops owner's entry. The store write has already landed, so a
// failure only leaves a stale list until the entry's ttl runs out.
func (c *DeviceCache) evict(ctx context.Context, owner urn.URN) {
	if err := c.cache.Del(ctx, devicesKey(owner)); err != nil {
		c.logger.Warn("Device cache eviction failed", "owner", owner.String(), "ttl", c.ttl, "err", err)
	}
}

func devicesKey(owner urn.URN) string {
	return fmt.Sprintf("notify:devices:%s", owner.String())
}
