package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tinywideclouds/go-notification-dispatch/pkg/dispatch"
	"github.com/tinywideclouds/go-notification-dispatch/pkg/notify"
)

// payloadRecord is the JSON form of a stored payload.
type payloadRecord struct {
	Type          int    `json:"type"`
	AlertMessage  string `json:"alert,omitempty"`
	SoundFileName string `json:"sound,omitempty"`
	BadgeIcon     int    `json:"badge,omitempty"`
}

// payloadSeqKey is shared by every replica so handles never collide in the
// common keyspace.
const payloadSeqKey = "notify:payload:seq"

// PayloadStore keeps push payloads in Redis. Entries expire after ttl so a
// payload whose event was never dispatched does not linger.
type PayloadStore struct {
	cache CacheClient
	ttl   time.Duration
}

func NewPayloadStore(cache CacheClient, ttl time.Duration) *PayloadStore {
	return &PayloadStore{cache: cache, ttl: ttl}
}

func (s *PayloadStore) NextHandle(ctx context.Context) (notify.PushHandle, error) {
	n, err := s.cache.Incr(ctx, payloadSeqKey)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate push handle: %w", err)
	}
	return notify.PushHandle(n), nil
}

func (s *PayloadStore) Put(ctx context.Context, h notify.PushHandle, payload notify.RawPushPayload) error {
	rec := payloadRecord{
		Type:          int(payload.Type),
		AlertMessage:  payload.AlertMessage,
		SoundFileName: payload.SoundFileName,
		BadgeIcon:     payload.BadgeIcon,
	}
	if err := s.cache.Set(ctx, payloadKey(h), rec, s.ttl); err != nil {
		return fmt.Errorf("failed to store push payload %d: %w", h, err)
	}
	return nil
}

func (s *PayloadStore) Get(ctx context.Context, h notify.PushHandle) (notify.RawPushPayload, error) {
	var rec payloadRecord
	if err := s.cache.Get(ctx, payloadKey(h), &rec); err != nil {
		if errors.Is(err, redis.Nil) {
			return notify.RawPushPayload{}, dispatch.ErrPayloadNotFound
		}
		return notify.RawPushPayload{}, fmt.Errorf("failed to load push payload %d: %w", h, err)
	}
	return notify.RawPushPayload{
		Type:          notify.PushType(rec.Type),
		AlertMessage:  rec.AlertMessage,
		SoundFileName: rec.SoundFileName,
		BadgeIcon:     rec.BadgeIcon,
	}, nil
}

func (s *PayloadStore) Delete(ctx context.Context, h notify.PushHandle) error {
	return s.cache.Del(ctx, payloadKey(h))
}

func payloadKey(h notify.PushHandle) string {
	return fmt.Sprintf("notify:payload:%d", h)
}
