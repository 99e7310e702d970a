// Package memory provides process-local storage backends.
package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tinywideclouds/go-notification-dispatch/pkg/dispatch"
	"github.com/tinywideclouds/go-notification-dispatch/pkg/notify"
)

// PayloadStore keeps push payloads in a map. It is the default when Redis
// is disabled.
type PayloadStore struct {
	next     atomic.Int64
	mu       sync.Mutex
	payloads map[notify.PushHandle]notify.RawPushPayload
}

func NewPayloadStore() *PayloadStore {
	return &PayloadStore{payloads: make(map[notify.PushHandle]notify.RawPushPayload)}
}

func (s *PayloadStore) NextHandle(context.Context) (notify.PushHandle, error) {
	return notify.PushHandle(s.next.Add(1)), nil
}

func (s *PayloadStore) Put(_ context.Context, h notify.PushHandle, payload notify.RawPushPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads[h] = payload
	return nil
}

func (s *PayloadStore) Get(_ context.Context, h notify.PushHandle) (notify.RawPushPayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payloads[h]
	if !ok {
		return notify.RawPushPayload{}, dispatch.ErrPayloadNotFound
	}
	return p, nil
}

func (s *PayloadStore) Delete(_ context.Context, h notify.PushHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.payloads, h)
	return nil
}

func (s *PayloadStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloads)
}
