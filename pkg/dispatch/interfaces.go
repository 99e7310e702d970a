// Package dispatch defines the contracts between the notification engine and
// its storage and delivery backends.
package dispatch

import (
	"context"
	"errors"

	"github.com/tinywideclouds/go-notification-dispatch/pkg/notify"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
	"github.com/tinywideclouds/go-platform/pkg/notification/v1"
)

// ErrPayloadNotFound is returned by a PayloadStore for unknown or expired handles.
var ErrPayloadNotFound = errors.New("push payload not found")

// Dispatcher sends notifications to a mobile platform (e.g. FCM, APNs).
// It returns a receipt and the tokens the platform reported as dead.
type Dispatcher interface {
	Dispatch(ctx context.Context, tokens []string, content notification.NotificationContent, data map[string]string) (string, []string, error)
}

// WebDispatcher sends notifications to Web Push (VAPID) subscriptions.
type WebDispatcher interface {
	Dispatch(ctx context.Context, subs []notification.WebPushSubscription, content notification.NotificationContent, data map[string]string) (string, []notification.WebPushSubscription, error)
}

// TokenStore remembers where a user's devices can be reached.
type TokenStore interface {
	RegisterFCM(ctx context.Context, user urn.URN, token string) error
	RegisterWeb(ctx context.Context, user urn.URN, sub notification.WebPushSubscription) error
	UnregisterFCM(ctx context.Context, user urn.URN, token string) error
	UnregisterWeb(ctx context.Context, user urn.URN, endpoint string) error

	// Fetch returns a request whose token buckets hold every registered device.
	Fetch(ctx context.Context, user urn.URN) (*notification.NotificationRequest, error)
}

// PayloadStore holds delivered push payloads until the engine destroys them.
type PayloadStore interface {
	// NextHandle allocates a handle no other writer sharing the store will
	// receive while it is outstanding.
	NextHandle(ctx context.Context) (notify.PushHandle, error)
	Put(ctx context.Context, h notify.PushHandle, payload notify.RawPushPayload) error
	// Get returns ErrPayloadNotFound for unknown handles.
	Get(ctx context.Context, h notify.PushHandle) (notify.RawPushPayload, error)
	Delete(ctx context.Context, h notify.PushHandle) error
}
