// Package web delivers relayed notifications to browsers through Web Push
// (VAPID).
package web

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/tinywideclouds/go-notification-dispatch/notificationservice/config"
	"github.com/tinywideclouds/go-platform/pkg/notification/v1"
)

// defaultTTL is how long, in seconds, the push service keeps an undelivered message.
const defaultTTL = 60

// SendFunc matches webpush.SendNotification.
type SendFunc func(message []byte, s *webpush.Subscription, options *webpush.Options) (*http.Response, error)

type Dispatcher struct {
	subscriber string
	privateKey string
	publicKey  string
	ttl        int
	send       SendFunc
	logger     *slog.Logger
	httpClient *http.Client
}

func NewDispatcher(cfg config.VapidConfig, logger *slog.Logger) *Dispatcher {
	return NewDispatcherWithSender(cfg, webpush.SendNotification, logger)
}

// NewDispatcherWithSender lets callers replace the transport, e.g. in tests.
func NewDispatcherWithSender(cfg config.VapidConfig, send SendFunc, logger *slog.Logger) *Dispatcher {
	ttl := cfg.TTLSeconds
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Dispatcher{
		privateKey: cfg.PrivateKey,
		publicKey:  cfg.PublicKey,
		subscriber: cfg.SubscriberEmail,
		ttl:        ttl,
		send:       send,
		logger:     logger.With("component", "WebPushDispatcher"),
		httpClient: &http.Client{},
	}
}

// Dispatch sends content to every subscription. It returns the
// subscriptions the push service reported gone (404/410) so the caller can
// delete them. Transport errors are logged and counted, not returned.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	subs []notification.WebPushSubscription,
	content notification.NotificationContent,
	data map[string]string,
) (string, []notification.WebPushSubscription, error) {
	if len(subs) == 0 {
		return "skipped: no subscriptions", nil, nil
	}

	payloadBytes, err := json.Marshal(map[string]interface{}{
		"notification": map[string]string{
			"title": content.Title,
			"body":  content.Body,
		},
		"data": data,
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	var invalidSubs []notification.WebPushSubscription
	successCount := 0
	failureCount := 0

	for _, sub := range subs {
		if ctx.Err() != nil {
			return "", invalidSubs, ctx.Err()
		}

		status, err := d.sendOne(payloadBytes, sub)
		if err != nil {
			d.logger.Error("WebPush transport error", "endpoint", sub.Endpoint, "err", err)
			failureCount++
			continue
		}

		switch status {
		case http.StatusCreated, http.StatusOK:
			successCount++
		case http.StatusGone, http.StatusNotFound:
			invalidSubs = append(invalidSubs, sub)
			failureCount++
		default:
			d.logger.Warn("WebPush rejected", "status", status, "endpoint", sub.Endpoint)
			failureCount++
		}
	}

	receipt := fmt.Sprintf("success:%d invalid:%d total_fail:%d", successCount, len(invalidSubs), failureCount)
	return receipt, invalidSubs, nil
}

func (d *Dispatcher) sendOne(payload []byte, sub notification.WebPushSubscription) (int, error) {
	s := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: base64.RawURLEncoding.EncodeToString(sub.Keys.P256dh),
			Auth:   base64.RawURLEncoding.EncodeToString(sub.Keys.Auth),
		},
	}

	resp, err := d.send(payload, s, &webpush.Options{
		Subscriber:      d.subscriber,
		VAPIDPublicKey:  d.publicKey,
		VAPIDPrivateKey: d.privateKey,
		TTL:             d.ttl,
		HTTPClient:      d.httpClient,
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
