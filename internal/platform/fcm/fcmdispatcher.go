// Package fcm relays notifications to mobile and web devices through
// Firebase Cloud Messaging.
package fcm

import (
	"context"
	"fmt"
	"log/slog"

	"firebase.google.com/go/v4/messaging"
	"github.com/tinywideclouds/go-platform/pkg/notification/v1"
)

// DefaultIcon is shown by browsers receiving the webpush variant.
const DefaultIcon = "/assets/icons/icon-192x192.png"

// MessagingClient is the subset of *messaging.Client used here.
type MessagingClient interface {
	SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

type Dispatcher struct {
	client MessagingClient
	icon   string
	logger *slog.Logger
}

func NewDispatcher(client MessagingClient, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		icon:   DefaultIcon,
		logger: logger.With("component", "FCMDispatcher"),
	}
}

// WithIcon overrides the webpush icon path.
func (d *Dispatcher) WithIcon(icon string) *Dispatcher {
	d.icon = icon
	return d
}

func (d *Dispatcher) buildMessage(tokens []string, content notification.NotificationContent, data map[string]string) *messaging.MulticastMessage {
	msg := &messaging.MulticastMessage{
		Tokens: tokens,
		Data:   data,
		Notification: &messaging.Notification{
			Title: content.Title,
			Body:  content.Body,
		},
		Webpush: &messaging.WebpushConfig{
			Notification: &messaging.WebpushNotification{
				Title: content.Title,
				Body:  content.Body,
				Icon:  d.icon,
			},
		},
	}
	if content.Sound != "" {
		msg.Android = &messaging.AndroidConfig{
			Notification: &messaging.AndroidNotification{Sound: content.Sound},
		}
		msg.APNS = &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{Aps: &messaging.Aps{Sound: content.Sound}},
		}
	}
	return msg
}

// Dispatch sends one multicast. Tokens FCM rejects as malformed or
// unregistered come back in the second return value. Any other per-token
// failure makes the whole call retryable.
func (d *Dispatcher) Dispatch(ctx context.Context, tokens []string, content notification.NotificationContent, data map[string]string) (string, []string, error) {
	if len(tokens) == 0 {
		return "skipped: no tokens", nil, nil
	}

	br, err := d.client.SendEachForMulticast(ctx, d.buildMessage(tokens, content, data))
	if err != nil {
		if messaging.IsInvalidArgument(err) {
			d.logger.Error("FCM rejected batch as invalid, dropping", "err", err)
			return "skipped: invalid_argument", nil, nil
		}
		return "", nil, fmt.Errorf("fcm transport failed: %w", err)
	}

	var invalidTokens []string
	retryable := 0
	for idx, resp := range br.Responses {
		if resp.Success {
			continue
		}
		if messaging.IsInvalidArgument(resp.Error) || messaging.IsRegistrationTokenNotRegistered(resp.Error) {
			invalidTokens = append(invalidTokens, tokens[idx])
			continue
		}
		retryable++
	}

	if retryable > 0 {
		return "", invalidTokens, fmt.Errorf("fcm batch had %d retryable errors", retryable)
	}

	d.logger.Debug("FCM batch sent", "success", br.SuccessCount, "invalid", len(invalidTokens))
	return fmt.Sprintf("success:%d invalid:%d", br.SuccessCount, len(invalidTokens)), invalidTokens, nil
}
