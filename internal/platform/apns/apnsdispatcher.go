// Package apns relays notifications to iOS devices through the Apple Push
// Notification service using token (.p8) authentication.
package apns

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
	"github.com/tinywideclouds/go-platform/pkg/notification/v1"
)

// APNSClient is the subset of *apns2.Client used here.
type APNSClient interface {
	Push(n *apns2.Notification) (*apns2.Response, error)
}

type Dispatcher struct {
	client APNSClient
	topic  string
	logger *slog.Logger
}

// Config holds the credentials required to sign APNs tokens.
type Config struct {
	KeyID    string `yaml:"key_id"`
	TeamID   string `yaml:"team_id"`
	BundleID string `yaml:"bundle_id"`
	// P8KeyContent is the PEM content of the .p8 key.
	P8KeyContent string `yaml:"p8_key"`
	Sandbox      bool   `yaml:"sandbox"`
}

// NewDispatcher parses the signing key up front so bad credentials fail at startup.
func NewDispatcher(cfg Config, logger *slog.Logger) (*Dispatcher, error) {
	authKey, err := token.AuthKeyFromBytes([]byte(cfg.P8KeyContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse APNs P8 key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Sandbox {
		client = client.Development()
	} else {
		client = client.Production()
	}

	return NewDispatcherWithClient(client, cfg.BundleID, logger), nil
}

func NewDispatcherWithClient(client APNSClient, topic string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		topic:  topic,
		logger: logger.With("component", "APNSDispatcher"),
	}
}

func buildPayload(content notification.NotificationContent, data map[string]string) *payload.Payload {
	p := payload.NewPayload().
		AlertTitle(content.Title).
		AlertBody(content.Body)
	if content.Sound != "" {
		p.Sound(content.Sound)
	}
	for k, v := range data {
		p.Custom(k, v)
	}
	return p
}

// Dispatch pushes to each token in turn; APNs has no multicast endpoint.
// Transport failures are logged and counted. Tokens APNs reports as dead
// are returned for cleanup.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	tokens []string,
	content notification.NotificationContent,
	data map[string]string,
) (string, []string, error) {
	if len(tokens) == 0 {
		return "skipped: no tokens", nil, nil
	}

	body := buildPayload(content, data)

	var invalidTokens []string
	successCount := 0
	failureCount := 0

	for _, deviceToken := range tokens {
		if err := ctx.Err(); err != nil {
			return "", invalidTokens, err
		}

		res, err := d.client.Push(&apns2.Notification{
			DeviceToken: deviceToken,
			Topic:       d.topic,
			Payload:     body,
		})
		if err != nil {
			d.logger.Error("APNs transport failed", "token", deviceToken, "err", err)
			failureCount++
			continue
		}

		if res.Sent() {
			successCount++
			continue
		}

		failureCount++
		switch res.Reason {
		case apns2.ReasonBadDeviceToken, apns2.ReasonUnregistered, apns2.ReasonDeviceTokenNotForTopic:
			invalidTokens = append(invalidTokens, deviceToken)
		default:
			// The token may be fine; this is a configuration problem on our side.
			d.logger.Warn("APNs rejected notification", "reason", res.Reason, "status", res.StatusCode)
		}
	}

	receipt := fmt.Sprintf("success:%d invalid:%d total_fail:%d", successCount, len(invalidTokens), failureCount)
	return receipt, invalidTokens, nil
}
