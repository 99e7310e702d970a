// Package firestore stores device registrations in Cloud Firestore under
// {root}/{userURN}/devices/{sha256(token)}.
package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
	"github.com/tinywideclouds/go-platform/pkg/notification/v1"
)

// DefaultRootCollection is used when no root collection is configured.
const DefaultRootCollection = "users"

const (
	platformMobile = "fcm"
	platformWeb    = "web"
)

// TokenStore implements dispatch.TokenStore on Firestore.
type TokenStore struct {
	client *firestore.Client
	root   string
}

func NewTokenStore(client *firestore.Client, root string) *TokenStore {
	if root == "" {
		root = DefaultRootCollection
	}
	return &TokenStore{client: client, root: root}
}

// deviceRecord holds either a mobile token or a web subscription.
type deviceRecord struct {
	Platform        string                            `firestore:"platform"`
	Token           string                            `firestore:"token,omitempty"`
	WebSubscription *notification.WebPushSubscription `firestore:"web_subscription,omitempty"`
	UpdatedAt       time.Time                         `firestore:"updated_at"`
}

// RegisterFCM upserts a mobile token. The document ID is the token hash, so
// registering the same token twice keeps one record.
func (s *TokenStore) RegisterFCM(ctx context.Context, user urn.URN, token string) error {
	record := deviceRecord{
		Platform:  platformMobile,
		Token:     token,
		UpdatedAt: time.Now(),
	}
	if _, err := s.deviceRef(user, hashKey(token)).Set(ctx, record); err != nil {
		return fmt.Errorf("failed to register mobile token: %w", err)
	}
	return nil
}

func (s *TokenStore) UnregisterFCM(ctx context.Context, user urn.URN, token string) error {
	if _, err := s.deviceRef(user, hashKey(token)).Delete(ctx); err != nil {
		return fmt.Errorf("failed to unregister mobile token: %w", err)
	}
	return nil
}

// RegisterWeb upserts a subscription keyed by its endpoint URL.
func (s *TokenStore) RegisterWeb(ctx context.Context, user urn.URN, sub notification.WebPushSubscription) error {
	record := deviceRecord{
		Platform:        platformWeb,
		WebSubscription: &sub,
		UpdatedAt:       time.Now(),
	}
	if _, err := s.deviceRef(user, hashKey(sub.Endpoint)).Set(ctx, record); err != nil {
		return fmt.Errorf("failed to register web subscription: %w", err)
	}
	return nil
}

func (s *TokenStore) UnregisterWeb(ctx context.Context, user urn.URN, endpoint string) error {
	if _, err := s.deviceRef(user, hashKey(endpoint)).Delete(ctx); err != nil {
		return fmt.Errorf("failed to unregister web subscription: %w", err)
	}
	return nil
}

// Fetch sorts every device of user into the FCM and Web buckets.
func (s *TokenStore) Fetch(ctx context.Context, user urn.URN) (*notification.NotificationRequest, error) {
	iter := s.devices(user).Documents(ctx)
	defer iter.Stop()

	req := &notification.NotificationRequest{
		RecipientID:      user,
		FCMTokens:        make([]string, 0),
		WebSubscriptions: make([]notification.WebPushSubscription, 0),
	}

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}

		var record deviceRecord
		if err := doc.DataTo(&record); err != nil {
			// A corrupt record must not hide the user's other devices.
			continue
		}

		switch {
		case record.Platform == platformWeb && record.WebSubscription != nil:
			req.WebSubscriptions = append(req.WebSubscriptions, *record.WebSubscription)
		case record.Token != "":
			req.FCMTokens = append(req.FCMTokens, record.Token)
		}
	}

	return req, nil
}

func (s *TokenStore) deviceRef(user urn.URN, docID string) *firestore.DocumentRef {
	return s.devices(user).Doc(docID)
}

func (s *TokenStore) devices(user urn.URN) *firestore.CollectionRef {
	return s.client.Collection(s.root).Doc(user.String()).Collection("devices")
}

func hashKey(t string) string {
	sum := sha256.Sum256([]byte(t))
	return hex.EncodeToString(sum[:])
}
