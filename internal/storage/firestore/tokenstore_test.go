//go:build integration

package firestore_test

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/illmade-knight/go-test/emulators"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fs "github.com/tinywideclouds/go-notification-dispatch/internal/storage/firestore"

	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
	"github.com/tinywideclouds/go-platform/pkg/notification/v1"
)

func setupSuite(t *testing.T) (context.Context, *fs.TokenStore) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	projectID := "test-token-store"
	conn := emulators.SetupFirestoreEmulator(t, ctx, emulators.GetDefaultFirestoreConfig(projectID))
	client, err := firestore.NewClient(ctx, projectID, conn.ClientOptions...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return ctx, fs.NewTokenStore(client, "")
}

func TestTokenStore_Integration(t *testing.T) {
	ctx, store := setupSuite(t)

	t.Run("Mobile token lifecycle", func(t *testing.T) {
		userURN, _ := urn.Parse("urn:sm:user:mobile-user")
		token := "registration-token-1"

		require.NoError(t, store.RegisterFCM(ctx, userURN, token))
		// Registering again keeps a single record.
		require.NoError(t, store.RegisterFCM(ctx, userURN, token))

		req, err := store.Fetch(ctx, userURN)
		require.NoError(t, err)
		assert.Equal(t, []string{token}, req.FCMTokens)
		assert.Empty(t, req.WebSubscriptions)

		require.NoError(t, store.UnregisterFCM(ctx, userURN, token))

		req, err = store.Fetch(ctx, userURN)
		require.NoError(t, err)
		assert.Empty(t, req.FCMTokens)
	})

	t.Run("Mixed devices land in their buckets", func(t *testing.T) {
		userURN, _ := urn.Parse("urn:sm:user:mixed-user")
		webSub := notification.WebPushSubscription{
			Endpoint: "https://web.push/mix",
			Keys: struct {
				P256dh []byte `json:"p256dh"`
				Auth   []byte `json:"auth"`
			}{
				P256dh: []byte{0xDE, 0xAD, 0xBE, 0xEF},
				Auth:   []byte{0xCA, 0xFE, 0xBA, 0xBE},
			},
		}

		require.NoError(t, store.RegisterFCM(ctx, userURN, "token-mix"))
		require.NoError(t, store.RegisterWeb(ctx, userURN, webSub))

		req, err := store.Fetch(ctx, userURN)
		require.NoError(t, err)
		assert.Equal(t, []string{"token-mix"}, req.FCMTokens)
		require.Len(t, req.WebSubscriptions, 1)
		assert.Equal(t, webSub.Endpoint, req.WebSubscriptions[0].Endpoint)

		require.NoError(t, store.UnregisterWeb(ctx, userURN, webSub.Endpoint))
		req, err = store.Fetch(ctx, userURN)
		require.NoError(t, err)
		assert.Empty(t, req.WebSubscriptions)
	})
}
