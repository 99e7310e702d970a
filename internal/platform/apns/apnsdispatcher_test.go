package apns_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-notification-dispatch/internal/platform/apns"
	"github.com/tinywideclouds/go-platform/pkg/notification/v1"
)

type MockAPNSClient struct {
	mock.Mock
}

func (m *MockAPNSClient) Push(n *apns2.Notification) (*apns2.Response, error) {
	args := m.Called(n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*apns2.Response), args.Error(1)
}

func TestDispatch(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()
	content := notification.NotificationContent{Title: "Hello iOS", Sound: "chime.caf"}
	data := map[string]string{"handle": "7"}

	t.Run("success", func(t *testing.T) {
		client := new(MockAPNSClient)
		dispatcher := apns.NewDispatcherWithClient(client, "com.test.app", logger)

		client.On("Push", mock.MatchedBy(func(n *apns2.Notification) bool {
			_, isPayload := n.Payload.(*payload.Payload)
			return n.DeviceToken == "token-1" && n.Topic == "com.test.app" && isPayload
		})).Return(&apns2.Response{StatusCode: http.StatusOK}, nil)

		receipt, invalid, err := dispatcher.Dispatch(ctx, []string{"token-1"}, content, data)
		require.NoError(t, err)
		assert.Empty(t, invalid)
		assert.Equal(t, "success:1 invalid:0 total_fail:0", receipt)
		client.AssertExpectations(t)
	})

	t.Run("dead tokens are returned", func(t *testing.T) {
		client := new(MockAPNSClient)
		dispatcher := apns.NewDispatcherWithClient(client, "com.test.app", logger)

		client.On("Push", mock.MatchedBy(func(n *apns2.Notification) bool { return n.DeviceToken == "bad" })).
			Return(&apns2.Response{StatusCode: http.StatusBadRequest, Reason: apns2.ReasonBadDeviceToken}, nil)
		client.On("Push", mock.MatchedBy(func(n *apns2.Notification) bool { return n.DeviceToken == "misconfigured" })).
			Return(&apns2.Response{StatusCode: http.StatusBadRequest, Reason: apns2.ReasonTopicDisallowed}, nil)

		receipt, invalid, err := dispatcher.Dispatch(ctx, []string{"bad", "misconfigured"}, content, data)
		require.NoError(t, err)
		assert.Equal(t, []string{"bad"}, invalid)
		assert.Contains(t, receipt, "total_fail:2")
	})

	t.Run("transport failure is counted", func(t *testing.T) {
		client := new(MockAPNSClient)
		dispatcher := apns.NewDispatcherWithClient(client, "com.test.app", logger)
		client.On("Push", mock.Anything).Return(nil, errors.New("connection refused"))

		receipt, invalid, err := dispatcher.Dispatch(ctx, []string{"token-1"}, content, data)
		require.NoError(t, err)
		assert.Empty(t, invalid)
		assert.Contains(t, receipt, "total_fail:1")
	})

	t.Run("cancelled context stops the loop", func(t *testing.T) {
		client := new(MockAPNSClient)
		dispatcher := apns.NewDispatcherWithClient(client, "com.test.app", logger)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, _, err := dispatcher.Dispatch(cancelled, []string{"token-1"}, content, data)
		require.ErrorIs(t, err, context.Canceled)
		client.AssertNotCalled(t, "Push", mock.Anything)
	})
}

func TestNewDispatcher_RejectsBadKey(t *testing.T) {
	_, err := apns.NewDispatcher(apns.Config{P8KeyContent: "not a key"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
}
