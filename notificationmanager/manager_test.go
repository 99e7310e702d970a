package notificationmanager_test

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-notification-dispatch/notificationmanager"
	"github.com/tinywideclouds/go-notification-dispatch/pkg/notify"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Mocks ---

type mockPlatform struct {
	mock.Mock
}

func (m *mockPlatform) CreateLocal(n *notify.LocalNotification) (notify.Handle, error) {
	args := m.Called(n)
	return args.Get(0).(notify.Handle), args.Error(1)
}
func (m *mockPlatform) DestroyLocal(h notify.Handle) error {
	return m.Called(h).Error(0)
}
func (m *mockPlatform) ScheduleLocal(n *notify.LocalNotification) error {
	return m.Called(n).Error(0)
}
func (m *mockPlatform) UnscheduleLocal(h notify.Handle) error {
	return m.Called(h).Error(0)
}
func (m *mockPlatform) RegisterPush(types notify.PushType, accountID string) notify.Result {
	return m.Called(types, accountID).Get(0).(notify.Result)
}
func (m *mockPlatform) UnregisterPush() {
	m.Called()
}
func (m *mockPlatform) FetchPushPayload(h notify.PushHandle) (notify.RawPushPayload, notify.Result) {
	args := m.Called(h)
	return args.Get(0).(notify.RawPushPayload), args.Get(1).(notify.Result)
}
func (m *mockPlatform) FetchRegistration() (notify.Result, string) {
	args := m.Called()
	return args.Get(0).(notify.Result), args.String(1)
}
func (m *mockPlatform) DestroyPushPayload(h notify.PushHandle) {
	m.Called(h)
}
func (m *mockPlatform) SetIconBadge(n int) {
	m.Called(n)
}
func (m *mockPlatform) IconBadge() int {
	return m.Called().Int(0)
}
func (m *mockPlatform) SetPushTitle(title string) {
	m.Called(title)
}
func (m *mockPlatform) SetPushTicker(ticker string) {
	m.Called(ticker)
}

// --- Recording listeners ---

type localRecorder struct {
	received []*notify.LocalNotification
}

func (r *localRecorder) DidReceiveLocalNotification(n *notify.LocalNotification) {
	r.received = append(r.received, n)
}

type pushRecorder struct {
	pushes        []notify.PushNotification
	registered    []string
	failed        []string
	unregistered  int
	onPushHandler func()
}

func (r *pushRecorder) DidReceivePushNotification(p notify.PushNotification) {
	r.pushes = append(r.pushes, p)
	if r.onPushHandler != nil {
		r.onPushHandler()
	}
}
func (r *pushRecorder) DidApplicationRegister(token string) { r.registered = append(r.registered, token) }
func (r *pushRecorder) DidFailToRegister(message string)   { r.failed = append(r.failed, message) }
func (r *pushRecorder) DidApplicationUnregister()          { r.unregistered++ }

func (r *pushRecorder) total() int {
	return len(r.pushes) + len(r.registered) + len(r.failed) + r.unregistered
}

// --- Tests ---

func TestManager_LocalDelivery(t *testing.T) {
	t.Run("Scenario A - Scheduled handle reaches listener once", func(t *testing.T) {
		platform := new(mockPlatform)
		mgr := notificationmanager.New(platform, newTestLogger())
		listener := &localRecorder{}
		mgr.AddLocalListener(listener)

		n := &notify.LocalNotification{Body: "Hi"}
		platform.On("CreateLocal", n).Return(notify.Handle(42), nil)
		platform.On("ScheduleLocal", n).Return(nil)

		require.NoError(t, mgr.CreateLocal(n))
		require.NoError(t, mgr.ScheduleLocal(n))
		assert.Equal(t, notify.Handle(42), n.Handle)

		mgr.CustomEvent(notify.LocalFired{Handle: 42})

		require.Len(t, listener.received, 1)
		assert.Equal(t, "Hi", listener.received[0].Body)
		platform.AssertExpectations(t)
	})

	t.Run("Stale handle invokes no listener", func(t *testing.T) {
		platform := new(mockPlatform)
		mgr := notificationmanager.New(platform, newTestLogger())
		listener := &localRecorder{}
		mgr.AddLocalListener(listener)

		assert.NotPanics(t, func() {
			mgr.CustomEvent(notify.LocalFired{Handle: 404})
		})
		assert.Empty(t, listener.received)
	})

	t.Run("Delivery does not consume the handle", func(t *testing.T) {
		mgr := notificationmanager.New(new(mockPlatform), newTestLogger())
		listener := &localRecorder{}
		mgr.AddLocalListener(listener)
		mgr.Handles().Put(&notify.LocalNotification{Handle: 7, Body: "again"})

		mgr.CustomEvent(notify.LocalFired{Handle: 7})
		mgr.CustomEvent(notify.LocalFired{Handle: 7})

		assert.Len(t, listener.received, 2)
		assert.Equal(t, 1, mgr.Handles().Len())
	})

	t.Run("DestroyLocal removes the entry", func(t *testing.T) {
		platform := new(mockPlatform)
		mgr := notificationmanager.New(platform, newTestLogger())
		listener := &localRecorder{}
		mgr.AddLocalListener(listener)

		n := &notify.LocalNotification{Handle: 9}
		mgr.Handles().Put(n)
		platform.On("DestroyLocal", notify.Handle(9)).Return(nil)

		require.NoError(t, mgr.DestroyLocal(n))
		mgr.CustomEvent(notify.LocalFired{Handle: 9})

		assert.Empty(t, listener.received)
		platform.AssertExpectations(t)
	})

	t.Run("CreateLocal failure records nothing", func(t *testing.T) {
		platform := new(mockPlatform)
		mgr := notificationmanager.New(platform, newTestLogger())
		n := &notify.LocalNotification{}
		platform.On("CreateLocal", n).Return(notify.Handle(0), errors.New("no slots"))

		err := mgr.CreateLocal(n)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no slots")
		assert.Zero(t, mgr.Handles().Len())
	})
}

func TestManager_ListenerRegistration(t *testing.T) {
	t.Run("Idempotent add delivers once", func(t *testing.T) {
		mgr := notificationmanager.New(new(mockPlatform), newTestLogger())
		listener := &localRecorder{}
		mgr.AddLocalListener(listener)
		mgr.AddLocalListener(listener)
		mgr.Handles().Put(&notify.LocalNotification{Handle: 1})

		mgr.CustomEvent(notify.LocalFired{Handle: 1})

		assert.Len(t, listener.received, 1)
	})

	t.Run("Removing an absent listener keeps order", func(t *testing.T) {
		mgr := notificationmanager.New(new(mockPlatform), newTestLogger())
		var order []string
		first := &orderedListener{name: "first", order: &order}
		second := &orderedListener{name: "second", order: &order}
		mgr.AddLocalListener(first)
		mgr.AddLocalListener(second)
		mgr.RemoveLocalListener(&orderedListener{name: "stranger", order: &order})
		mgr.Handles().Put(&notify.LocalNotification{Handle: 1})

		mgr.CustomEvent(notify.LocalFired{Handle: 1})

		assert.Equal(t, []string{"first", "second"}, order)
	})

	t.Run("Removed listener is not invoked", func(t *testing.T) {
		platform := new(mockPlatform)
		mgr := notificationmanager.New(platform, newTestLogger())
		listener := &pushRecorder{}
		mgr.AddPushListener(listener)
		mgr.RemovePushListener(listener)

		mgr.CustomEvent(notify.PushUnregistered{})

		assert.Zero(t, listener.total())
	})

	t.Run("Listener may remove itself during dispatch", func(t *testing.T) {
		platform := new(mockPlatform)
		mgr := notificationmanager.New(platform, newTestLogger())
		self := &pushRecorder{}
		other := &pushRecorder{}
		self.onPushHandler = func() { mgr.RemovePushListener(self) }
		mgr.AddPushListener(self)
		mgr.AddPushListener(other)

		platform.On("FetchPushPayload", notify.PushHandle(1)).Return(notify.RawPushPayload{}, notify.ResultOK)
		platform.On("DestroyPushPayload", notify.PushHandle(1)).Return()

		mgr.CustomEvent(notify.PushDelivered{Handle: 1})
		mgr.CustomEvent(notify.PushDelivered{Handle: 1})

		assert.Len(t, self.pushes, 1)
		assert.Len(t, other.pushes, 2)
	})
}

type orderedListener struct {
	name  string
	order *[]string
}

func (l *orderedListener) DidReceiveLocalNotification(*notify.LocalNotification) {
	*l.order = append(*l.order, l.name)
}

func TestManager_PushDelivery(t *testing.T) {
	t.Run("Scenario B - Decodes alert and badge", func(t *testing.T) {
		platform := new(mockPlatform)
		mgr := notificationmanager.New(platform, newTestLogger())
		listener := &pushRecorder{}
		mgr.AddPushListener(listener)

		raw := notify.RawPushPayload{
			Type:         notify.PushTypeAlert | notify.PushTypeBadge,
			AlertMessage: "Sale!",
			BadgeIcon:    5,
		}
		platform.On("FetchPushPayload", notify.PushHandle(3)).Return(raw, notify.ResultOK)
		platform.On("DestroyPushPayload", notify.PushHandle(3)).Return().Once()

		mgr.CustomEvent(notify.PushDelivered{Handle: 3})

		require.Len(t, listener.pushes, 1)
		p := listener.pushes[0]
		assert.Equal(t, "Sale!", p.Message)
		assert.Equal(t, 5, p.IconBadge)
		assert.Empty(t, p.SoundFileName)
		assert.False(t, p.Has(notify.PushTypeSound))
		platform.AssertExpectations(t)
	})

	t.Run("Payload destroyed even without listeners", func(t *testing.T) {
		platform := new(mockPlatform)
		mgr := notificationmanager.New(platform, newTestLogger())

		platform.On("FetchPushPayload", notify.PushHandle(4)).Return(notify.RawPushPayload{}, notify.ResultOK)
		platform.On("DestroyPushPayload", notify.PushHandle(4)).Return().Once()

		mgr.CustomEvent(notify.PushDelivered{Handle: 4})

		platform.AssertExpectations(t)
	})

	t.Run("Fetch failure aborts the event", func(t *testing.T) {
		platform := new(mockPlatform)
		mgr := notificationmanager.New(platform, newTestLogger())
		listener := &pushRecorder{}
		mgr.AddPushListener(listener)

		platform.On("FetchPushPayload", notify.PushHandle(5)).Return(notify.RawPushPayload{}, notify.ResultInvalidDescriptor)

		mgr.CustomEvent(notify.PushDelivered{Handle: 5})

		assert.Zero(t, listener.total())
		platform.AssertNotCalled(t, "DestroyPushPayload", mock.Anything)
	})
}

func TestManager_Registration(t *testing.T) {
	t.Run("Scenario C - Success reaches every listener", func(t *testing.T) {
		platform := new(mockPlatform)
		mgr := notificationmanager.New(platform, newTestLogger())
		a, b := &pushRecorder{}, &pushRecorder{}
		mgr.AddPushListener(a)
		mgr.AddPushListener(b)
		platform.On("FetchRegistration").Return(notify.ResultOK, "token-abc")

		mgr.CustomEvent(notify.PushRegistrationResult{})

		for _, l := range []*pushRecorder{a, b} {
			assert.Equal(t, []string{"token-abc"}, l.registered)
			assert.Empty(t, l.failed)
		}
	})

	t.Run("Scenario D - Failure reaches every listener", func(t *testing.T) {
		platform := new(mockPlatform)
		mgr := notificationmanager.New(platform, newTestLogger())
		a, b := &pushRecorder{}, &pushRecorder{}
		mgr.AddPushListener(a)
		mgr.AddPushListener(b)
		platform.On("FetchRegistration").Return(notify.ResultError, "denied")

		mgr.CustomEvent(notify.PushRegistrationResult{})

		for _, l := range []*pushRecorder{a, b} {
			assert.Equal(t, []string{"denied"}, l.failed)
			assert.Empty(t, l.registered)
		}
	})

	t.Run("RegisterForPush passes the code through", func(t *testing.T) {
		platform := new(mockPlatform)
		mgr := notificationmanager.New(platform, newTestLogger())
		platform.On("RegisterPush", notify.PushTypeAlert|notify.PushTypeBadge, "dev@example.com").
			Return(notify.ResultAlreadyRegistered)

		res := mgr.RegisterForPush(notify.PushTypeAlert|notify.PushTypeBadge, "dev@example.com")

		assert.Equal(t, notify.ResultAlreadyRegistered, res)
	})

	t.Run("Unregistration reaches push listeners only", func(t *testing.T) {
		mgr := notificationmanager.New(new(mockPlatform), newTestLogger())
		push := &pushRecorder{}
		local := &localRecorder{}
		mgr.AddPushListener(push)
		mgr.AddLocalListener(local)

		mgr.CustomEvent(notify.PushUnregistered{})

		assert.Equal(t, 1, push.unregistered)
		assert.Empty(t, local.received)
	})
}

func TestManager_CategoryIsolation(t *testing.T) {
	platform := new(mockPlatform)
	mgr := notificationmanager.New(platform, newTestLogger())
	local := &localRecorder{}
	push := &pushRecorder{}
	mgr.AddLocalListener(local)
	mgr.AddPushListener(push)
	mgr.Handles().Put(&notify.LocalNotification{Handle: 1})

	platform.On("FetchPushPayload", notify.PushHandle(1)).Return(notify.RawPushPayload{}, notify.ResultOK)
	platform.On("DestroyPushPayload", notify.PushHandle(1)).Return()
	platform.On("FetchRegistration").Return(notify.ResultOK, "t")

	mgr.CustomEvent(notify.PushDelivered{Handle: 1})
	mgr.CustomEvent(notify.PushRegistrationResult{})
	mgr.CustomEvent(notify.PushUnregistered{})
	assert.Empty(t, local.received)

	before := push.total()
	mgr.CustomEvent(notify.LocalFired{Handle: 1})
	assert.Equal(t, before, push.total())
	assert.Len(t, local.received, 1)
}

func TestManager_RawEvents(t *testing.T) {
	mgr := notificationmanager.New(new(mockPlatform), newTestLogger())
	local := &localRecorder{}
	mgr.AddLocalListener(local)
	mgr.Handles().Put(&notify.LocalNotification{Handle: 11})

	mgr.HandleRaw(notify.RawEvent{Type: 12345})
	mgr.HandleRaw(notify.RawEvent{Type: notify.EventTypeLocalNotification, LocalHandle: 11})

	assert.Len(t, local.received, 1)
}

func TestManager_Properties(t *testing.T) {
	platform := new(mockPlatform)
	mgr := notificationmanager.New(platform, newTestLogger())

	assert.Empty(t, mgr.PushTitle())
	assert.Empty(t, mgr.PushTicker())

	platform.On("SetPushTitle", "Deals").Return()
	platform.On("SetPushTicker", "New deal").Return()
	platform.On("SetIconBadge", 3).Return()
	platform.On("IconBadge").Return(3)

	mgr.SetPushTitle("Deals")
	mgr.SetPushTicker("New deal")
	mgr.SetIconBadge(3)
	mgr.SetIconBadge(-1)

	assert.Equal(t, "Deals", mgr.PushTitle())
	assert.Equal(t, "New deal", mgr.PushTicker())
	assert.Equal(t, 3, mgr.IconBadge())
	platform.AssertNotCalled(t, "SetIconBadge", -1)
	platform.AssertExpectations(t)
}

func TestManager_Close(t *testing.T) {
	mgr := notificationmanager.New(new(mockPlatform), newTestLogger())
	push := &pushRecorder{}
	mgr.AddPushListener(push)

	mgr.Close()
	mgr.CustomEvent(notify.PushUnregistered{})

	assert.Zero(t, push.total())
}
