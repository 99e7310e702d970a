// Package notificationmanager routes platform notification events to the
// listeners registered for them.
//
// A Manager is built once by the application's composition root and handed
// to the components that need it; it owns the event stream of its Platform.
package notificationmanager

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/tinywideclouds/go-notification-dispatch/internal/registry"
	"github.com/tinywideclouds/go-notification-dispatch/internal/translate"
	"github.com/tinywideclouds/go-notification-dispatch/pkg/notify"
)

type Manager struct {
	platform notify.Platform
	logger   *slog.Logger

	handles        *registry.HandleRegistry
	localListeners *registry.ListenerRegistry[notify.LocalListener]
	pushListeners  *registry.ListenerRegistry[notify.PushListener]

	mu     sync.RWMutex
	title  string
	ticker string
}

func New(platform notify.Platform, logger *slog.Logger) *Manager {
	return &Manager{
		platform:       platform,
		logger:         logger.With("component", "NotificationManager"),
		handles:        registry.NewHandleRegistry(),
		localListeners: registry.NewListenerRegistry[notify.LocalListener](),
		pushListeners:  registry.NewListenerRegistry[notify.PushListener](),
	}
}

// Handles exposes the handle registry backing local notification lookups.
func (m *Manager) Handles() *registry.HandleRegistry {
	return m.handles
}

// Lookup returns the notification recorded under h, if any.
func (m *Manager) Lookup(h notify.Handle) (*notify.LocalNotification, bool) {
	return m.handles.Get(h)
}

// CustomEvent dispatches one platform event. It runs synchronously on the
// caller's goroutine and never fails; events that cannot be resolved are
// dropped.
func (m *Manager) CustomEvent(ev notify.Event) {
	switch e := ev.(type) {
	case notify.LocalFired:
		m.receivedLocal(e)
	case notify.PushDelivered:
		m.receivedPush(e)
	case notify.PushRegistrationResult:
		m.receivedRegistration()
	case notify.PushUnregistered:
		m.pushListeners.ForEach(func(l notify.PushListener) {
			l.DidApplicationUnregister()
		})
	default:
		m.logger.Debug("Ignoring unknown event", "event", fmt.Sprintf("%T", ev))
	}
}

// HandleRaw decodes a loosely typed event and dispatches it.
func (m *Manager) HandleRaw(raw notify.RawEvent) {
	ev, ok := translate.DecodeEvent(raw)
	if !ok {
		m.logger.Debug("Ignoring unknown raw event", "type", raw.Type)
		return
	}
	m.CustomEvent(ev)
}

func (m *Manager) receivedLocal(e notify.LocalFired) {
	n, ok := m.handles.Get(e.Handle)
	if !ok {
		// Cancellation can race delivery; a stale handle is expected.
		m.logger.Debug("Dropping local notification with unknown handle", "handle", e.Handle)
		return
	}
	m.localListeners.ForEach(func(l notify.LocalListener) {
		l.DidReceiveLocalNotification(n)
	})
}

func (m *Manager) receivedPush(e notify.PushDelivered) {
	raw, res := m.platform.FetchPushPayload(e.Handle)
	if res != notify.ResultOK {
		m.logger.Warn("Failed to fetch push payload", "handle", e.Handle, "result", res)
		return
	}
	defer m.platform.DestroyPushPayload(e.Handle)

	p := translate.DecodePushPayload(raw)
	m.pushListeners.ForEach(func(l notify.PushListener) {
		l.DidReceivePushNotification(p)
	})
}

func (m *Manager) receivedRegistration() {
	res, message := m.platform.FetchRegistration()
	if res == notify.ResultOK {
		m.pushListeners.ForEach(func(l notify.PushListener) {
			l.DidApplicationRegister(message)
		})
		return
	}
	m.logger.Info("Push registration failed", "result", res, "message", message)
	m.pushListeners.ForEach(func(l notify.PushListener) {
		l.DidFailToRegister(message)
	})
}

// --- Listeners ---

// AddLocalListener registers l once; adding it again is a no-op. Listeners
// are matched by identity, so func values and structs holding maps or slices
// are ignored.
func (m *Manager) AddLocalListener(l notify.LocalListener) {
	m.localListeners.Add(l)
}

// RemoveLocalListener unregisters l; removing an absent listener is a no-op.
// Listeners must be removed before their owner discards them.
func (m *Manager) RemoveLocalListener(l notify.LocalListener) {
	m.localListeners.Remove(l)
}

// AddPushListener registers l once. Register the application with
// RegisterForPush to start receiving push events.
func (m *Manager) AddPushListener(l notify.PushListener) {
	m.pushListeners.Add(l)
}

func (m *Manager) RemovePushListener(l notify.PushListener) {
	m.pushListeners.Remove(l)
}

// --- Local notifications ---

// CreateLocal obtains a platform handle for n and records n under it so
// LocalFired events resolve to it until DestroyLocal.
func (m *Manager) CreateLocal(n *notify.LocalNotification) error {
	h, err := m.platform.CreateLocal(n)
	if err != nil {
		return fmt.Errorf("failed to create local notification: %w", err)
	}
	n.Handle = h
	m.handles.Put(n)
	return nil
}

// DestroyLocal forgets n and releases its platform handle.
func (m *Manager) DestroyLocal(n *notify.LocalNotification) error {
	m.handles.Remove(n.Handle)
	if err := m.platform.DestroyLocal(n.Handle); err != nil {
		return fmt.Errorf("failed to destroy local notification %d: %w", n.Handle, err)
	}
	return nil
}

// ScheduleLocal asks the platform to deliver n at its FireDate.
func (m *Manager) ScheduleLocal(n *notify.LocalNotification) error {
	if err := m.platform.ScheduleLocal(n); err != nil {
		return fmt.Errorf("failed to schedule local notification %d: %w", n.Handle, err)
	}
	return nil
}

// UnscheduleLocal cancels the pending delivery of n. The handle stays
// registered until DestroyLocal.
func (m *Manager) UnscheduleLocal(n *notify.LocalNotification) error {
	if err := m.platform.UnscheduleLocal(n.Handle); err != nil {
		return fmt.Errorf("failed to unschedule local notification %d: %w", n.Handle, err)
	}
	return nil
}

// --- Push registration ---

// RegisterForPush returns the platform's status unchanged, for example
// ResultAlreadyRegistered. The outcome arrives later as a
// PushRegistrationResult event.
func (m *Manager) RegisterForPush(types notify.PushType, accountID string) notify.Result {
	return m.platform.RegisterPush(types, accountID)
}

func (m *Manager) UnregisterFromPush() {
	m.platform.UnregisterPush()
}

// --- Properties ---

// SetIconBadge sets the application badge. Negative values are ignored.
func (m *Manager) SetIconBadge(n int) {
	if n < 0 {
		return
	}
	m.platform.SetIconBadge(n)
}

func (m *Manager) IconBadge() int {
	return m.platform.IconBadge()
}

// SetPushTitle sets the title shown for incoming push notifications. It does
// not alter notifications already shown.
func (m *Manager) SetPushTitle(title string) {
	m.mu.Lock()
	m.title = title
	m.mu.Unlock()
	m.platform.SetPushTitle(title)
}

func (m *Manager) SetPushTicker(ticker string) {
	m.mu.Lock()
	m.ticker = ticker
	m.mu.Unlock()
	m.platform.SetPushTicker(ticker)
}

// PushTitle returns the last title set through m, or "".
func (m *Manager) PushTitle() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.title
}

func (m *Manager) PushTicker() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ticker
}

// Close drops every listener. Events dispatched afterwards reach no one.
func (m *Manager) Close() {
	m.localListeners.Clear()
	m.pushListeners.Clear()
}
