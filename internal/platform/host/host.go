// Package host implements notify.Platform inside the service process.
//
// Local notifications are timers; push payloads live in a PayloadStore;
// push registration mints a device token and records it in the TokenStore
// under the host's device URN. Every asynchronous outcome is posted back as
// an event through the Poster, which in the service is the event loop.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tinywideclouds/go-notification-dispatch/internal/translate"
	"github.com/tinywideclouds/go-notification-dispatch/pkg/dispatch"
	"github.com/tinywideclouds/go-notification-dispatch/pkg/notify"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

// ErrUnknownHandle is returned for local handles that were never created or
// have been destroyed.
var ErrUnknownHandle = errors.New("unknown local notification handle")

// DefaultOpTimeout bounds each storage call the host makes.
const DefaultOpTimeout = 5 * time.Second

// Poster accepts events for dispatch.
type Poster interface {
	Post(ctx context.Context, ev notify.Event) error
}

type registrationState int

const (
	unregistered registrationState = iota
	registering
	registered
)

type localEntry struct {
	timer *time.Timer
}

// Config identifies the device this host registers for push.
type Config struct {
	DeviceURN urn.URN
	OpTimeout time.Duration
}

type Host struct {
	poster    Poster
	payloads  dispatch.PayloadStore
	tokens    dispatch.TokenStore
	device    urn.URN
	opTimeout time.Duration
	logger    *slog.Logger

	nextLocal atomic.Int64

	mu     sync.Mutex
	locals map[notify.Handle]*localEntry

	regState  registrationState
	token     string
	regResult notify.Result
	regText   string

	badge int

	wg sync.WaitGroup
}

func New(cfg Config, poster Poster, payloads dispatch.PayloadStore, tokens dispatch.TokenStore, logger *slog.Logger) *Host {
	timeout := cfg.OpTimeout
	if timeout <= 0 {
		timeout = DefaultOpTimeout
	}
	return &Host{
		poster:    poster,
		payloads:  payloads,
		tokens:    tokens,
		device:    cfg.DeviceURN,
		opTimeout: timeout,
		logger:    logger.With("component", "HostPlatform"),
		locals:    make(map[notify.Handle]*localEntry),
		regResult: notify.ResultNotRegistered,
	}
}

// Wait blocks until background registration work has finished.
func (h *Host) Wait() {
	h.wg.Wait()
}

func (h *Host) post(ev notify.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), h.opTimeout)
	defer cancel()
	if err := h.poster.Post(ctx, ev); err != nil {
		h.logger.Warn("Failed to post event", "event", fmt.Sprintf("%T", ev), "err", err)
	}
}

// --- Local notifications ---

func (h *Host) CreateLocal(_ *notify.LocalNotification) (notify.Handle, error) {
	handle := notify.Handle(h.nextLocal.Add(1))

	h.mu.Lock()
	defer h.mu.Unlock()
	h.locals[handle] = &localEntry{}
	return handle, nil
}

func (h *Host) DestroyLocal(handle notify.Handle) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry, ok := h.locals[handle]
	if !ok {
		return ErrUnknownHandle
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	delete(h.locals, handle)
	return nil
}

// ScheduleLocal arms a timer for n.FireDate; a date in the past fires at
// once. Rescheduling replaces the pending timer.
func (h *Host) ScheduleLocal(n *notify.LocalNotification) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry, ok := h.locals[n.Handle]
	if !ok {
		return ErrUnknownHandle
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}

	handle := n.Handle
	entry.timer = time.AfterFunc(time.Until(n.FireDate), func() {
		h.post(notify.LocalFired{Handle: handle})
	})
	h.logger.Debug("Local notification scheduled", "handle", handle, "fire_date", n.FireDate)
	return nil
}

// UnscheduleLocal stops a pending timer. Unknown, fired or already cancelled
// handles are not an error.
func (h *Host) UnscheduleLocal(handle notify.Handle) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if entry, ok := h.locals[handle]; ok && entry.timer != nil {
		entry.timer.Stop()
		entry.timer = nil
	}
	return nil
}

// --- Push payloads ---

// DeliverPush stores payload under a handle allocated by the payload store
// and announces it. Text fields are cut to the platform buffer size.
func (h *Host) DeliverPush(ctx context.Context, payload notify.RawPushPayload) (notify.PushHandle, error) {
	handle, err := h.payloads.NextHandle(ctx)
	if err != nil {
		return 0, err
	}
	payload.AlertMessage = translate.Truncate(payload.AlertMessage)
	payload.SoundFileName = translate.Truncate(payload.SoundFileName)

	if err := h.payloads.Put(ctx, handle, payload); err != nil {
		return 0, err
	}
	if err := h.poster.Post(ctx, notify.PushDelivered{Handle: handle}); err != nil {
		_ = h.payloads.Delete(ctx, handle)
		return 0, fmt.Errorf("failed to announce push payload %d: %w", handle, err)
	}
	return handle, nil
}

func (h *Host) FetchPushPayload(handle notify.PushHandle) (notify.RawPushPayload, notify.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), h.opTimeout)
	defer cancel()

	payload, err := h.payloads.Get(ctx, handle)
	if errors.Is(err, dispatch.ErrPayloadNotFound) {
		return notify.RawPushPayload{}, notify.ResultInvalidDescriptor
	}
	if err != nil {
		h.logger.Error("Push payload lookup failed", "handle", handle, "err", err)
		return notify.RawPushPayload{}, notify.ResultError
	}
	return payload, notify.ResultOK
}

func (h *Host) DestroyPushPayload(handle notify.PushHandle) {
	ctx, cancel := context.WithTimeout(context.Background(), h.opTimeout)
	defer cancel()
	if err := h.payloads.Delete(ctx, handle); err != nil {
		h.logger.Warn("Failed to release push payload", "handle", handle, "err", err)
	}
}

// --- Push registration ---

// RegisterPush starts registration in the background and returns ResultOK,
// or ResultAlreadyRegistered while a registration exists or is in progress.
// The type mask and account are recorded for diagnostics only.
func (h *Host) RegisterPush(types notify.PushType, accountID string) notify.Result {
	h.mu.Lock()
	if h.regState != unregistered {
		h.mu.Unlock()
		return notify.ResultAlreadyRegistered
	}
	h.regState = registering
	h.mu.Unlock()

	h.logger.Info("Registering for push", "types", int(types), "account_id", accountID, "device", h.device.String())

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		token := uuid.NewString()

		ctx, cancel := context.WithTimeout(context.Background(), h.opTimeout)
		err := h.tokens.RegisterFCM(ctx, h.device, token)
		cancel()

		h.mu.Lock()
		if err != nil {
			h.regState = unregistered
			h.regResult = notify.ResultError
			h.regText = translate.Truncate(err.Error())
		} else {
			h.regState = registered
			h.token = token
			h.regResult = notify.ResultOK
			h.regText = token
		}
		h.mu.Unlock()

		h.post(notify.PushRegistrationResult{})
	}()
	return notify.ResultOK
}

// UnregisterPush removes the device token and announces PushUnregistered.
// It does nothing when the host is not registered.
func (h *Host) UnregisterPush() {
	h.mu.Lock()
	if h.regState != registered {
		h.mu.Unlock()
		return
	}
	token := h.token
	h.regState = registering
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), h.opTimeout)
		err := h.tokens.UnregisterFCM(ctx, h.device, token)
		cancel()

		h.mu.Lock()
		if err != nil {
			h.logger.Warn("Failed to unregister push token", "err", err)
			h.regState = registered
			h.mu.Unlock()
			return
		}
		h.regState = unregistered
		h.token = ""
		h.regResult = notify.ResultNotRegistered
		h.regText = ""
		h.mu.Unlock()

		h.post(notify.PushUnregistered{})
	}()
}

func (h *Host) FetchRegistration() (notify.Result, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.regResult, h.regText
}

// --- Properties ---

func (h *Host) SetIconBadge(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.badge = n
}

func (h *Host) IconBadge() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.badge
}

// SetPushTitle and SetPushTicker have no display surface in a server
// process; the values are only logged. Manager keeps the readable copy.
func (h *Host) SetPushTitle(title string) {
	h.logger.Debug("Push title set", "title", title)
}

func (h *Host) SetPushTicker(ticker string) {
	h.logger.Debug("Push ticker set", "ticker", ticker)
}

// Close stops every pending local timer.
func (h *Host) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, entry := range h.locals {
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
}

var _ notify.Platform = (*Host)(nil)
