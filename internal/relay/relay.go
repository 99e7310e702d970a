// Package relay forwards fired local notifications that name a recipient to
// the recipient's registered devices.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/tinywideclouds/go-notification-dispatch/pkg/dispatch"
	"github.com/tinywideclouds/go-notification-dispatch/pkg/notify"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
	"github.com/tinywideclouds/go-platform/pkg/notification/v1"
)

const (
	DefaultQueueSize   = 64
	DefaultSendTimeout = 30 * time.Second

	// DataKeyHandle carries the originating local handle in the data payload.
	DataKeyHandle = "local_handle"
)

type job struct {
	recipient urn.URN
	content   notification.NotificationContent
	data      map[string]string
}

// Relay is a notify.LocalListener. Callbacks only enqueue; a single worker
// does the network fan-out so the event loop is never blocked on a provider.
type Relay struct {
	mobile dispatch.Dispatcher
	web    dispatch.WebDispatcher
	tokens dispatch.TokenStore
	logger *slog.Logger

	jobs        chan job
	mu          sync.RWMutex
	closed      bool
	stop        chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	sendTimeout time.Duration
}

var _ notify.LocalListener = (*Relay)(nil)

func New(mobile dispatch.Dispatcher, web dispatch.WebDispatcher, tokens dispatch.TokenStore, queueSize int, logger *slog.Logger) *Relay {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Relay{
		mobile:      mobile,
		web:         web,
		tokens:      tokens,
		logger:      logger.With("component", "Relay"),
		jobs:        make(chan job, queueSize),
		stop:        make(chan struct{}),
		sendTimeout: DefaultSendTimeout,
	}
}

// Start runs the worker. Cancelling ctx abandons in-flight sends; Stop lets
// queued jobs finish first.
func (r *Relay) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stop:
				r.drain(ctx)
				return
			case j := <-r.jobs:
				r.process(ctx, j)
			}
		}
	}()
}

func (r *Relay) drain(ctx context.Context) {
	for {
		select {
		case j := <-r.jobs:
			r.process(ctx, j)
		default:
			return
		}
	}
}

// Stop refuses new notifications and waits for the queued ones to be sent.
func (r *Relay) Stop() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.stop)
		r.mu.Unlock()
	})
	r.wg.Wait()
}

func (r *Relay) process(ctx context.Context, j job) {
	sendCtx, cancel := context.WithTimeout(ctx, r.sendTimeout)
	defer cancel()
	if err := r.Forward(sendCtx, j.recipient, j.content, j.data); err != nil {
		r.logger.Error("Relay failed", "recipient_id", j.recipient.String(), "err", err)
	}
}

// DidReceiveLocalNotification queues n for relay when it names a recipient.
func (r *Relay) DidReceiveLocalNotification(n *notify.LocalNotification) {
	if n.Recipient == "" {
		return
	}
	recipient, err := urn.Parse(n.Recipient)
	if err != nil {
		r.logger.Warn("Local notification has invalid recipient", "handle", n.Handle, "recipient", n.Recipient, "err", err)
		return
	}

	j := job{recipient: recipient, content: ContentFor(n), data: DataFor(n)}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.jobs <- j:
	default:
		r.logger.Warn("Relay queue full, dropping notification", "handle", n.Handle)
	}
}

// ContentFor maps a local notification to provider content.
func ContentFor(n *notify.LocalNotification) notification.NotificationContent {
	c := notification.NotificationContent{Title: n.Title, Body: n.Body}
	if n.PlaySound {
		c.Sound = n.SoundPath
		if c.Sound == "" {
			c.Sound = "default"
		}
	}
	return c
}

// DataFor copies n.Data and adds the originating handle.
func DataFor(n *notify.LocalNotification) map[string]string {
	data := make(map[string]string, len(n.Data)+1)
	for k, v := range n.Data {
		data[k] = v
	}
	data[DataKeyHandle] = strconv.FormatInt(int64(n.Handle), 10)
	return data
}

// Forward fans content out to every device registered for recipient and
// removes the tokens providers report as dead. Errors from both paths are
// joined.
func (r *Relay) Forward(ctx context.Context, recipient urn.URN, content notification.NotificationContent, data map[string]string) error {
	log := r.logger.With("recipient_id", recipient.String())

	devices, err := r.tokens.Fetch(ctx, recipient)
	if err != nil {
		log.Error("Failed to fetch device tokens", "err", err)
		return err
	}

	var errs []error

	if len(devices.FCMTokens) > 0 && r.mobile != nil {
		receipt, invalid, err := r.mobile.Dispatch(ctx, devices.FCMTokens, content, data)
		for _, t := range invalid {
			if uerr := r.tokens.UnregisterFCM(ctx, recipient, t); uerr != nil {
				log.Warn("Failed to delete mobile token", "token", t, "err", uerr)
			}
		}
		if len(invalid) > 0 {
			log.Info("Cleaned up invalid mobile tokens", "count", len(invalid))
		}
		if err != nil {
			errs = append(errs, err)
		} else {
			log.Info("Mobile dispatched", "receipt", receipt)
		}
	}

	if len(devices.WebSubscriptions) > 0 && r.web != nil {
		receipt, invalid, err := r.web.Dispatch(ctx, devices.WebSubscriptions, content, data)
		for _, sub := range invalid {
			if uerr := r.tokens.UnregisterWeb(ctx, recipient, sub.Endpoint); uerr != nil {
				log.Warn("Failed to delete web subscription", "endpoint", sub.Endpoint, "err", uerr)
			}
		}
		if len(invalid) > 0 {
			log.Info("Cleaned up invalid web subscriptions", "count", len(invalid))
		}
		if err != nil {
			errs = append(errs, err)
		} else {
			log.Info("Web dispatched", "receipt", receipt)
		}
	}

	if len(devices.FCMTokens) == 0 && len(devices.WebSubscriptions) == 0 {
		log.Info("No devices registered for recipient; dropping notification")
	}

	return errors.Join(errs...)
}
