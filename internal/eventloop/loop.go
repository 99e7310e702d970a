// Package eventloop serializes platform events onto a single goroutine.
package eventloop

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tinywideclouds/go-notification-dispatch/pkg/notify"
)

// ErrStopped is returned by Post once the loop has been stopped.
var ErrStopped = errors.New("eventloop: stopped")

// Sink consumes events. notificationmanager.Manager satisfies it.
type Sink interface {
	CustomEvent(ev notify.Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev notify.Event)

func (f SinkFunc) CustomEvent(ev notify.Event) { f(ev) }

// Loop delivers posted events to its Sink one at a time, in posting order.
// Every event Post accepts reaches the Sink, even when it is queued at the
// moment the loop stops.
type Loop struct {
	sink   Sink
	events chan notify.Event
	logger *slog.Logger

	// mu is held shared by Post for the whole send and exclusively by
	// shutdown, so no event can enter the buffer after the final drain.
	mu      sync.RWMutex
	closed  bool
	started atomic.Bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func New(sink Sink, buffer int, logger *slog.Logger) *Loop {
	if buffer <= 0 {
		buffer = 1
	}
	return &Loop{
		sink:   sink,
		events: make(chan notify.Event, buffer),
		logger: logger.With("component", "EventLoop"),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start runs the loop until Stop is called or ctx is cancelled. Either way
// the loop refuses new events and drains the ones it already accepted.
func (l *Loop) Start(ctx context.Context) {
	if !l.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		select {
		case <-ctx.Done():
			l.shutdown()
		case <-l.stop:
		}
	}()
	go l.run()
}

func (l *Loop) run() {
	defer close(l.done)
	l.logger.Debug("Event loop started")
	for {
		select {
		case <-l.stop:
			l.drain()
			return
		case ev := <-l.events:
			l.sink.CustomEvent(ev)
		}
	}
}

func (l *Loop) drain() {
	n := 0
	for {
		select {
		case ev := <-l.events:
			l.sink.CustomEvent(ev)
			n++
		default:
			if n > 0 {
				l.logger.Debug("Event loop drained", "events", n)
			}
			return
		}
	}
}

func (l *Loop) shutdown() {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.stop)
		l.mu.Unlock()
	})
}

// Post queues ev. It blocks only while the buffer is full, and gives up when
// ctx is done. After the loop has stopped it returns ErrStopped.
func (l *Loop) Post(ctx context.Context, ev notify.Event) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrStopped
	}
	select {
	case l.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop refuses further events and waits until every accepted event has been
// delivered. A loop that was never started discards its buffer.
func (l *Loop) Stop(ctx context.Context) error {
	l.shutdown()
	if !l.started.Load() {
		return nil
	}
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
