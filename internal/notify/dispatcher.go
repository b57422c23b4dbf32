package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Dispatcher queues events and delivers them from a single goroutine so a
// slow sender never holds up a request. When the queue is full new events
// are dropped with a warning.
type Dispatcher struct {
	sender  Sender
	timeout time.Duration
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
	events chan Event
	done   chan struct{}
}

// NewDispatcher starts the delivery goroutine. queueSize bounds the
// number of undelivered events held in memory.
func NewDispatcher(sender Sender, queueSize int, timeout time.Duration) *Dispatcher {
	if queueSize < 1 {
		queueSize = 1
	}
	d := &Dispatcher{
		sender:  sender,
		timeout: timeout,
		now:     time.Now,
		events:  make(chan Event, queueSize),
		done:    make(chan struct{}),
	}
	go d.loop()
	return d
}

// Notify implements Notifier.
func (d *Dispatcher) Notify(e Event) {
	if e.At.IsZero() {
		e.At = d.now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		slog.Warn("notification after shutdown, dropping event", "user", e.UserID, "kind", e.Kind)
		return
	}
	select {
	case d.events <- e:
	default:
		slog.Warn("notification queue full, dropping event", "user", e.UserID, "kind", e.Kind)
	}
}

// Close stops accepting events, delivers what is queued and returns once
// the goroutine exits or ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.events)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for e := range d.events {
		d.deliver(e)
	}
}

func (d *Dispatcher) deliver(e Event) {
	ctx := context.Background()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	if err := d.sender.Send(ctx, e); err != nil {
		slog.Warn("notification delivery failed", "user", e.UserID, "kind", e.Kind, "error", err)
	}
}
