// Package commandmux demultiplexes the single inbound response stream
// from a lock's command characteristic into per-command waiters, and
// fans unsolicited notifications out to whoever is currently waiting
// for one. It has no notion of encryption, framing, or the meaning of
// any particular command byte: it only correlates commands with
// replies and rebroadcasts everything else.
package commandmux

import (
	"context"
	"sync"
	"time"
)

// Response is one decoded reply, correlated to the request that
// produced it by Command.
type Response struct {
	Command byte
	Payload []byte
}

// Notification is an unsolicited message: any dispatched message whose
// command byte no pending request was waiting for (lock status
// changes, the signed-time acknowledgment, and so on).
type Notification struct {
	Command byte
	Payload []byte
}

// MapFn interprets a raw Response into the caller's result type,
// including translating a lock-side error/result code into a Go
// error. It runs on the mux's dispatch path, so it must not block.
type MapFn func(Response) (interface{}, error)

// Mux demultiplexes one command byte's worth of request/response
// correlation at a time and fans out notifications to any number of
// concurrent waiters. It is safe for concurrent use.
type Mux struct {
	mu      sync.Mutex
	pending map[byte]chan Response
	closed  bool
	closeCh chan struct{}

	subMu sync.Mutex
	subs  map[chan Notification]struct{}
}

// New creates an empty Mux.
func New() *Mux {
	return &Mux{
		pending: make(map[byte]chan Response),
		subs:    make(map[chan Notification]struct{}),
		closeCh: make(chan struct{}),
	}
}

// Request registers a one-shot waiter for command, invokes send to
// transmit the request, and blocks until a matching Response arrives,
// ctx is done, or timeout elapses. send is called only after the
// waiter is registered, so a reply that arrives before send returns
// cannot be missed.
//
// Only one Request per command byte may be outstanding at a time;
// a second concurrent call for the same command fails immediately
// with ErrPending, matching the lock's own single-outstanding-command
// contract per characteristic.
func (m *Mux) Request(ctx context.Context, command byte, timeout time.Duration, send func() error, mapFn MapFn) (interface{}, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if _, exists := m.pending[command]; exists {
		m.mu.Unlock()
		return nil, ErrPending
	}
	ch := make(chan Response, 1)
	m.pending[command] = ch
	m.mu.Unlock()

	cleanup := func() {
		m.mu.Lock()
		if cur, ok := m.pending[command]; ok && cur == ch {
			delete(m.pending, command)
		}
		m.mu.Unlock()
	}

	if err := send(); err != nil {
		cleanup()
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		return mapFn(resp)
	case <-timer.C:
		cleanup()
		return nil, ErrTimeout
	case <-ctx.Done():
		cleanup()
		return nil, ctx.Err()
	case <-m.closeCh:
		cleanup()
		return nil, ErrClosed
	}
}

// Dispatch delivers one decoded inbound message: if a Request is
// currently waiting on its command byte, it is completed; otherwise
// the message is published to the notification bus.
func (m *Mux) Dispatch(command byte, payload []byte) {
	m.mu.Lock()
	ch, exists := m.pending[command]
	if exists {
		delete(m.pending, command)
	}
	m.mu.Unlock()

	if exists {
		ch <- Response{Command: command, Payload: payload}
		return
	}
	m.publish(Notification{Command: command, Payload: payload})
}

// Subscribe returns a channel that receives every notification
// published after this call, and an unsubscribe function. The channel
// is unbuffered from the bus's perspective: a slow subscriber misses
// notifications rather than building a backlog, matching the lock's
// own "latest status wins" semantics for unsolicited updates.
func (m *Mux) Subscribe() (<-chan Notification, func()) {
	ch := make(chan Notification)
	m.subMu.Lock()
	m.subs[ch] = struct{}{}
	m.subMu.Unlock()

	cancel := func() {
		m.subMu.Lock()
		if _, ok := m.subs[ch]; ok {
			delete(m.subs, ch)
			close(ch)
		}
		m.subMu.Unlock()
	}
	return ch, cancel
}

func (m *Mux) publish(n Notification) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for ch := range m.subs {
		select {
		case ch <- n:
		default:
		}
	}
}

// AwaitNotification blocks until a Notification matching filter is
// published, ctx is done, or timeout elapses. filter may be nil to
// match the first notification of any kind.
func (m *Mux) AwaitNotification(ctx context.Context, timeout time.Duration, filter func(Notification) bool) (Notification, error) {
	ch, cancel := m.Subscribe()
	defer cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case n, ok := <-ch:
			if !ok {
				return Notification{}, ErrNotificationClose
			}
			if filter == nil || filter(n) {
				return n, nil
			}
		case <-timer.C:
			return Notification{}, ErrTimeout
		case <-ctx.Done():
			return Notification{}, ctx.Err()
		}
	}
}

// Close releases the mux: pending requests fail with ErrClosed and all
// notification subscriptions are closed.
func (m *Mux) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.pending = make(map[byte]chan Response)
	close(m.closeCh)
	m.mu.Unlock()

	m.subMu.Lock()
	for ch := range m.subs {
		close(ch)
	}
	m.subs = make(map[chan Notification]struct{})
	m.subMu.Unlock()
}
