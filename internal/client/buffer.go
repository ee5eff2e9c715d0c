package client

import (
	"sync"

	"github.com/cricklet/chessuci/internal/uci"
)

// responseBuffer queues parsed responses between the reader goroutine and
// Next. readyok is routed to the oldest Synchronize waiter when one exists.
type responseBuffer struct {
	mu       sync.Mutex
	buffer   []uci.Response
	updated  chan struct{}
	waiters  []chan struct{}
	closed   bool
	closeErr error
}

func newResponseBuffer() *responseBuffer {
	return &responseBuffer{updated: make(chan struct{})}
}

// notify must be called with mu held.
func (b *responseBuffer) notify() {
	close(b.updated)
	b.updated = make(chan struct{})
}

func (b *responseBuffer) Update(r uci.Response) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := r.(uci.ReadyOk); ok && len(b.waiters) > 0 {
		close(b.waiters[0])
		b.waiters = b.waiters[1:]
		return
	}
	b.buffer = append(b.buffer, r)
	b.notify()
}

// Close marks the end of the stream. Pending responses stay readable.
func (b *responseBuffer) Close(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.closeErr = err
	b.notify()
}

// Pop returns the oldest response, or the close error once drained. When
// neither is available it returns a channel that is closed on the next
// update.
func (b *responseBuffer) Pop() (uci.Response, error, <-chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buffer) > 0 {
		r := b.buffer[0]
		b.buffer[0] = nil
		b.buffer = b.buffer[1:]
		return r, nil, nil
	}
	if b.closed {
		return nil, b.closeErr, nil
	}
	return nil, nil, b.updated
}

// Wait registers a readyok waiter. The returned channel is closed when a
// readyok arrives for it.
func (b *responseBuffer) Wait() chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	waiter := make(chan struct{})
	b.waiters = append(b.waiters, waiter)
	return waiter
}

// Cancel forgets a waiter that gave up. It reports false when the waiter
// was already satisfied.
func (b *responseBuffer) Cancel(waiter chan struct{}) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, w := range b.waiters {
		if w == waiter {
			b.waiters = append(b.waiters[:i], b.waiters[i+1:]...)
			return true
		}
	}
	return false
}

func (b *responseBuffer) Done() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed, b.closeErr
}
