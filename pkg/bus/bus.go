// Package bus decouples the webhook handler from agent dispatch. Accepted
// inbound messages are queued here and consumed by a dispatcher goroutine,
// so the HTTP response never waits on downstream processing.
package bus

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrBusClosed is returned when publishing to a closed MessageBus.
var ErrBusClosed = errors.New("message bus closed")

// MessageBus carries accepted messages awaiting dispatch.
type MessageBus struct {
	accepted chan Message
	done     chan struct{}
	closed   atomic.Bool
}

// NewMessageBus creates a bus with a bounded queue.
func NewMessageBus() *MessageBus {
	return &MessageBus{
		accepted: make(chan Message, 100),
		done:     make(chan struct{}),
	}
}

// PublishAccepted queues a message for dispatch.
func (mb *MessageBus) PublishAccepted(ctx context.Context, msg Message) error {
	if mb.closed.Load() {
		return ErrBusClosed
	}
	select {
	case mb.accepted <- msg:
		return nil
	case <-mb.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConsumeAccepted blocks for the next accepted message. The second return is
// false when the bus is closed or the context is canceled.
func (mb *MessageBus) ConsumeAccepted(ctx context.Context) (Message, bool) {
	select {
	case msg, ok := <-mb.accepted:
		return msg, ok
	case <-mb.done:
		return Message{}, false
	case <-ctx.Done():
		return Message{}, false
	}
}

// Close shuts the bus down. Safe to call more than once.
func (mb *MessageBus) Close() {
	if mb.closed.CompareAndSwap(false, true) {
		close(mb.done)
	}
}
