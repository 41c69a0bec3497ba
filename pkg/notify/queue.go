package notify

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrQueueFull   = errors.New("notification queue is full")
	ErrQueueClosed = errors.New("notification queue is closed")
)

// Queue buffers messages between the request path and delivery workers
type Queue interface {
	// Enqueue never blocks; it fails with ErrQueueFull or ErrQueueClosed
	Enqueue(ctx context.Context, msg Message) error
	// Dequeue blocks until a message is available. After Close it keeps
	// returning buffered messages, then ErrQueueClosed.
	Dequeue(ctx context.Context) (Message, error)
	Close() error
}

// ChannelQueue is a bounded in-process queue
type ChannelQueue struct {
	ch     chan Message
	mu     sync.RWMutex
	closed bool
}

// NewChannelQueue creates a queue holding at most size messages
func NewChannelQueue(size int) *ChannelQueue {
	if size <= 0 {
		size = 1
	}
	return &ChannelQueue{ch: make(chan Message, size)}
}

func (q *ChannelQueue) Enqueue(_ context.Context, msg Message) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *ChannelQueue) Dequeue(ctx context.Context) (Message, error) {
	select {
	case msg, ok := <-q.ch:
		if !ok {
			return Message{}, ErrQueueClosed
		}
		return msg, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (q *ChannelQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	return nil
}

// Len reports the number of buffered messages
func (q *ChannelQueue) Len() int {
	return len(q.ch)
}
