package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viant/hitl/service/messaging"
)

// Config for memory queue implementation.
type Config struct {
	MaxRetries  int
	RetryDelay  time.Duration
	QueueBuffer int
}

// DefaultConfig returns a standard configuration for memory queue.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  3,
		RetryDelay:  100 * time.Millisecond,
		QueueBuffer: 100,
	}
}

// Message implements messaging.Message for the in-memory queue.
type Message[T any] struct {
	id         string
	payload    T
	queue      *Queue[T]
	retryCount int
	mu         sync.Mutex
	processed  bool
}

// T returns the message payload.
func (m *Message[T]) T() *T {
	return &m.payload
}

// Ack acknowledges the message as processed successfully.
func (m *Message[T]) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message already processed")
	}
	m.processed = true
	return nil
}

// Nack indicates a failure; the message is requeued until MaxRetries is
// exhausted.
func (m *Message[T]) Nack(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message already processed")
	}
	m.processed = true
	m.retryCount++
	if m.retryCount > m.queue.config.MaxRetries {
		return nil
	}
	go func() {
		time.Sleep(m.queue.config.RetryDelay)
		retry := &Message[T]{
			id:         m.id,
			payload:    m.payload,
			queue:      m.queue,
			retryCount: m.retryCount,
		}
		m.queue.messages <- retry
	}()
	return nil
}

// Queue implements an in-memory messaging.Queue.
type Queue[T any] struct {
	messages chan *Message[T]
	config   Config
}

// NewQueue creates a new in-memory queue.
func NewQueue[T any](config Config) *Queue[T] {
	if config.QueueBuffer <= 0 {
		config.QueueBuffer = DefaultConfig().QueueBuffer
	}
	return &Queue[T]{
		messages: make(chan *Message[T], config.QueueBuffer),
		config:   config,
	}
}

// Publish adds a new item to the queue. When the buffer is full the item is
// dropped with an error rather than blocking the publisher.
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	msg := &Message[T]{
		id:      uuid.New().String(),
		payload: *t,
		queue:   q,
	}
	select {
	case q.messages <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("queue full")
	}
}

// Consume retrieves a single item from the queue, blocking until one is
// available or ctx expires.
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	select {
	case msg := <-q.messages:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Size returns the current number of buffered messages.
func (q *Queue[T]) Size() int {
	return len(q.messages)
}

var _ messaging.Queue[any] = (*Queue[any])(nil)
