package notify

import (
	"context"
	"log"
	"sync"
)

// MemoryQueue delivers messages on goroutines spawned per message.
// Suitable for single-node deployments; delivery failures are logged
// and dropped.
type MemoryQueue struct {
	notifier Notifier

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewMemoryQueue wraps a notifier in a fire-and-forget queue.
func NewMemoryQueue(n Notifier) *MemoryQueue {
	return &MemoryQueue{notifier: n}
}

// Enqueue dispatches the message asynchronously and returns at once.
func (q *MemoryQueue) Enqueue(ctx context.Context, m Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.wg.Add(1)
	q.mu.Unlock()

	go func() {
		defer q.wg.Done()
		// Deliberately detached from the request context: the send
		// outlives the HTTP call that triggered it.
		if err := q.notifier.Send(context.Background(), m); err != nil {
			log.Printf("[ERROR] notify: send to %s failed: %v", m.To, err)
			return
		}
		log.Printf("[INFO] notify: sent %q to %s", m.Subject, m.To)
	}()
	return nil
}

// Close waits for in-flight sends to finish.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wg.Wait()
}

// CollectQueue records messages instead of delivering them. Test use.
type CollectQueue struct {
	mu       sync.Mutex
	Messages []Message

	// FailWith, when set, is returned from Enqueue without recording.
	FailWith error
}

// Enqueue records the message.
func (q *CollectQueue) Enqueue(ctx context.Context, m Message) error {
	if q.FailWith != nil {
		return q.FailWith
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.Messages = append(q.Messages, m)
	return nil
}

// Sent returns a copy of the recorded messages.
func (q *CollectQueue) Sent() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Message, len(q.Messages))
	copy(out, q.Messages)
	return out
}

// Reset clears the recorded messages.
func (q *CollectQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.Messages = nil
}
