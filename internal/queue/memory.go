package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultVisibilityTimeout is the engine default lease window.
	DefaultVisibilityTimeout = 30 * time.Second

	// DefaultErrorRetryDelay is the base backoff applied on error-recovery
	// renewals; it doubles per delivery up to DefaultMaxErrorRetryDelay.
	DefaultErrorRetryDelay    = 5 * time.Second
	DefaultMaxErrorRetryDelay = 5 * time.Minute

	// DefaultMaxDeliveryCount bounds redeliveries before dead-lettering.
	DefaultMaxDeliveryCount = 10
)

// MemoryOptions configures a Memory queue.
type MemoryOptions struct {
	VisibilityTimeout  time.Duration
	ErrorRetryDelay    time.Duration
	MaxErrorRetryDelay time.Duration
	MaxDeliveryCount   int
}

type memoryEntry[T any] struct {
	id         string
	receipt    string
	payload    T
	visibleAt  time.Time
	deliveries int
	leased     bool
}

// Memory is an in-process Queue backend with visibility-timeout leasing,
// receipt rotation, and dead-lettering. It preserves the at-least-once
// semantics of a remote queue service so engine behavior under redelivery can
// be exercised without external infrastructure.
type Memory[T any] struct {
	name string
	opts MemoryOptions

	mu          sync.Mutex
	entries     []*memoryEntry[T]
	deadLetters []*memoryEntry[T]

	now func() time.Time
}

// NewMemory creates an in-memory queue with the supplied options; zero values
// fall back to the engine defaults.
func NewMemory[T any](name string, opts MemoryOptions) *Memory[T] {
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = DefaultVisibilityTimeout
	}
	if opts.ErrorRetryDelay <= 0 {
		opts.ErrorRetryDelay = DefaultErrorRetryDelay
	}
	if opts.MaxErrorRetryDelay <= 0 {
		opts.MaxErrorRetryDelay = DefaultMaxErrorRetryDelay
	}
	if opts.MaxDeliveryCount <= 0 {
		opts.MaxDeliveryCount = DefaultMaxDeliveryCount
	}
	return &Memory[T]{
		name: name,
		opts: opts,
		now:  time.Now,
	}
}

var _ Queue[int] = (*Memory[int])(nil)
var _ DeadLetterer[int] = (*Memory[int])(nil)

// Name returns the queue name.
func (q *Memory[T]) Name() string {
	return q.name
}

// Enqueue publishes a new work item.
func (q *Memory[T]) Enqueue(ctx context.Context, payload T) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	entry := &memoryEntry[T]{
		id:        uuid.NewString(),
		payload:   payload,
		visibleAt: q.now(),
	}
	q.entries = append(q.entries, entry)
	return entry.id, nil
}

// HasMessages reports whether at least one item is currently visible.
func (q *Memory[T]) HasMessages(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	for _, entry := range q.entries {
		if !entry.visibleAt.After(now) {
			return true, nil
		}
	}
	return false, nil
}

// Receive leases up to count visible items. Items that exceeded the maximum
// delivery count are moved to the dead-letter store instead of being returned.
func (q *Memory[T]) Receive(ctx context.Context, count int) ([]*Message[T], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var leased []*Message[T]
	remaining := q.entries[:0]

	for _, entry := range q.entries {
		if len(leased) >= count || entry.visibleAt.After(now) {
			remaining = append(remaining, entry)
			continue
		}

		entry.deliveries++
		if entry.deliveries > q.opts.MaxDeliveryCount {
			q.deadLetters = append(q.deadLetters, entry)
			continue
		}

		entry.receipt = uuid.NewString()
		entry.visibleAt = now.Add(q.opts.VisibilityTimeout)
		entry.leased = true
		leased = append(leased, q.message(entry))
		remaining = append(remaining, entry)
	}

	q.entries = remaining
	return leased, nil
}

// RenewLease extends the visibility of a held item. Returns nil when the
// receipt no longer matches, meaning the lease expired and the item was (or
// can be) redelivered to another consumer.
func (q *Memory[T]) RenewLease(ctx context.Context, msg *Message[T], errorRecovery bool) (*Message[T], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	entry := q.findLeased(msg)
	if entry == nil {
		return nil, nil
	}

	window := q.opts.VisibilityTimeout
	if errorRecovery {
		window = q.errorRetryWindow(entry.deliveries)
		// An error-recovery renewal ends this consumer's ownership: the item
		// reappears after the backoff window for the next delivery attempt.
		entry.leased = false
	}

	entry.receipt = uuid.NewString()
	entry.visibleAt = q.now().Add(window)

	if errorRecovery {
		return nil, nil
	}
	return q.message(entry), nil
}

// Delete removes a processed item. Idempotent: a stale receipt or an already
// deleted item returns false rather than an error.
func (q *Memory[T]) Delete(ctx context.Context, msg *Message[T]) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	for i, entry := range q.entries {
		if entry.id == msg.ID {
			if !entry.leased || entry.receipt != msg.Receipt || entry.visibleAt.Before(now) {
				return false, nil
			}
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// ReceiveDeadLetters drains the items that exceeded the maximum delivery count.
func (q *Memory[T]) ReceiveDeadLetters(ctx context.Context) ([]*Message[T], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	messages := make([]*Message[T], 0, len(q.deadLetters))
	for _, entry := range q.deadLetters {
		messages = append(messages, q.message(entry))
	}
	q.deadLetters = nil
	return messages, nil
}

func (q *Memory[T]) findLeased(msg *Message[T]) *memoryEntry[T] {
	now := q.now()
	for _, entry := range q.entries {
		if entry.id != msg.ID {
			continue
		}
		if !entry.leased || entry.receipt != msg.Receipt || entry.visibleAt.Before(now) {
			return nil
		}
		return entry
	}
	return nil
}

func (q *Memory[T]) errorRetryWindow(deliveries int) time.Duration {
	window := q.opts.ErrorRetryDelay
	for i := 1; i < deliveries; i++ {
		window *= 2
		if window >= q.opts.MaxErrorRetryDelay {
			return q.opts.MaxErrorRetryDelay
		}
	}
	return window
}

func (q *Memory[T]) message(entry *memoryEntry[T]) *Message[T] {
	return &Message[T]{
		ID:           entry.id,
		Receipt:      entry.receipt,
		DequeueCount: entry.deliveries,
		Payload:      entry.payload,
	}
}
