package queue

import (
	"sync"
)

// Provider hands out the queue for a (run, stage) pair. Stage queues are
// addressed by name so multiple stage runner loops, in or across processes,
// reach the same backing queue.
type Provider[T any] interface {
	StageQueue(runID, stage string) Queue[T]
}

// MemoryProvider lazily materializes in-memory stage queues.
type MemoryProvider[T any] struct {
	opts MemoryOptions

	mu     sync.Mutex
	queues map[string]*Memory[T]
}

// NewMemoryProvider creates a provider whose queues share the given options.
func NewMemoryProvider[T any](opts MemoryOptions) *MemoryProvider[T] {
	return &MemoryProvider[T]{
		opts:   opts,
		queues: make(map[string]*Memory[T]),
	}
}

var _ Provider[int] = (*MemoryProvider[int])(nil)

// StageQueue returns the queue for the (run, stage) pair, creating it on
// first use.
func (p *MemoryProvider[T]) StageQueue(runID, stage string) Queue[T] {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := runID + "/" + stage
	q, ok := p.queues[key]
	if !ok {
		q = NewMemory[T](key, p.opts)
		p.queues[key] = q
	}
	return q
}
