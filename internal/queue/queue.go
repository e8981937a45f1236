// Package queue defines the lease-based work item queue port used by the
// pipeline engine. The contract is at-least-once: an item whose lease expires
// before processing completes becomes visible again and may be redelivered, so
// consumers must be idempotent or de-duplicate before committing side effects.
package queue

import (
	"context"
)

// Message is a leased queue item wrapping a payload of type T. The Receipt is
// required to renew the lease or delete the item; it is rotated on every
// receive and renewal, so a stale receipt can no longer act on the item.
type Message[T any] struct {
	ID           string
	Receipt      string
	DequeueCount int
	Payload      T
}

// Queue is the generic lease-based queue contract.
type Queue[T any] interface {
	// Enqueue publishes a new work item and returns its message id.
	Enqueue(ctx context.Context, payload T) (string, error)

	// HasMessages reports whether at least one item is currently visible.
	// Used as an existence probe to avoid idle Receive polling.
	HasMessages(ctx context.Context) (bool, error)

	// Receive leases up to count items. Each returned item is invisible to
	// other consumers until its visibility window elapses.
	Receive(ctx context.Context, count int) ([]*Message[T], error)

	// RenewLease extends the visibility of a held item. errorRecovery signals
	// that the caller is retrying after a failure, letting the backend apply a
	// backoff-style window instead of the routine one. A nil message return
	// (with nil error) means the lease was already lost: the caller's work is
	// no longer its own and it must not write results for this item.
	RenewLease(ctx context.Context, msg *Message[T], errorRecovery bool) (*Message[T], error)

	// Delete removes the item after successful processing. Idempotent:
	// deleting an already-deleted or expired-lease item returns false.
	Delete(ctx context.Context, msg *Message[T]) (bool, error)
}

// DeadLetterer is implemented by backends that park items exceeding the
// maximum delivery count. The engine drains dead-lettered items and surfaces
// them as permanent failures on its next reconciliation.
type DeadLetterer[T any] interface {
	ReceiveDeadLetters(ctx context.Context) ([]*Message[T], error)
}
