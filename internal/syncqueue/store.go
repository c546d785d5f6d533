package syncqueue

import "context"

// Store persists queued mutations. Ordering is the store's contract: Pending
// returns mutations in enqueue order, and that order survives process
// restarts.
type Store interface {
	// Append adds the mutation unless its idempotency key was already seen;
	// the bool reports whether it was inserted.
	Append(ctx context.Context, m PendingMutation) (bool, error)

	// Pending returns all queued mutations, FIFO by enqueue order.
	Pending(ctx context.Context) ([]PendingMutation, error)

	// Remove deletes a mutation after replay (successful or dead-lettered).
	Remove(ctx context.Context, m PendingMutation) error

	DeadLetter(ctx context.Context, d DeadLetter) error
	DeadLetters(ctx context.Context) ([]DeadLetter, error)
}
