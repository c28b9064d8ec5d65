package negotiation

import "context"

// ConflictStore is the persistence contract for conflicts. Implementations
// live in negotiation/store (memory, gorm, redis).
//
// Mutate is the transactional primitive: it loads the current conflict,
// applies fn to it, and commits the result atomically. If fn returns an
// error nothing is persisted. Concurrent Mutate calls on the same conflict
// are serialized by the implementation, which makes check-then-commit safe:
// the applicator verifies the status inside fn before committing side
// effects.
type ConflictStore interface {
	// Create persists a new conflict. Fails if the id already exists.
	Create(ctx context.Context, c *Conflict) error

	// Get returns a copy of the conflict with the given id, or
	// types.ErrConflictNotFound.
	Get(ctx context.Context, id string) (*Conflict, error)

	// Mutate atomically applies fn to the stored conflict and persists the
	// result. Returns the conflict as committed.
	Mutate(ctx context.Context, id string, fn func(*Conflict) error) (*Conflict, error)

	// List returns conflicts, optionally filtered by status ("" for all).
	List(ctx context.Context, status Status) ([]*Conflict, error)
}
