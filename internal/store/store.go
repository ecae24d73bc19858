// Package store provides the embedded libSQL persistence layer: a local
// object store for submissions and the dead-letter journal replayed by the
// sweeper.
package store

import "context"

// Store is the persistence interface over the embedded database.
type Store interface {
	// Objects.
	PutObject(ctx context.Context, obj *Object) error
	ObjectExists(ctx context.Context, namespace, key string) (bool, error)

	// Dead letters.
	EnqueueDeadLetter(ctx context.Context, dl *DeadLetter) error
	ListDeadLetters(ctx context.Context, limit int) ([]*DeadLetter, error)
	MarkDeadLetterAttempt(ctx context.Context, id string, lastError string) error
	DeleteDeadLetter(ctx context.Context, id string) error

	// Maintenance.
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error
	Close() error
}
