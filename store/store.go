// Package store holds the ephemeral, best-effort state shared between webhook deliveries:
// the seen-event set and per-conversation flow state. Both have an in-process implementation
// and a redis implementation behind the same interfaces.
package store

import (
	"context"
	"errors"
)

// ErrNoChange aborts an Update without writing
var ErrNoChange = errors.New("store: no change")

// Deduplicator records event ids that have already been handled
type Deduplicator interface {
	// MarkSeen atomically records id and reports whether this call was the first to see it.
	// An empty id is always reported as first.
	MarkSeen(ctx context.Context, id string) (bool, error)
}

// StateStore keeps one value of T per key
type StateStore[T any] interface {
	Get(ctx context.Context, key string) (T, bool, error)
	// Update runs fn under the key's lock and stores its result.
	// Returning ErrNoChange from fn leaves the value untouched and makes Update return the current value and ErrNoChange.
	Update(ctx context.Context, key string, fn func(cur T, exists bool) (T, error)) (T, error)
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
}
