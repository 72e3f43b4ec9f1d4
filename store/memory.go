package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

const DefaultDedupCapacity = 1000

// MemoryDeduplicator is a bounded in-process seen set.
// When full it is cleared wholesale rather than evicting the oldest ids.
type MemoryDeduplicator struct {
	mu       sync.Mutex
	seen     map[string]struct{}
	capacity int
}

func NewMemoryDeduplicator(capacity int) *MemoryDeduplicator {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	return &MemoryDeduplicator{
		seen:     make(map[string]struct{}, capacity),
		capacity: capacity,
	}
}

func (d *MemoryDeduplicator) MarkSeen(_ context.Context, id string) (bool, error) {
	if id == "" {
		return true, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return false, nil
	}
	if len(d.seen) >= d.capacity {
		d.seen = make(map[string]struct{}, d.capacity)
	}
	d.seen[id] = struct{}{}
	return true, nil
}

// Len returns the number of ids currently held
func (d *MemoryDeduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

type memoryEntry[T any] struct {
	value     T
	expiresAt time.Time
}

// MemoryStateStore is a mutex-guarded map with an optional TTL per entry.
// Update callbacks run with the lock held and must not block.
type MemoryStateStore[T any] struct {
	mu      sync.Mutex
	entries map[string]memoryEntry[T]
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStateStore creates a store whose entries expire ttl after their last write.
// A zero ttl keeps entries until deleted.
func NewMemoryStateStore[T any](ttl time.Duration) *MemoryStateStore[T] {
	return &MemoryStateStore[T]{
		entries: make(map[string]memoryEntry[T]),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStateStore[T]) expired(e memoryEntry[T]) bool {
	return !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt)
}

func (s *MemoryStateStore[T]) Get(_ context.Context, key string) (T, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || s.expired(e) {
		var zero T
		return zero, false, nil
	}
	return e.value, true, nil
}

func (s *MemoryStateStore[T]) Update(_ context.Context, key string, fn func(cur T, exists bool) (T, error)) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if ok && s.expired(e) {
		delete(s.entries, key)
		e, ok = memoryEntry[T]{}, false
	}

	next, err := fn(e.value, ok)
	if err != nil {
		if errors.Is(err, ErrNoChange) {
			return e.value, err
		}
		var zero T
		return zero, err
	}

	entry := memoryEntry[T]{value: next}
	if s.ttl > 0 {
		entry.expiresAt = s.now().Add(s.ttl)
	}
	s.entries[key] = entry
	return next, nil
}

func (s *MemoryStateStore[T]) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStateStore[T]) DeletePrefix(_ context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			delete(s.entries, k)
		}
	}
	return nil
}

// Sweep drops expired entries and returns how many were removed
func (s *MemoryStateStore[T]) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, e := range s.entries {
		if s.expired(e) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired or not
func (s *MemoryStateStore[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
