package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const maxUpdateRetries = 5

// ErrConflict is returned when an optimistic update keeps losing to concurrent writers
var ErrConflict = errors.New("store: too many concurrent updates")

// RedisDeduplicator records seen ids with SETNX so every replica shares one seen set.
// Entries expire after ttl instead of being cleared wholesale.
type RedisDeduplicator struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisDeduplicator(client *redis.Client, prefix string, ttl time.Duration) *RedisDeduplicator {
	return &RedisDeduplicator{client: client, prefix: prefix, ttl: ttl}
}

func (d *RedisDeduplicator) MarkSeen(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return true, nil
	}
	first, err := d.client.SetNX(ctx, d.prefix+id, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return first, nil
}

// RedisStateStore stores JSON-encoded values and serialises updates with WATCH/MULTI
type RedisStateStore[T any] struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStateStore[T any](client *redis.Client, prefix string, ttl time.Duration) *RedisStateStore[T] {
	return &RedisStateStore[T]{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStateStore[T]) read(ctx context.Context, c redis.Cmdable, key string) (T, bool, error) {
	var v T
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return v, false, nil
	}
	if err != nil {
		return v, false, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, false, fmt.Errorf("decode state %s: %w", key, err)
	}
	return v, true, nil
}

func (s *RedisStateStore[T]) Get(ctx context.Context, key string) (T, bool, error) {
	return s.read(ctx, s.client, s.prefix+key)
}

func (s *RedisStateStore[T]) Update(ctx context.Context, key string, fn func(cur T, exists bool) (T, error)) (T, error) {
	var zero T
	full := s.prefix + key

	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		var (
			result T
			fnErr  error
		)

		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			cur, exists, err := s.read(ctx, tx, full)
			if err != nil {
				return err
			}

			next, err := fn(cur, exists)
			if err != nil {
				result, fnErr = cur, err
				return nil
			}

			data, err := json.Marshal(next)
			if err != nil {
				return fmt.Errorf("encode state %s: %w", key, err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, full, data, s.ttl)
				return nil
			})
			if err == nil {
				result = next
			}
			return err
		}, full)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return zero, err
		}
		if fnErr != nil {
			if errors.Is(fnErr, ErrNoChange) {
				return result, fnErr
			}
			return zero, fnErr
		}
		return result, nil
	}
	return zero, ErrConflict
}

func (s *RedisStateStore[T]) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

func (s *RedisStateStore[T]) DeletePrefix(ctx context.Context, prefix string) error {
	iter := s.client.Scan(ctx, 0, s.prefix+prefix+"*", 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			if err := s.client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return s.client.Del(ctx, batch...).Err()
	}
	return nil
}
