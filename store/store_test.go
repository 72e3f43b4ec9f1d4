package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flowState struct {
	Step  string `json:"step"`
	Count int    `json:"count"`
}

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestMemoryDeduplicator(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDeduplicator(3)

	first, err := d.MarkSeen(ctx, "mid.1")
	require.NoError(t, err)
	assert.True(t, first)

	first, _ = d.MarkSeen(ctx, "mid.1")
	assert.False(t, first)

	first, _ = d.MarkSeen(ctx, "")
	assert.True(t, first)
	first, _ = d.MarkSeen(ctx, "")
	assert.True(t, first, "events without id are never deduplicated")
	assert.Equal(t, 1, d.Len())
}

func TestMemoryDeduplicator_ClearsWhenFull(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDeduplicator(3)

	for _, id := range []string{"a", "b", "c"} {
		first, _ := d.MarkSeen(ctx, id)
		require.True(t, first)
	}
	assert.Equal(t, 3, d.Len())

	first, _ := d.MarkSeen(ctx, "d")
	assert.True(t, first)
	assert.Equal(t, 1, d.Len(), "set is cleared wholesale before inserting")

	first, _ = d.MarkSeen(ctx, "d")
	assert.False(t, first, "the id that triggered the clear is retained")
	first, _ = d.MarkSeen(ctx, "a")
	assert.True(t, first)
}

func TestMemoryDeduplicator_ConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDeduplicator(DefaultDedupCapacity)

	var winners int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if first, _ := d.MarkSeen(ctx, "mid.retry"); first {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), winners)
}

func TestRedisDeduplicator(t *testing.T) {
	ctx := context.Background()
	client, mr := setupTestRedis(t)
	d := NewRedisDeduplicator(client, "dedup:", time.Minute)

	first, err := d.MarkSeen(ctx, "mid.1")
	require.NoError(t, err)
	assert.True(t, first)

	first, err = d.MarkSeen(ctx, "mid.1")
	require.NoError(t, err)
	assert.False(t, first)

	mr.FastForward(2 * time.Minute)
	first, err = d.MarkSeen(ctx, "mid.1")
	require.NoError(t, err)
	assert.True(t, first, "entry expires after ttl")

	mr.Close()
	_, err = d.MarkSeen(ctx, "mid.2")
	assert.Error(t, err)
}

func stateStores(t *testing.T) map[string]StateStore[flowState] {
	client, _ := setupTestRedis(t)
	return map[string]StateStore[flowState]{
		"memory": NewMemoryStateStore[flowState](time.Hour),
		"redis":  NewRedisStateStore[flowState](client, "flow:", time.Hour),
	}
}

func TestStateStore_UpdateAndGet(t *testing.T) {
	ctx := context.Background()
	for name, s := range stateStores(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Get(ctx, "7:sender")
			require.NoError(t, err)
			assert.False(t, ok)

			got, err := s.Update(ctx, "7:sender", func(cur flowState, exists bool) (flowState, error) {
				assert.False(t, exists)
				cur.Step = "follow_requested"
				return cur, nil
			})
			require.NoError(t, err)
			assert.Equal(t, "follow_requested", got.Step)

			v, ok, err := s.Get(ctx, "7:sender")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "follow_requested", v.Step)

			got, err = s.Update(ctx, "7:sender", func(cur flowState, exists bool) (flowState, error) {
				assert.True(t, exists)
				return cur, ErrNoChange
			})
			assert.ErrorIs(t, err, ErrNoChange)
			assert.Equal(t, "follow_requested", got.Step)

			boom := errors.New("boom")
			_, err = s.Update(ctx, "7:sender", func(cur flowState, exists bool) (flowState, error) {
				return flowState{Step: "lost"}, boom
			})
			assert.ErrorIs(t, err, boom)
			v, _, _ = s.Get(ctx, "7:sender")
			assert.Equal(t, "follow_requested", v.Step, "failed update is not written")
		})
	}
}

func TestStateStore_DeletePrefix(t *testing.T) {
	ctx := context.Background()
	for name, s := range stateStores(t) {
		t.Run(name, func(t *testing.T) {
			for _, key := range []string{"7:a", "7:b", "70:a", "8:a"} {
				_, err := s.Update(ctx, key, func(cur flowState, _ bool) (flowState, error) {
					cur.Count++
					return cur, nil
				})
				require.NoError(t, err)
			}

			require.NoError(t, s.DeletePrefix(ctx, "7:"))
			for key, want := range map[string]bool{"7:a": false, "7:b": false, "70:a": true, "8:a": true} {
				_, ok, err := s.Get(ctx, key)
				require.NoError(t, err)
				assert.Equal(t, want, ok, key)
			}

			require.NoError(t, s.Delete(ctx, "8:a"))
			_, ok, _ := s.Get(ctx, "8:a")
			assert.False(t, ok)
		})
	}
}

func TestStateStore_ConcurrentUpdatesAreSerialised(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStateStore[flowState](0)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, "k", func(cur flowState, _ bool) (flowState, error) {
				cur.Count++
				return cur, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	v, _, _ := s.Get(ctx, "k")
	assert.Equal(t, 100, v.Count)
}

func TestMemoryStateStore_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStateStore[flowState](time.Minute)
	s.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		_, err := s.Update(ctx, fmt.Sprintf("k%d", i), func(cur flowState, _ bool) (flowState, error) { return cur, nil })
		require.NoError(t, err)
	}

	now = now.Add(2 * time.Minute)
	_, ok, _ := s.Get(ctx, "k0")
	assert.False(t, ok)

	_, err := s.Update(ctx, "k0", func(cur flowState, exists bool) (flowState, error) {
		assert.False(t, exists, "expired entry starts fresh")
		return cur, nil
	})
	require.NoError(t, err)

	assert.Equal(t, 2, s.Sweep())
	assert.Equal(t, 1, s.Len())
}

func TestRedisStateStore_TTL(t *testing.T) {
	ctx := context.Background()
	client, mr := setupTestRedis(t)
	s := NewRedisStateStore[flowState](client, "flow:", time.Minute)

	_, err := s.Update(ctx, "k", func(cur flowState, _ bool) (flowState, error) { return cur, nil })
	require.NoError(t, err)
	assert.True(t, mr.Exists("flow:k"))

	mr.FastForward(2 * time.Minute)
	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
