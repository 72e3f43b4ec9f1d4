package worker

import (
	"context"
	"testing"
	"time"

	"instaflow/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct{ n int }

func (s *countingSweeper) Sweep() int { return s.n }

func TestStateJanitor_RunOnceSumsSweepers(t *testing.T) {
	sj := NewStateJanitor(0, testLogger(), &countingSweeper{n: 2}, &countingSweeper{n: 3})
	assert.Equal(t, 10*time.Minute, sj.Interval)
	assert.Equal(t, 5, sj.RunOnce())
}

func TestStateJanitor_EvictsExpiredMemoryState(t *testing.T) {
	ctx := context.Background()
	states := store.NewMemoryStateStore[string](20 * time.Millisecond)
	_, err := states.Update(ctx, "7:555", func(string, bool) (string, error) { return "awaiting_email", nil })
	require.NoError(t, err)
	require.Equal(t, 1, states.Len())

	time.Sleep(40 * time.Millisecond)
	sj := NewStateJanitor(time.Minute, testLogger(), states)
	assert.Equal(t, 1, sj.RunOnce())
	assert.Zero(t, states.Len())
}

func TestStateJanitor_StartReturnsWithoutSweepers(t *testing.T) {
	done := make(chan struct{})
	go func() {
		NewStateJanitor(time.Millisecond, testLogger()).Start(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor with nothing to sweep should return immediately")
	}
}
