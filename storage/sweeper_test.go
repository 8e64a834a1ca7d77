package storage

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSweeper_InvalidInterval(t *testing.T) {
	s, _ := setupTestStore(t)

	_, err := NewSweeper(s, zerolog.Nop(), WithSweepInterval(0))
	assert.Error(t, err)
}

func TestSweeperSweepOnce(t *testing.T) {
	s, clock := setupTestStore(t)
	sw, err := NewSweeper(s, zerolog.Nop())
	require.NoError(t, err)

	s.Set("a", "1", ttl(time.Second))
	s.Set("b", "2", nil)

	assert.Empty(t, sw.SweepOnce())

	clock.Advance(time.Second)
	assert.Equal(t, []string{"a"}, sw.SweepOnce())
	assert.Equal(t, 1, s.Len())

	// the sweeper never touches live values
	value, ok := s.Get("b")
	require.True(t, ok)
	assert.Equal(t, "2", value)
}

func TestSweeperRun_EvictsWithoutReads(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	sw, err := NewSweeper(s, zerolog.Nop(), WithSweepInterval(10*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sw.Run(ctx)
	}()

	s.Set("short", "v", ttl(20*time.Millisecond))
	s.Set("long", "v", ttl(time.Hour))

	assert.Eventually(t, func() bool {
		return s.Len() == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
