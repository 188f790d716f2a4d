package auction

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nextTick(t *testing.T, ticks <-chan int) int {
	t.Helper()
	select {
	case v := <-ticks:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timer produced no tick")
		return 0
	}
}

func TestTimerReconcilesEveryFifthTick(t *testing.T) {
	clock := clockwork.NewFakeClock()
	timer := NewTimer(clock)
	defer timer.Stop()

	var fetches atomic.Int32
	ticks := make(chan int, 16)
	timer.Start(context.Background(), TimerConfig{
		FetchRemaining: func(context.Context) (int, error) {
			fetches.Add(1)
			return 37, nil
		},
		LocalRemaining: func(time.Time) int { return 50 },
		OnTick:         func(s int) { ticks <- s },
		OnExpired:      func() { t.Error("unexpected expiry") },
	})

	clock.BlockUntil(1)
	var got []int
	for i := 0; i < 5; i++ {
		clock.Advance(time.Second)
		got = append(got, nextTick(t, ticks))
	}

	assert.Equal(t, []int{50, 50, 50, 50, 37}, got)
	assert.Equal(t, int32(1), fetches.Load())
}

func TestTimerFallsBackToLocalOnFetchFailure(t *testing.T) {
	clock := clockwork.NewFakeClock()
	timer := NewTimer(clock)
	defer timer.Stop()

	ticks := make(chan int, 16)
	timer.Start(context.Background(), TimerConfig{
		FetchRemaining: func(context.Context) (int, error) {
			return 0, errors.New("backend unavailable")
		},
		LocalRemaining: func(time.Time) int { return 42 },
		OnTick:         func(s int) { ticks <- s },
		OnExpired:      func() { t.Error("fetch failure must not expire the round") },
	})

	clock.BlockUntil(1)
	var got []int
	for i := 0; i < 5; i++ {
		clock.Advance(time.Second)
		got = append(got, nextTick(t, ticks))
	}

	assert.Equal(t, []int{42, 42, 42, 42, 42}, got)
	assert.True(t, timer.Running())
}

func TestTimerExpiresOnAuthoritativeZero(t *testing.T) {
	clock := clockwork.NewFakeClock()
	timer := NewTimer(clock)

	ticks := make(chan int, 16)
	expired := make(chan struct{})
	timer.Start(context.Background(), TimerConfig{
		FetchRemaining: func(context.Context) (int, error) { return 0, nil },
		LocalRemaining: func(time.Time) int { return 3 },
		OnTick:         func(s int) { ticks <- s },
		OnExpired:      func() { close(expired) },
	})

	clock.BlockUntil(1)
	var got []int
	for i := 0; i < 5; i++ {
		clock.Advance(time.Second)
		got = append(got, nextTick(t, ticks))
	}

	// Local extrapolation may still see seconds left; the backend's zero
	// wins and the loop shuts itself down.
	assert.Equal(t, []int{3, 3, 3, 3, 0}, got)
	select {
	case <-expired:
	case <-time.After(2 * time.Second):
		t.Fatal("OnExpired never fired")
	}
	require.False(t, timer.Running())
}

func TestTimerRestartReplacesLoop(t *testing.T) {
	clock := clockwork.NewFakeClock()
	timer := NewTimer(clock)
	defer timer.Stop()

	first := make(chan int, 16)
	timer.Start(context.Background(), TimerConfig{
		FetchRemaining: func(context.Context) (int, error) { return 10, nil },
		LocalRemaining: func(time.Time) int { return 10 },
		OnTick:         func(s int) { first <- s },
	})
	clock.BlockUntil(1)

	second := make(chan int, 16)
	timer.Start(context.Background(), TimerConfig{
		FetchRemaining: func(context.Context) (int, error) { return 20, nil },
		LocalRemaining: func(time.Time) int { return 20 },
		OnTick:         func(s int) { second <- s },
	})
	clock.BlockUntil(1)

	clock.Advance(time.Second)
	assert.Equal(t, 20, nextTick(t, second))
	select {
	case v := <-first:
		t.Fatalf("stopped loop still ticking: %d", v)
	default:
	}
	assert.True(t, timer.Running())

	timer.Stop()
	timer.Stop() // idempotent
	assert.False(t, timer.Running())
}
