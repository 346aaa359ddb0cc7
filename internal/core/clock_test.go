package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	assert.False(t, now.Before(before) || now.After(after), "Now() = %v, want between %v and %v", now, before, after)
}

func TestRealClock_Since(t *testing.T) {
	clock := RealClock{}
	start := time.Now()
	time.Sleep(10 * time.Millisecond)

	assert.GreaterOrEqual(t, clock.Since(start), 10*time.Millisecond)
}

func TestRealClock_Sleep(t *testing.T) {
	clock := RealClock{}
	start := time.Now()

	require.NoError(t, clock.Sleep(context.Background(), 5*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestRealClock_SleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RealClock{}.Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRealClock_SleepNonPositive(t *testing.T) {
	assert.NoError(t, RealClock{}.Sleep(context.Background(), 0))
	assert.NoError(t, RealClock{}.Sleep(context.Background(), -time.Second))
}

func TestFakeClock_Advance(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)

	assert.Equal(t, start, clock.Now())
	assert.Zero(t, clock.Since(start))

	clock.Advance(10 * time.Second)
	clock.Advance(20 * time.Second)

	assert.Equal(t, start.Add(30*time.Second), clock.Now())
	assert.Equal(t, 30*time.Second, clock.Since(start))
}

func TestFakeClock_Set(t *testing.T) {
	clock := NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	newTime := time.Date(2025, 6, 15, 12, 30, 0, 0, time.UTC)
	clock.Set(newTime)

	assert.Equal(t, newTime, clock.Now())
}

func TestFakeClock_SleepAdvances(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)

	require.NoError(t, clock.Sleep(context.Background(), 250*time.Millisecond))
	require.NoError(t, clock.Sleep(context.Background(), 0))
	require.NoError(t, clock.Sleep(context.Background(), 750*time.Millisecond))

	assert.Equal(t, start.Add(time.Second), clock.Now())
	assert.Equal(t, []time.Duration{250 * time.Millisecond, 0, 750 * time.Millisecond}, clock.Slept())
}

func TestFakeClock_SleepCancelled(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, clock.Sleep(ctx, time.Minute), context.Canceled)
	assert.Equal(t, start, clock.Now())
	assert.Empty(t, clock.Slept())
}

func TestSeconds(t *testing.T) {
	assert.Equal(t, 250*time.Millisecond, Seconds(0.25))
	assert.Equal(t, 2*time.Second, Seconds(2))
	assert.Equal(t, time.Duration(0), Seconds(0))
}
