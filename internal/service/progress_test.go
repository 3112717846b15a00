package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressReporterThrottlesCheckpoints(t *testing.T) {
	var flushed []Progress
	p := NewProgressReporter(func(ctx context.Context, snap Progress) error {
		flushed = append(flushed, snap)
		return nil
	}, 3, 0)
	ctx := context.Background()

	p.Band(30, 90)
	p.SetTotal(6)
	for i := 1; i <= 6; i++ {
		p.Advance(i, 0)
		require.NoError(t, p.Checkpoint(ctx))
	}
	require.Len(t, flushed, 2)
	assert.Equal(t, Progress{Percent: 60, Processed: 3, Total: 6}, flushed[0])
	assert.Equal(t, Progress{Percent: 90, Processed: 6, Total: 6}, flushed[1])

	require.NoError(t, p.Milestone(ctx, 95))
	require.Len(t, flushed, 3)
	assert.Equal(t, 95, flushed[2].Percent)
}

func TestProgressReporterTimeThrottle(t *testing.T) {
	calls := 0
	p := NewProgressReporter(func(ctx context.Context, snap Progress) error {
		calls++
		return nil
	}, 100, 5*time.Second)
	clock := time.Unix(1700000000, 0)
	p.now = func() time.Time { return clock }
	ctx := context.Background()

	p.SetTotal(1000)
	p.Advance(1, 0)
	require.NoError(t, p.Checkpoint(ctx))
	assert.Equal(t, 1, calls)
	p.Advance(2, 0)
	require.NoError(t, p.Checkpoint(ctx))
	assert.Equal(t, 1, calls)
	clock = clock.Add(5 * time.Second)
	p.Advance(3, 0)
	require.NoError(t, p.Checkpoint(ctx))
	assert.Equal(t, 2, calls)
}

func TestProgressReporterNeverGoesBack(t *testing.T) {
	p := NewProgressReporter(nil, 1, 0)
	ctx := context.Background()
	require.NoError(t, p.Milestone(ctx, 50))
	p.Band(10, 50)
	p.SetTotal(4)
	p.Advance(1, 0)
	assert.Equal(t, 50, p.Snapshot().Percent)
	require.NoError(t, p.Milestone(ctx, 20))
	assert.Equal(t, 50, p.Snapshot().Percent)
	require.NoError(t, p.Milestone(ctx, 150))
	assert.Equal(t, 100, p.Snapshot().Percent)

	p.Advance(7, 1)
	snap := p.Snapshot()
	assert.Equal(t, 8, snap.Total)
	assert.Equal(t, 1, snap.Failed)
}

func TestProgressReporterStopsOnCancelledContext(t *testing.T) {
	called := false
	p := NewProgressReporter(func(ctx context.Context, snap Progress) error {
		called = true
		return nil
	}, 1, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Milestone(ctx, 10), context.Canceled)
	assert.False(t, called)
}
