package businessflow

import (
	"context"
	"testing"
	"time"

	"github.com/simurgh-io/simurgh/models"
	"github.com/simurgh-io/simurgh/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResetFixture(t *testing.T, zone *time.Location) (*fakeInstanceRepo, *fakeMarkerRepo, DailyResetFlow) {
	t.Helper()
	instanceRepo := newFakeInstanceRepo()
	markerRepo := newFakeMarkerRepo()
	flow := NewDailyResetFlow(instanceRepo, markerRepo, nil, nil, zone, 0)
	return instanceRepo, markerRepo, flow
}

func TestShouldReset(t *testing.T) {
	ctx := context.Background()

	t.Run("DueWhenNeverRun", func(t *testing.T) {
		_, _, flow := newResetFixture(t, time.UTC)
		due, err := flow.ShouldReset(ctx)
		require.NoError(t, err)
		assert.True(t, due)
	})

	t.Run("NotDueWithinSameBoundary", func(t *testing.T) {
		_, markerRepo, flow := newResetFixture(t, time.UTC)
		today := utils.BoundaryDateIn(utils.UTCNow(), time.UTC)
		require.NoError(t, markerRepo.Upsert(ctx, models.DailyResetMarkerName, today))

		due, err := flow.ShouldReset(ctx)
		require.NoError(t, err)
		assert.False(t, due)
	})

	t.Run("DueAfterBoundaryPasses", func(t *testing.T) {
		_, markerRepo, flow := newResetFixture(t, time.UTC)
		yesterday := utils.BoundaryDateIn(utils.UTCNow().Add(-24*time.Hour), time.UTC)
		require.NoError(t, markerRepo.Upsert(ctx, models.DailyResetMarkerName, yesterday))

		due, err := flow.ShouldReset(ctx)
		require.NoError(t, err)
		assert.True(t, due)
	})

	t.Run("BoundaryFollowsConfiguredZone", func(t *testing.T) {
		tehran, err := time.LoadLocation("Asia/Tehran")
		require.NoError(t, err)
		_, markerRepo, flow := newResetFixture(t, tehran)

		// A marker stamped with today's Tehran date means not due, even when
		// the UTC date differs.
		today := utils.BoundaryDateIn(utils.UTCNow(), tehran)
		require.NoError(t, markerRepo.Upsert(ctx, models.DailyResetMarkerName, today))

		due, err := flow.ShouldReset(ctx)
		require.NoError(t, err)
		assert.False(t, due)
	})
}

func TestNextResetTime(t *testing.T) {
	_, _, flow := newResetFixture(t, time.UTC)

	next := flow.NextResetTime()
	now := utils.UTCNow()

	assert.True(t, next.After(now))
	assert.LessOrEqual(t, next.Sub(now), 24*time.Hour)
	assert.Equal(t, 0, next.Hour())
	assert.Equal(t, 0, next.Minute())
	assert.Equal(t, 0, next.Second())
}

func TestLastResetBoundary(t *testing.T) {
	ctx := context.Background()

	t.Run("EmptyWhenNeverRun", func(t *testing.T) {
		_, _, flow := newResetFixture(t, time.UTC)
		boundary, err := flow.LastResetBoundary(ctx)
		require.NoError(t, err)
		assert.Empty(t, boundary)
	})

	t.Run("ReturnsStoredBoundary", func(t *testing.T) {
		_, markerRepo, flow := newResetFixture(t, time.UTC)
		require.NoError(t, markerRepo.Upsert(ctx, models.DailyResetMarkerName, "2026-08-31"))

		boundary, err := flow.LastResetBoundary(ctx)
		require.NoError(t, err)
		assert.Equal(t, "2026-08-31", boundary)
	})
}

func TestZeroDailyCountersSweep(t *testing.T) {
	ctx := context.Background()
	repo := newFakeInstanceRepo()
	until := utils.UTCNow().Add(time.Hour)
	spent := repo.add(&models.Instance{
		Name:                "spent",
		ProviderID:          1,
		SentToday:           40,
		ErrorToday:          3,
		RateLimitCountToday: 2,
		CooldownUntil:       &until,
	})
	idle := repo.add(&models.Instance{Name: "idle", ProviderID: 1})

	n, err := repo.ZeroDailyCounters(ctx)
	require.NoError(t, err)
	// Unconditional sweep touches every row, including already-zero ones
	assert.Equal(t, int64(2), n)

	got := repo.get(spent.ID)
	assert.Zero(t, got.SentToday)
	assert.Zero(t, got.ErrorToday)
	assert.Zero(t, got.RateLimitCountToday)
	// The sweep zeroes counters only; a cooldown still in force survives
	// the boundary and expires on its own clock
	require.NotNil(t, got.CooldownUntil)
	assert.True(t, got.CooldownUntil.Equal(until))

	// Second sweep inside the same boundary is a no-op on values
	n, err = repo.ZeroDailyCounters(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Zero(t, repo.get(idle.ID).SentToday)
}

func TestBoundaryDateIn(t *testing.T) {
	tehran, err := time.LoadLocation("Asia/Tehran")
	require.NoError(t, err)

	// 22:00 UTC is already the next day in Tehran (UTC+3:30)
	at := time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-10", utils.BoundaryDateIn(at, time.UTC))
	assert.Equal(t, "2026-03-11", utils.BoundaryDateIn(at, tehran))

	next := utils.NextMidnightIn(at, tehran)
	assert.True(t, next.After(at))
	assert.Equal(t, "2026-03-12", utils.BoundaryDateIn(next, tehran))
}
