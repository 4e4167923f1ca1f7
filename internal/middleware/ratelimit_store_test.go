package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/policyhub/internal/database/testutil"
	"github.com/charlesng35/policyhub/internal/models"
)

func TestDatabaseRateStoreCountsWithinWindow(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := &stepClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	store, err := NewDatabaseRateStore(db, clock.Now)
	require.NoError(t, err)

	ctx := context.Background()
	for want := 1; want <= 3; want++ {
		count, ttl, err := store.Increment(ctx, "user-1|/api/permissions/evaluate", time.Minute)
		require.NoError(t, err)
		require.Equal(t, want, count)
		require.Equal(t, time.Minute, ttl)
	}

	other, _, err := store.Increment(ctx, "user-2|/api/permissions/evaluate", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, other)

	clock.Advance(90 * time.Second)
	count, ttl, err := store.Increment(ctx, "user-1|/api/permissions/evaluate", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, count, "a closed window starts a new count")
	require.Equal(t, time.Minute, ttl)
}

func TestDatabaseRateStorePrune(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := &stepClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	store, err := NewDatabaseRateStore(db, clock.Now)
	require.NoError(t, err)

	ctx := context.Background()
	_, _, err = store.Increment(ctx, "short", 10*time.Second)
	require.NoError(t, err)
	_, _, err = store.Increment(ctx, "long", time.Hour)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	removed, err := store.Prune(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	var keys []string
	require.NoError(t, db.Model(&models.RateCounter{}).Pluck("key", &keys).Error)
	require.Equal(t, []string{"long"}, keys)
}

func TestNewDatabaseRateStoreRequiresDB(t *testing.T) {
	_, err := NewDatabaseRateStore(nil, nil)
	require.Error(t, err)
}
