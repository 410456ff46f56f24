package locking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestMemoryLocker_Exclusive(t *testing.T) {
	ctx := context.Background()
	locker := NewMemoryLocker()
	tenant := uuid.New()

	release, err := locker.Acquire(ctx, tenant, time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, tenant, time.Minute)
	require.ErrorIs(t, err, ErrLocked)

	other, err := locker.Acquire(ctx, uuid.New(), time.Minute)
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, release(ctx))
	again, err := locker.Acquire(ctx, tenant, time.Minute)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestMemoryLocker_Expires(t *testing.T) {
	ctx := context.Background()
	locker := NewMemoryLocker()
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	locker.now = func() time.Time { return now }
	tenant := uuid.New()

	stale, err := locker.Acquire(ctx, tenant, time.Minute)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	fresh, err := locker.Acquire(ctx, tenant, time.Minute)
	require.NoError(t, err)

	// the expired holder must not release the new lock
	require.NoError(t, stale(ctx))
	_, err = locker.Acquire(ctx, tenant, time.Minute)
	require.ErrorIs(t, err, ErrLocked)
	require.NoError(t, fresh(ctx))
}

func TestTenantGuard_ReleasesAfterRun(t *testing.T) {
	ctx := context.Background()
	locker := NewMemoryLocker()
	guard := NewTenantGuard(locker, time.Minute)
	tenant := uuid.New()

	err := guard.Run(ctx, tenant, func(ctx context.Context) error {
		err := guard.Run(ctx, tenant, func(context.Context) error { return nil })
		require.ErrorIs(t, err, ErrLocked)
		return nil
	})
	require.NoError(t, err)

	canceled, cancel := context.WithCancel(ctx)
	boom := errors.New("boom")
	err = guard.Run(canceled, tenant, func(context.Context) error {
		cancel()
		return boom
	})
	require.ErrorIs(t, err, boom)

	release, err := locker.Acquire(ctx, tenant, time.Minute)
	require.NoError(t, err)
	require.NoError(t, release(ctx))
}
