package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisadapter "github.com/systaxiecuador/hive/pkg/adapters/redis"
)

func TestLocker_AcquireAndRelease(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	locker := redisadapter.NewLocker(client, "hive:")

	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "run-1", 5*time.Second)
	require.NoError(t, err)

	// A second holder cannot acquire while the lock is held.
	shortCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(shortCtx, "run-1", 5*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// After release, acquisition succeeds again.
	require.NoError(t, unlock(ctx))
	unlock2, err := locker.Lock(ctx, "run-1", 5*time.Second)
	require.NoError(t, err)
	_ = unlock2(ctx)
}

func TestLocker_IndependentKeys(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	locker := redisadapter.NewLocker(client, "hive:")

	ctx := context.Background()

	unlockA, err := locker.Lock(ctx, "run-a", 5*time.Second)
	require.NoError(t, err)
	defer func() { _ = unlockA(ctx) }()

	// A different run id locks independently.
	unlockB, err := locker.Lock(ctx, "run-b", 5*time.Second)
	require.NoError(t, err)
	_ = unlockB(ctx)
}
