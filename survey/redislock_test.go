package survey

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisLocker(t *testing.T) Locker {
	t.Helper()

	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		require.NoError(t, client.Close())
	})

	return NewRedisLocker(client)
}

func TestRedisLocker_LockAndUnlock(t *testing.T) {
	locker := newRedisLocker(t)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "user-1")
	require.NoError(t, err)
	unlock()

	// The key is free again
	unlock, err = locker.Lock(ctx, "user-1")
	require.NoError(t, err)
	unlock()
}

func TestRedisLocker_BlocksSecondHolder(t *testing.T) {
	locker := newRedisLocker(t)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "user-1")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		unlock2, err := locker.Lock(ctx, "user-1")
		if err == nil {
			unlock2()
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("lock acquired while held")
	case <-time.After(100 * time.Millisecond):
	}

	unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock not acquired after release")
	}
}

func TestRedisLocker_DifferentKeysDoNotBlock(t *testing.T) {
	locker := newRedisLocker(t)
	ctx := context.Background()

	unlock1, err := locker.Lock(ctx, "user-1")
	require.NoError(t, err)
	defer unlock1()

	ctx2, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	unlock2, err := locker.Lock(ctx2, "user-2")
	require.NoError(t, err)
	unlock2()
}

func TestRedisLocker_RespectsContextCancellation(t *testing.T) {
	locker := newRedisLocker(t)

	unlock, err := locker.Lock(context.Background(), "user-1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = locker.Lock(ctx, "user-1")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
