package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLock(t *testing.T, ttl time.Duration) (*RunLock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRunLock(rdb, "postflow:publish-run", ttl), mr
}

func TestRunLock_AcquireRelease(t *testing.T) {
	l, mr := newTestLock(t, time.Minute)
	ctx := context.Background()

	release, err := l.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, mr.Exists("postflow:publish-run"))

	_, err = l.Acquire(ctx)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists("postflow:publish-run"))

	release, err = l.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, release(ctx))
}

func TestRunLock_Expiry(t *testing.T) {
	l, mr := newTestLock(t, time.Minute)
	ctx := context.Background()

	stale, err := l.Acquire(ctx)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	current, err := l.Acquire(ctx)
	require.NoError(t, err)

	// the expired holder must not remove the new holder's key
	require.NoError(t, stale(ctx))
	assert.True(t, mr.Exists("postflow:publish-run"))

	require.NoError(t, current(ctx))
	assert.False(t, mr.Exists("postflow:publish-run"))
}
