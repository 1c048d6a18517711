package redis

import (
	"context"
	"testing"
	"time"

	"github.com/PatrickalKhouri/ingredient-manager/internal/testutil/containers"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/errkind"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocker(t *testing.T) {
	server := containers.StartRedis(t)
	ctx := context.Background()

	client, err := NewClient(ctx, Config{Host: server.Host, Port: server.Port}, logging.Silent())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	locker := NewLocker(client)

	unlock, err := locker.Lock(ctx, "rematch", time.Minute)
	require.NoError(t, err)

	_, err = locker.Lock(ctx, "rematch", time.Minute)
	assert.Equal(t, errkind.Conflict, errkind.Of(err))

	require.NoError(t, unlock(ctx))

	unlock, err = locker.Lock(ctx, "rematch", time.Minute)
	require.NoError(t, err)
	require.NoError(t, unlock(ctx))
}

func TestLockerExpiredLockIsNotStolen(t *testing.T) {
	server := containers.StartRedis(t)
	ctx := context.Background()

	client, err := NewClient(ctx, Config{Host: server.Host, Port: server.Port}, logging.Silent())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	locker := NewLocker(client)

	stale, err := locker.Lock(ctx, "rematch", 50*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(150 * time.Millisecond)

	current, err := locker.Lock(ctx, "rematch", time.Minute)
	require.NoError(t, err)

	require.NoError(t, stale(ctx))
	_, err = locker.Lock(ctx, "rematch", time.Minute)
	assert.Equal(t, errkind.Conflict, errkind.Of(err), "stale release must not free the current holder")

	require.NoError(t, current(ctx))
}

func TestNewClientUnreachable(t *testing.T) {
	_, err := NewClient(context.Background(), Config{Host: "127.0.0.1", Port: 1}, logging.Silent())
	require.Error(t, err)
	assert.True(t, errkind.IsRetryable(err))
}
