package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	c, err := New(context.Background(), mr.Addr(), "", 0, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c, mr
}

func TestBlacklist(t *testing.T) {
	ctx := context.Background()
	c, mr := newCache(t)

	ok, err := c.IsBlacklisted(ctx, "token-a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Blacklist(ctx, "token-a", 90*time.Second))

	ok, err = c.IsBlacklisted(ctx, "token-a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 90*time.Second, mr.TTL("blacklist:token-a"))

	mr.FastForward(91 * time.Second)

	ok, err = c.IsBlacklisted(ctx, "token-a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBlacklist_RoundsTTLUp(t *testing.T) {
	ctx := context.Background()
	c, mr := newCache(t)

	require.NoError(t, c.Blacklist(ctx, "token-b", 1500*time.Millisecond))
	assert.Equal(t, 2*time.Second, mr.TTL("blacklist:token-b"))
}

func TestBlacklist_NonPositiveTTLIsNoop(t *testing.T) {
	ctx := context.Background()
	c, mr := newCache(t)

	require.NoError(t, c.Blacklist(ctx, "expired", 0))
	require.NoError(t, c.Blacklist(ctx, "expired", -time.Minute))

	assert.False(t, mr.Exists("blacklist:expired"))
}

func TestSessionMarker(t *testing.T) {
	ctx := context.Background()
	c, mr := newCache(t)

	require.NoError(t, c.SetSessionMarker(ctx, 42, 3, time.Hour))

	raw, err := mr.Get("session:42")
	require.NoError(t, err)
	assert.JSONEq(t, `{"generation":3}`, raw)
	assert.Equal(t, time.Hour, mr.TTL("session:42"))

	require.NoError(t, c.ClearSessionMarker(ctx, 42))
	assert.False(t, mr.Exists("session:42"))

	require.NoError(t, c.ClearSessionMarker(ctx, 42))
}

func TestUnreachableBackend(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	c := NewWithClient(client)
	t.Cleanup(func() { _ = c.Close() })

	mr.Close()

	_, err := c.IsBlacklisted(ctx, "token")
	require.Error(t, err)
	require.Error(t, c.Blacklist(ctx, "token", time.Minute))
	require.Error(t, c.SetSessionMarker(ctx, 1, 1, time.Minute))
	require.Error(t, c.ClearSessionMarker(ctx, 1))
}

func TestNew_PingFails(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(context.Background(), addr, "", 0, 100*time.Millisecond)
	require.Error(t, err)
}

func TestDial_PicksUpBackendLater(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	c := Dial(addr, "", 0, 100*time.Millisecond)
	t.Cleanup(func() { _ = c.Close() })

	require.Error(t, c.Ping(ctx))

	require.NoError(t, mr.Restart())

	require.NoError(t, c.Ping(ctx))
	require.NoError(t, c.Blacklist(ctx, "token", time.Minute))
	assert.True(t, mr.Exists("blacklist:token"))
}
