package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	s := miniredis.RunT(t)
	rdb, err := NewClient(context.Background(), Options{Addr: s.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return s, rdb
}

func TestMemoSet_MarkAndExpire(t *testing.T) {
	s, rdb := newTestClient(t)
	set := NewMemoSet(rdb, "")
	ctx := context.Background()

	seen, err := set.Seen(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, set.Mark(ctx, "abc", time.Hour))
	seen, err = set.Seen(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.True(t, s.Exists(DefaultMemoPrefix+"abc"))

	s.FastForward(2 * time.Hour)

	seen, err = set.Seen(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestMemoSet_MarkKeepsFirstExpiry(t *testing.T) {
	s, rdb := newTestClient(t)
	set := NewMemoSet(rdb, "test:")
	ctx := context.Background()

	require.NoError(t, set.Mark(ctx, "m", time.Minute))
	require.NoError(t, set.Mark(ctx, "m", time.Hour))

	assert.Equal(t, time.Minute, s.TTL("test:m"))
}

func TestNewClient_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := NewClient(ctx, Options{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
