package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore_GetSetDel(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisStore(mr.Addr())
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	require.NoError(t, s.Ping(ctx))

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	b, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), b)
	assert.Equal(t, time.Minute, mr.TTL("k"))

	mr.FastForward(2 * time.Minute)
	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "forever", []byte("v"), 0))
	assert.Equal(t, time.Duration(0), mr.TTL("forever"))
	require.NoError(t, s.Del(ctx, "forever"))
	assert.False(t, mr.Exists("forever"))
}

func TestRedisStore_Errors(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisStore(mr.Addr())
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	mr.SetError("LOADING redis is loading")
	_, _, err := s.Get(ctx, "k")
	assert.Error(t, err)
	assert.Error(t, s.Set(ctx, "k", []byte("v"), time.Minute))
}
