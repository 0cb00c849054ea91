package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAside(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := NewClient(mr.Addr())
	require.NoError(t, err)
	SetClient(rdb)
	t.Cleanup(func() { _ = Close() })

	ctx := context.Background()
	key := UsernameStateKey("u1")
	loads := 0
	load := func(dest *bool) func() error {
		return func() error {
			loads++
			*dest = true
			return nil
		}
	}

	var first bool
	require.NoError(t, Aside(ctx, key, &first, UsernameStateTTL, load(&first)))
	var second bool
	require.NoError(t, Aside(ctx, key, &second, UsernameStateTTL, load(&second)))
	assert.True(t, first)
	assert.True(t, second)
	assert.Equal(t, 1, loads, "second read is served from redis")

	mr.FastForward(UsernameStateTTL + time.Second)
	var third bool
	require.NoError(t, Aside(ctx, key, &third, UsernameStateTTL, load(&third)))
	assert.Equal(t, 2, loads)

	InvalidateProfile(ctx, "u1", "alice")
	assert.False(t, mr.Exists(key))
}

func TestAside_LoadErrorsAreNotCached(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := NewClient(mr.Addr())
	require.NoError(t, err)
	SetClient(rdb)
	t.Cleanup(func() { _ = Close() })

	boom := errors.New("db down")
	var v bool
	err = Aside(context.Background(), UsernameTakenKey("bob"), &v, UsernameTakenTTL, func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists(UsernameTakenKey("bob")))
}

func TestAside_NoClientFallsThrough(t *testing.T) {
	SetClient(nil)
	called := false
	var v bool
	require.NoError(t, Aside(context.Background(), "k", &v, time.Minute, func() error { called = true; return nil }))
	assert.True(t, called)
}
