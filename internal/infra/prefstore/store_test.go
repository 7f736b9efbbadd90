package prefstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/19radio/internal/domain/content"
	"github.com/osa030/19radio/internal/domain/preference"
)

func setup(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestStore_PreferencesRoundTrip(t *testing.T) {
	ctx := context.Background()
	mr, rdb := setup(t)

	s, err := New(ctx, rdb, "test")
	require.NoError(t, err)

	kw, err := s.SetPreference(ctx, "u1", " City  Pop", preference.High, 3)
	require.NoError(t, err)
	assert.Equal(t, "city pop", kw)
	_, err = s.SetPreference(ctx, "u1", "jazz", preference.Low, 3)
	require.NoError(t, err)

	assert.Equal(t, "1", mr.HGet("test:prefs:u1", "city pop"))
	assert.Equal(t, "-1", mr.HGet("test:prefs:u1", "jazz"))

	reloaded, err := New(ctx, rdb, "test")
	require.NoError(t, err)
	level, ok := reloaded.Level("u1", "city pop")
	assert.True(t, ok)
	assert.Equal(t, preference.High, level)
	assert.Equal(t, []string{"city pop", "jazz"}, reloaded.Preferences("u1").Keywords())
	assert.Nil(t, reloaded.Preferences("u2"))
}

func TestStore_SetPreferenceErrors(t *testing.T) {
	ctx := context.Background()
	_, rdb := setup(t)
	s, err := New(ctx, rdb, "test")
	require.NoError(t, err)

	_, err = s.SetPreference(ctx, "u1", "rock", preference.High, 1)
	require.NoError(t, err)

	_, err = s.SetPreference(ctx, "u1", "pop", preference.High, 1)
	assert.True(t, errors.Is(err, preference.ErrLimitReached))

	_, err = s.SetPreference(ctx, "u1", "??", preference.High, 1)
	assert.True(t, errors.Is(err, content.ErrInvalidKeyword))

	_, err = s.SetPreference(ctx, "u1", "rock", preference.Low, 1)
	require.NoError(t, err)
	level, _ := s.Level("u1", "rock")
	assert.Equal(t, preference.Low, level)
}

func TestStore_FailedWriteLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	mr, rdb := setup(t)
	s, err := New(ctx, rdb, "test")
	require.NoError(t, err)

	mr.SetError("unavailable")
	_, err = s.SetPreference(ctx, "u1", "rock", preference.High, 5)
	assert.Error(t, err)
	mr.SetError("")

	_, ok := s.Level("u1", "rock")
	assert.False(t, ok)
}

func TestStore_ClearPreference(t *testing.T) {
	ctx := context.Background()
	mr, rdb := setup(t)
	s, err := New(ctx, rdb, "test")
	require.NoError(t, err)
	_, err = s.SetPreference(ctx, "u1", "rock", preference.High, 5)
	require.NoError(t, err)

	cleared, err := s.ClearPreference(ctx, "u1", "Rock")
	require.NoError(t, err)
	assert.True(t, cleared)
	assert.False(t, mr.Exists("test:prefs:u1"))

	cleared, err = s.ClearPreference(ctx, "u1", "rock")
	require.NoError(t, err)
	assert.False(t, cleared)
}

func TestStore_Ratings(t *testing.T) {
	ctx := context.Background()
	_, rdb := setup(t)
	s, err := New(ctx, rdb, "test")
	require.NoError(t, err)

	require.NoError(t, s.Rate(ctx, "x", "u1", 1))
	require.NoError(t, s.Rate(ctx, "x", "u2", 1))
	require.NoError(t, s.Rate(ctx, "x", "u3", -1))
	assert.Error(t, s.Rate(ctx, "x", "u4", 5))

	assert.Equal(t, 1, s.TotalRank("x"))
	assert.Equal(t, 2, s.RankAmong("x", []string{"u1", "u2", "nobody"}))
	assert.Equal(t, 0, s.TotalRank("y"))

	require.NoError(t, s.Rate(ctx, "x", "u3", 0))

	reloaded, err := New(ctx, rdb, "test")
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.TotalRank("x"))
	assert.Equal(t, 0, reloaded.RankAmong("x", []string{"u3"}))
}
