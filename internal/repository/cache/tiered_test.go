package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Guyuepp/pretty-like/domain"
)

type mockHashGetter struct {
	mock.Mock
}

func (m *mockHashGetter) HGet(ctx context.Context, key, field string) (string, error) {
	args := m.Called(ctx, key, field)
	return args.String(0), args.Error(1)
}

func TestTieredCache_BackingMissDoesNotTouchDetector(t *testing.T) {
	remote := new(mockHashGetter)
	remote.On("HGet", mock.Anything, "thumb:user:1", "7").Return("", domain.ErrCacheMiss)
	hk := NewHeavyKeeper(10, 1000, 3, 0.92, 1)
	c := NewTieredCache(remote, hk, 10, time.Minute)

	v, ok, err := c.Get(context.TODO(), "thumb:user:1", "7")

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, v)
	assert.Equal(t, int64(0), hk.Total())
	remote.AssertExpectations(t)
}

func TestTieredCache_ColdValueNotPromoted(t *testing.T) {
	remote := new(mockHashGetter)
	remote.On("HGet", mock.Anything, "thumb:user:1", "7").Return("42", nil).Twice()
	hk := NewHeavyKeeper(10, 1000, 3, 0.92, 3)
	c := NewTieredCache(remote, hk, 10, time.Minute)

	for i := 0; i < 2; i++ {
		v, ok, err := c.Get(context.TODO(), "thumb:user:1", "7")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "42", v)
	}

	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(2), hk.Total())
	remote.AssertExpectations(t)
}

func TestTieredCache_HotValuePromotedAndServedLocally(t *testing.T) {
	remote := new(mockHashGetter)
	remote.On("HGet", mock.Anything, "thumb:user:1", "7").Return("42", nil).Times(3)
	hk := NewHeavyKeeper(10, 1000, 3, 0.92, 3)
	c := NewTieredCache(remote, hk, 10, time.Minute)

	for i := 0; i < 3; i++ {
		_, _, err := c.Get(context.TODO(), "thumb:user:1", "7")
		require.NoError(t, err)
	}
	require.Equal(t, 1, c.Len())

	v, ok, err := c.Get(context.TODO(), "thumb:user:1", "7")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "42", v)
	assert.Equal(t, int64(4), hk.Total())
	remote.AssertExpectations(t)
}

func TestTieredCache_BackingErrorSurfaces(t *testing.T) {
	remote := new(mockHashGetter)
	remote.On("HGet", mock.Anything, "thumb:user:1", "7").Return("", domain.ErrBackingStoreUnavailable)
	c := NewTieredCache(remote, NewHeavyKeeper(10, 1000, 3, 0.92, 1), 10, time.Minute)

	_, ok, err := c.Get(context.TODO(), "thumb:user:1", "7")

	assert.False(t, ok)
	assert.True(t, errors.Is(err, domain.ErrBackingStoreUnavailable))
}

func TestTieredCache_PutIfPresent(t *testing.T) {
	remote := new(mockHashGetter)
	remote.On("HGet", mock.Anything, "thumb:user:1", "7").Return("42", nil).Once()
	c := NewTieredCache(remote, NewHeavyKeeper(10, 1000, 3, 0.92, 1), 10, time.Minute)

	c.PutIfPresent("thumb:user:1", "8", "1")
	assert.Equal(t, 0, c.Len())

	_, _, err := c.Get(context.TODO(), "thumb:user:1", "7")
	require.NoError(t, err)
	c.PutIfPresent("thumb:user:1", "7", "0")

	v, ok, err := c.Get(context.TODO(), "thumb:user:1", "7")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "0", v)
	remote.AssertExpectations(t)
}

func TestTieredCache_LocalTierExpires(t *testing.T) {
	remote := new(mockHashGetter)
	remote.On("HGet", mock.Anything, "thumb:user:1", "7").Return("42", nil).Twice()
	c := NewTieredCache(remote, NewHeavyKeeper(10, 1000, 3, 0.92, 1), 10, 50*time.Millisecond)

	_, _, err := c.Get(context.TODO(), "thumb:user:1", "7")
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())

	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 10*time.Millisecond)

	_, ok, err := c.Get(context.TODO(), "thumb:user:1", "7")
	require.NoError(t, err)
	assert.True(t, ok)
	remote.AssertExpectations(t)
}
