//nolint:funlen // ok for tests
package loadercache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/racegrid/log"
	"github.com/mpapenbr/racegrid/pkg/utils/cache"
)

func TestLoaderCache_NoLoader(t *testing.T) {
	c := New[string, int](WithLogger[string, int](log.Nop()))
	_, err := c.Get(context.Background(), "a")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)

	v := 3
	c.Set(context.Background(), "a", &v)
	got, err := c.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 3, *got)
}

func TestLoaderCache_Loader(t *testing.T) {
	calls := 0
	c := New(
		WithLogger[string, int](log.Nop()),
		WithLoader[string, int](func(k string) (*int, error) {
			calls++
			if k == "bad" {
				return nil, errors.New("boom")
			}
			v := len(k)
			return &v, nil
		}),
	)
	got, err := c.Get(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, 3, *got)
	_, _ = c.Get(context.Background(), "abc")
	assert.Equal(t, 1, calls)

	_, err = c.Get(context.Background(), "bad")
	assert.Error(t, err)
	assert.Equal(t, 1, c.Len())
}

func TestLoaderCache_Expiration(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	c := New(
		WithLogger[string, int](log.Nop()),
		WithExpiration[string, int](time.Minute),
		WithClock[string, int](func() time.Time { return now }),
	)
	v := 1
	c.Set(context.Background(), "a", &v)
	now = now.Add(2 * time.Minute)
	_, err := c.Get(context.Background(), "a")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestLoaderCache_NoExpiration(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	c := New(
		WithLogger[string, int](log.Nop()),
		WithExpiration[string, int](0),
		WithClock[string, int](func() time.Time { return now }),
	)
	v := 1
	c.Set(context.Background(), "a", &v)
	now = now.Add(24 * time.Hour)
	got, err := c.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 1, *got)
}

func TestLoaderCache_Invalidate(t *testing.T) {
	c := New[string, int](WithLogger[string, int](log.Nop()))
	for i, k := range []string{"r1/a", "r1/b", "r2/a"} {
		v := i
		c.Set(context.Background(), k, &v)
	}
	c.Invalidate(context.Background(), "r1/a")
	assert.Equal(t, 2, c.Len())

	c.InvalidateFunc(context.Background(), func(k string) bool { return k[:2] == "r1" })
	assert.Equal(t, 1, c.Len())

	c.InvalidateAll(context.Background())
	assert.Equal(t, 0, c.Len())
}
