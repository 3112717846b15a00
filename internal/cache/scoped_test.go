package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopedIsolation(t *testing.T) {
	c := NewScoped[string](16, time.Minute)
	c.Set("user-a", "travel", "tag-1")
	c.Set("user-b", "travel", "tag-2")

	v, ok := c.Get("user-a", "travel")
	require.True(t, ok)
	assert.Equal(t, "tag-1", v)

	c.InvalidateScope("user-a")
	_, ok = c.Get("user-a", "travel")
	assert.False(t, ok)
	v, ok = c.Get("user-b", "travel")
	require.True(t, ok)
	assert.Equal(t, "tag-2", v)

	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestGetOrLoad(t *testing.T) {
	c := NewScoped[int](16, time.Minute)
	calls := 0
	load := func() (int, error) {
		calls++
		return 7, nil
	}
	for i := 0; i < 3; i++ {
		v, err := c.GetOrLoad("moods", "happy", load)
		require.NoError(t, err)
		assert.Equal(t, 7, v)
	}
	assert.Equal(t, 1, calls)

	_, err := c.GetOrLoad("moods", "sad", func() (int, error) { return 0, errors.New("nope") })
	assert.Error(t, err)
	_, ok := c.Get("moods", "sad")
	assert.False(t, ok)
}

func TestScopedExpires(t *testing.T) {
	c := NewScoped[int](16, 20*time.Millisecond)
	c.Set("s", "k", 1)
	assert.Eventually(t, func() bool {
		_, ok := c.Get("s", "k")
		return !ok
	}, time.Second, 10*time.Millisecond)
}
