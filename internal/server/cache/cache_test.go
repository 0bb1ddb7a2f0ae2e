package cache

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T, ttl time.Duration) *FileCache {
	t.Helper()
	c, err := New(100, ttl)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestFileCache_SetGetDelete(t *testing.T) {
	c := newCache(t, time.Minute)

	require.True(t, c.Set(&models.File{ID: "f1", Name: "a.txt", Version: 1}))
	c.Wait()

	got, ok := c.Get("f1")
	require.True(t, ok)
	assert.Equal(t, "a.txt", got.Name)

	c.Delete("f1")
	c.Wait()
	_, ok = c.Get("f1")
	assert.False(t, ok)
}

func TestFileCache_GetReturnsCopy(t *testing.T) {
	c := newCache(t, time.Minute)

	f := &models.File{ID: "f1", Name: "a.txt"}
	c.Set(f)
	c.Wait()
	f.Name = "changed"

	got, ok := c.Get("f1")
	require.True(t, ok)
	got.Version = 42

	again, ok := c.Get("f1")
	require.True(t, ok)
	assert.Equal(t, "a.txt", again.Name)
	assert.Equal(t, int64(0), again.Version)
}

func TestFileCache_Expires(t *testing.T) {
	c := newCache(t, 50*time.Millisecond)

	c.Set(&models.File{ID: "f1"})
	c.Wait()

	assert.Eventually(t, func() bool {
		_, ok := c.Get("f1")
		return !ok
	}, 2*time.Second, 20*time.Millisecond)
}

func TestFileCache_NilIgnored(t *testing.T) {
	c := newCache(t, time.Minute)
	assert.False(t, c.Set(nil))
}
