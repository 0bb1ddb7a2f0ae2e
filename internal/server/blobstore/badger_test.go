package blobstore

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := NewBadgerStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBadgerStore_PutGetDelete(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	k1, k2 := ChunkKey("f1", "c1"), ChunkKey("f1", "c2")
	require.NoError(t, s.Put(ctx, k1, []byte("one")))
	require.NoError(t, s.Put(ctx, k2, []byte("two")))

	got, err := s.Get(ctx, k1)
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), got)

	require.NoError(t, s.Delete(ctx, k1, k2, "chunks/absent/x"))

	_, err = s.Get(ctx, k1)
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = s.Get(ctx, k2)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestBadgerStore_GetReturnsCopy(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", []byte("abc")))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	got[0] = 'z'

	again, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}

func TestBadgerStore_CanceledContext(t *testing.T) {
	s := newMemStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Put(ctx, "k", []byte("v")), context.Canceled)
	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.Delete(ctx, "k"), context.Canceled)
}

func TestBadgerStore_OnDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewBadgerStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "k", []byte("persisted")))
	require.NoError(t, s.Close())

	s, err = NewBadgerStore(dir)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted"), got)
}

func TestChunkKey(t *testing.T) {
	assert.Equal(t, "chunks/f/c", ChunkKey("f", "c"))
}
