package objectstore

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_PutGetRoundTrip(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "image-generation/org/req/img.jpg", "image/jpeg", []byte("bytes")))

	r, err := store.Get(ctx, "image-generation/org/req/img.jpg")
	require.NoError(t, err)
	defer r.Close()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "bytes", string(data))
}

func TestMemory_GetMissingKeyReturnsNotFound(t *testing.T) {
	store := NewMemory()
	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFilesystem_PutGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFilesystem(dir)
	require.NoError(t, err)

	ctx := context.Background()
	key := "image-generation/org/req/img.jpg"
	require.NoError(t, store.Put(ctx, key, "image/jpeg", []byte("on disk")))

	r, err := store.Get(ctx, key)
	require.NoError(t, err)
	defer r.Close()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "on disk", string(data))
	assert.FileExists(t, filepath.Join(dir, key))
}

func TestFilesystem_GetMissingKeyReturnsNotFound(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFilesystem(dir)
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
