package asset

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestDiskStorePutAndDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDiskStore(dir, "http://cdn.test/assets/")
	require.NoError(t, err)

	ref, err := store.Put(context.Background(), Blob{Filename: "poster.png", Data: pngHeader})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "http://cdn.test/assets/"), ref)
	assert.True(t, strings.HasSuffix(ref, ".png"), ref)

	onDisk, err := os.ReadFile(filepath.Join(dir, keyFromRef(ref)))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, onDisk)

	require.NoError(t, store.Delete(context.Background(), ref))
	assert.ErrorIs(t, store.Delete(context.Background(), ref), ErrNotFound)
}

func TestDiskStoreRejectsNonImages(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), "http://cdn.test")
	require.NoError(t, err)

	_, err = store.Put(context.Background(), Blob{Data: []byte("plain text")})
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestDiskStoreDeleteStaysInsideDir(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDiskStore(filepath.Join(dir, "assets"), "http://cdn.test")
	require.NoError(t, err)
	outside := filepath.Join(dir, "keep.png")
	require.NoError(t, os.WriteFile(outside, pngHeader, 0o644))

	assert.ErrorIs(t, store.Delete(context.Background(), ".."), ErrNotFound)
	assert.ErrorIs(t, store.Delete(context.Background(), ""), ErrNotFound)
	_, err = os.Stat(outside)
	assert.NoError(t, err)
}

func TestNewDiskStoreRequiresDir(t *testing.T) {
	_, err := NewDiskStore("  ", "http://cdn.test")
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore("mem://assets")
	ctx := context.Background()

	ref, err := store.Put(ctx, Blob{Data: []byte("GIF89a....")})
	require.NoError(t, err)
	assert.True(t, store.Has(ref))
	assert.Equal(t, 1, store.Len())

	store.DeleteErr = errors.New("unavailable")
	assert.Error(t, store.Delete(ctx, ref))
	assert.True(t, store.Has(ref))

	store.DeleteErr = nil
	require.NoError(t, store.Delete(ctx, ref))
	assert.Equal(t, 0, store.Len())
	assert.ErrorIs(t, store.Delete(ctx, ref), ErrNotFound)

	store.PutErr = errors.New("quota")
	_, err = store.Put(ctx, Blob{Data: pngHeader})
	assert.Error(t, err)
}

func TestKeyFromRef(t *testing.T) {
	assert.Equal(t, "a.png", keyFromRef("http://x/y/a.png?v=2"))
	assert.Equal(t, "a.png", keyFromRef(" a.png "))
	assert.Equal(t, "", keyFromRef("http://x/y/"))
}
