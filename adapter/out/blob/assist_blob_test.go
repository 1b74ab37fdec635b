package blob

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"assist_server/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_PutGet(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	key := "tenants/t1/blobs/abc"
	require.NoError(t, store.Put(ctx, key, []byte("hello"), "text/plain"))

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	ok, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	// overwrite
	require.NoError(t, store.Put(ctx, key, []byte("bye"), "text/plain"))
	got, err = store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "bye", string(got))
}

func TestLocalStore_NoTempFilesLeft(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), "a/b", []byte("x"), ""))

	entries, err := os.ReadDir(filepath.Join(root, "a"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b", entries[0].Name())
}

func TestLocalStore_NotFound(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(ctx, "missing/key")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))

	ok, err := store.Exists(ctx, "missing/key")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, store.Delete(ctx, "missing/key"))
}

func TestLocalStore_RejectsTraversal(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "/etc/passwd", "../escape", "a/../../b", "a//b", `a\b`, "./a"} {
		t.Run(key, func(t *testing.T) {
			err := store.Put(ctx, key, []byte("x"), "")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidKey))
		})
	}
}

func TestWithPrefix(t *testing.T) {
	assert.Equal(t, "a/b", withPrefix("", "a/b"))
	assert.Equal(t, "docs/a/b", withPrefix("/docs/", "a/b"))
}
