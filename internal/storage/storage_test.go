package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir(), "http://files.test/files/")
	require.NoError(t, err)

	url, err := store.AddFile(ctx, "previews/abc/offer.csv", []byte("a,b\n"))
	require.NoError(t, err)
	assert.Equal(t, "http://files.test/files/previews/abc/offer.csv", url)

	data, err := store.GetFile(ctx, "previews/abc/offer.csv")
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(data))

	require.NoError(t, store.DeleteFile(ctx, "previews/abc/offer.csv"))
	_, err = store.GetFile(ctx, "previews/abc/offer.csv")
	assert.ErrorIs(t, err, ErrFileNotFound)
	assert.ErrorIs(t, store.DeleteFile(ctx, "previews/abc/offer.csv"), ErrFileNotFound)
}

func TestLocalStore_Overwrite(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir(), "/files")
	require.NoError(t, err)

	_, err = store.AddFile(ctx, "doc.html", []byte("v1"))
	require.NoError(t, err)
	_, err = store.AddFile(ctx, "doc.html", []byte("v2"))
	require.NoError(t, err)

	data, err := store.GetFile(ctx, "doc.html")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestCleanName(t *testing.T) {
	valid := map[string]string{
		"a.csv":         "a.csv",
		"/a/b.csv":      "a/b.csv",
		" dir/file.txt": "dir/file.txt",
	}
	for in, want := range valid {
		got, err := CleanName(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	for _, bad := range []string{"", "/", "../etc/passwd", "a/../../b", "a//b", "a/./b"} {
		_, err := CleanName(bad)
		assert.ErrorIs(t, err, ErrInvalidName, bad)
	}
}
