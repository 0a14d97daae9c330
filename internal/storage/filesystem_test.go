package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *FilesystemStore {
	t.Helper()
	s, err := NewFilesystemStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestFilesystemStorePutAndList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	info, err := s.Put(ctx, "uploads/abc/notes.txt", strings.NewReader("hello"), 0)
	require.NoError(t, err)
	assert.Equal(t, "uploads/abc/notes.txt", info.Key)
	assert.EqualValues(t, 5, info.Size)

	_, err = s.Put(ctx, "uploads/abc/nested/photo.png", strings.NewReader("png"), 0)
	require.NoError(t, err)
	_, err = s.Put(ctx, "uploads/def/cv.pdf", strings.NewReader("pdf"), 0)
	require.NoError(t, err)

	prefixes, err := s.ListPrefixes(ctx, "uploads/")
	require.NoError(t, err)
	assert.Equal(t, []string{"uploads/abc/", "uploads/def/"}, prefixes)

	objects, err := s.ListObjects(ctx, "uploads/abc/")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "uploads/abc/nested/photo.png", objects[0].Key)
	assert.Equal(t, "uploads/abc/notes.txt", objects[1].Key)
	assert.False(t, objects[0].LastModified.IsZero())
}

func TestFilesystemStoreListMissingRoot(t *testing.T) {
	s := newTestStore(t)

	prefixes, err := s.ListPrefixes(context.Background(), "uploads/")
	require.NoError(t, err)
	assert.Empty(t, prefixes)

	objects, err := s.ListObjects(context.Background(), "uploads/none/")
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestFilesystemStoreDeleteBatchPrunesPrefix(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Put(ctx, "uploads/abc/a.txt", strings.NewReader("a"), 0)
	require.NoError(t, err)
	_, err = s.Put(ctx, "uploads/abc/b/c.txt", strings.NewReader("c"), 0)
	require.NoError(t, err)

	require.NoError(t, s.DeleteBatch(ctx, []string{"uploads/abc/a.txt", "uploads/abc/b/c.txt"}))

	prefixes, err := s.ListPrefixes(ctx, "uploads/")
	require.NoError(t, err)
	assert.Empty(t, prefixes)

	// deleting again is a no-op
	require.NoError(t, s.DeleteBatch(ctx, []string{"uploads/abc/a.txt"}))
}

func TestFilesystemStoreRejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, key := range []string{"", "/", "uploads\\x", "uploads/abc/"} {
		_, err := s.Put(ctx, key, strings.NewReader("x"), 0)
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}

	// ".." is cleaned against the root, so it cannot climb out
	info, err := s.Put(ctx, "../../etc/owned", strings.NewReader("x"), 0)
	require.NoError(t, err)
	assert.Equal(t, "etc/owned", info.Key)
	assert.FileExists(t, s.Root()+"/etc/owned")
}

func TestFilesystemStoreDeleteBatchLimit(t *testing.T) {
	s := newTestStore(t)
	keys := make([]string, MaxDeleteBatch+1)
	for i := range keys {
		keys[i] = "uploads/x/k"
	}
	assert.ErrorIs(t, s.DeleteBatch(context.Background(), keys), ErrBatchTooLarge)
}

func TestFilesystemStorePutTooLargeKeepsExisting(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Put(ctx, "uploads/abc/id.png", strings.NewReader("small"), 8)
	require.NoError(t, err)

	_, err = s.Put(ctx, "uploads/abc/id.png", strings.NewReader("much too large"), 8)
	assert.ErrorIs(t, err, ErrTooLarge)

	objects, err := s.ListObjects(ctx, "uploads/abc/")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.EqualValues(t, 5, objects[0].Size)

	// a rejected first upload leaves no empty prefix behind
	_, err = s.Put(ctx, "uploads/new/big.bin", strings.NewReader("much too large"), 8)
	assert.ErrorIs(t, err, ErrTooLarge)
	prefixes, err := s.ListPrefixes(ctx, "uploads/")
	require.NoError(t, err)
	assert.Equal(t, []string{"uploads/abc/"}, prefixes)
}
