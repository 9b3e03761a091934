package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruworg/stash/internal/sanitize"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func writeTestFile(t *testing.T, store *Store, linkID, name, content string) string {
	t.Helper()

	dir, err := store.EnsureDir(linkID)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestListSortsNewestFirst(t *testing.T) {
	store := setupTestStore(t)

	older := writeTestFile(t, store, "link1", "older.txt", "one")
	writeTestFile(t, store, "link1", "newer.txt", "two")

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older, past, past))

	files, err := store.List("link1")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "newer.txt", files[0].Name)
	assert.Equal(t, "older.txt", files[1].Name)
	assert.Equal(t, int64(3), files[0].Size)
	assert.NotEmpty(t, files[0].SizeHuman)
}

func TestListHidesPartialUploads(t *testing.T) {
	store := setupTestStore(t)

	writeTestFile(t, store, "link1", "done.txt", "committed")
	writeTestFile(t, store, "link1", "inflight.txt.part", "partial bytes")
	writeTestFile(t, store, "link1", "inflight.txt.12345.tmp", "chunk bytes")

	files, err := store.List("link1")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "done.txt", files[0].Name)

	usage, err := store.Usage("link1")
	require.NoError(t, err)
	assert.Equal(t, int64(len("committed")), usage)
}

func TestListMissingDirIsEmpty(t *testing.T) {
	store := setupTestStore(t)

	files, err := store.List("nosuchlink")
	require.NoError(t, err)
	assert.Empty(t, files)

	usage, err := store.Usage("nosuchlink")
	require.NoError(t, err)
	assert.Zero(t, usage)
}

func TestFilePathContainment(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.FilePath("link1", "../escape.txt")
	assert.ErrorIs(t, err, sanitize.ErrPathEscape)

	_, err = store.Dir("../otherlink")
	assert.ErrorIs(t, err, sanitize.ErrPathEscape)
}

func TestRemoveIsIdempotent(t *testing.T) {
	store := setupTestStore(t)

	writeTestFile(t, store, "link1", "doc.txt", "bytes")

	require.NoError(t, store.Remove("link1", "doc.txt"))
	require.NoError(t, store.Remove("link1", "doc.txt"))

	usage, err := store.Usage("link1")
	require.NoError(t, err)
	assert.Zero(t, usage)
}

func TestReclaimIsIdempotent(t *testing.T) {
	store := setupTestStore(t)

	writeTestFile(t, store, "link1", "a.txt", "aaa")
	writeTestFile(t, store, "link1", "b.txt", "bbb")

	require.NoError(t, store.Reclaim("link1"))

	dir, err := store.Dir("link1")
	require.NoError(t, err)
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))

	// A directory that is already gone is a no-op delete.
	require.NoError(t, store.Reclaim("link1"))
}

func TestFileSize(t *testing.T) {
	store := setupTestStore(t)

	writeTestFile(t, store, "link1", "doc.txt", "12345")

	size, err := store.FileSize("link1", "doc.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)

	size, err = store.FileSize("link1", "absent.txt")
	require.NoError(t, err)
	assert.Zero(t, size)
}
