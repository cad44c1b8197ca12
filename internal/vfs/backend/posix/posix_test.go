package posix

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateWriteReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a", "b.txt")
	ctx := context.Background()
	b := New()

	require.NoError(t, b.CreateFile(ctx, path))
	assert.True(t, b.IsFile(ctx, path))
	assert.False(t, b.IsDir(ctx, path))

	require.NoError(t, b.Write(ctx, path, []byte("hello world"), false))

	size, err := b.FileSize(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, int64(len("hello world")), size)

	buf := make([]byte, 5)
	require.NoError(t, b.Read(ctx, path, 6, buf))
	assert.Equal(t, "world", string(buf))
}

func TestWriteAppend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.txt")
	ctx := context.Background()
	b := New()

	require.NoError(t, b.Write(ctx, path, []byte("abc"), false))
	require.NoError(t, b.Write(ctx, path, []byte("def"), true))

	buf := make([]byte, 6)
	require.NoError(t, b.Read(ctx, path, 0, buf))
	assert.Equal(t, "abcdef", string(buf))
}

func TestRemoveFileNotFoundIsOk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	b := New()

	err := b.RemoveFile(ctx, filepath.Join(dir, "missing.txt"))
	require.NoError(t, err)
}

func TestLsLexicographicOrder(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	b := New()

	for _, name := range []string{"c", "a", "b"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}

	entries, err := b.Ls(ctx, dir)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, filepath.Join(dir, "a"), entries[0].URI)
	assert.Equal(t, filepath.Join(dir, "b"), entries[1].URI)
	assert.Equal(t, filepath.Join(dir, "c"), entries[2].URI)
}

func TestMovePath(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	b := New()

	oldPath := filepath.Join(dir, "old.txt")
	newPath := filepath.Join(dir, "sub", "new.txt")
	require.NoError(t, b.Write(ctx, oldPath, []byte("data"), false))
	require.NoError(t, b.MovePath(ctx, oldPath, newPath))

	assert.False(t, b.IsFile(ctx, oldPath))
	assert.True(t, b.IsFile(ctx, newPath))
}

func TestFilelockRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lockme.txt")
	ctx := context.Background()
	b := New()

	require.NoError(t, b.CreateFile(ctx, path))

	lock, err := b.FilelockLock(ctx, path, false)
	require.NoError(t, err)
	assert.False(t, lock.IsNoop())

	require.NoError(t, b.FilelockUnlock(ctx, path, lock))
}

func TestFilelockDoubleUnlockFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lockme2.txt")
	ctx := context.Background()
	b := New()

	require.NoError(t, b.CreateFile(ctx, path))

	lock, err := b.FilelockLock(ctx, path, false)
	require.NoError(t, err)
	require.NoError(t, b.FilelockUnlock(ctx, path, lock))

	err = b.FilelockUnlock(ctx, path, lock)
	assert.Error(t, err)
}

func TestBucketOpsRejected(t *testing.T) {
	ctx := context.Background()
	b := New()

	assert.False(t, b.IsBucket(ctx, "/anything"))
	assert.Error(t, b.CreateBucket(ctx, "/anything"))
	assert.Error(t, b.RemoveBucket(ctx, "/anything"))
	assert.Error(t, b.EmptyBucket(ctx, "/anything"))
	_, err := b.IsEmptyBucket(ctx, "/anything")
	assert.Error(t, err)
}

func TestSupportsAppend(t *testing.T) {
	b := New()
	assert.True(t, b.SupportsAppend())
}

func TestCreateDirOnExistingDirFails(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	b := New()

	sub := filepath.Join(dir, "sub")
	require.NoError(t, b.CreateDir(ctx, sub))

	err := b.CreateDir(ctx, sub)
	require.Error(t, err)
}

func TestCreateDirIsNotRecursive(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	b := New()

	err := b.CreateDir(ctx, filepath.Join(dir, "missing-parent", "child"))
	require.Error(t, err)
}

// TestCreateFileRejectsTraversal covers the case where a caller skips
// AbsPath and passes a relative, ".."-prefixed path straight through:
// resolve() forwards the URI's raw path to the backend unchanged, so
// the backend itself must reject what it can't safely resolve against
// a known root.
func TestCreateFileRejectsTraversal(t *testing.T) {
	ctx := context.Background()
	b := New()

	err := b.CreateFile(ctx, "../../escaped.txt")
	require.Error(t, err)
}

func TestReadShortReadFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "short.txt")
	ctx := context.Background()
	b := New()

	require.NoError(t, b.Write(ctx, path, []byte("abc"), false))

	buf := make([]byte, 10)
	err := b.Read(ctx, path, 0, buf)
	require.Error(t, err)
}
