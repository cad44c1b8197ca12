package s3

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vfsbackend "github.com/tiledb/vfs/internal/vfs/backend"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(context.Background(), &Config{Region: "us-east-1"}, nil)
	require.NoError(t, err)
	return b
}

func TestSplitPath(t *testing.T) {
	cases := []struct {
		in, bucket, key string
	}{
		{"/mybucket/a/b.txt", "mybucket", "a/b.txt"},
		{"mybucket/a/b.txt", "mybucket", "a/b.txt"},
		{"/mybucket/", "mybucket", ""},
		{"/mybucket", "mybucket", ""},
	}
	for _, c := range cases {
		bucket, key := splitPath(c.in)
		assert.Equal(t, c.bucket, bucket, "path %q", c.in)
		assert.Equal(t, c.key, key, "path %q", c.in)
	}
}

func TestSupportsAppend(t *testing.T) {
	b := newTestBackend(t)
	assert.False(t, b.SupportsAppend())
}

func TestOpenFileRejectsAppend(t *testing.T) {
	b := newTestBackend(t)
	err := b.OpenFile(context.Background(), "/bucket/key.txt", vfsbackend.ModeAppend)
	require.Error(t, err)
}

func TestWriteRejectsAppendMode(t *testing.T) {
	b := newTestBackend(t)
	err := b.Write(context.Background(), "/bucket/key.txt", []byte("x"), true)
	require.Error(t, err)
}

func TestWriteBuffersUntilClose(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Write(ctx, "/bucket/key.txt", []byte("abc"), false))
	require.NoError(t, b.Write(ctx, "/bucket/key.txt", []byte("def"), false))

	buf := b.buffers.get("/bucket/key.txt")
	assert.Equal(t, "abcdef", string(buf.bytes()))
}

func TestOpenFileWriteDiscardsStaleBuffer(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Write(ctx, "/bucket/key.txt", []byte("stale"), false))
	require.NoError(t, b.OpenFile(ctx, "/bucket/key.txt", vfsbackend.ModeWrite))

	buf := b.buffers.get("/bucket/key.txt")
	assert.Empty(t, buf.bytes())
}

func TestCloseFileNoBufferIsNoop(t *testing.T) {
	b := newTestBackend(t)
	err := b.CloseFile(context.Background(), "/bucket/never-opened.txt")
	assert.NoError(t, err)
}

func TestFilelockIsNoop(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	lock, err := b.FilelockLock(ctx, "/bucket/key.txt", false)
	require.NoError(t, err)
	assert.True(t, lock.IsNoop())

	require.NoError(t, b.FilelockUnlock(ctx, "/bucket/key.txt", lock))
}

func TestFilelockDoubleUnlockFails(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	lock, err := b.FilelockLock(ctx, "/bucket/key.txt", false)
	require.NoError(t, err)
	require.NoError(t, b.FilelockUnlock(ctx, "/bucket/key.txt", lock))

	err = b.FilelockUnlock(ctx, "/bucket/key.txt", lock)
	assert.Error(t, err)
}

func TestRemoveFileRejectsTrailingSlash(t *testing.T) {
	b := newTestBackend(t)
	err := b.RemoveFile(context.Background(), "/bucket/dir/")
	require.Error(t, err)
}
