package vfs

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	s3backend "github.com/tiledb/vfs/internal/vfs/backend/s3"
)

func newTestVFS(t *testing.T, threshold int64, workers int) *VFS {
	t.Helper()
	v, err := New(context.Background(), Config{
		NumParallelOperations: workers,
		ParallelReadThreshold: threshold,
	})
	require.NoError(t, err)
	t.Cleanup(v.Close)
	return v
}

func TestCreateWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	uriStr := filepath.Join(dir, "a.txt")
	ctx := context.Background()
	v := newTestVFS(t, 1<<20, 4)

	require.NoError(t, v.CreateFile(ctx, uriStr))
	require.NoError(t, v.Write(ctx, uriStr, []byte("hello world"), false))

	size, err := v.FileSize(ctx, uriStr)
	require.NoError(t, err)
	assert.Equal(t, int64(len("hello world")), size)

	buf := make([]byte, 5)
	require.NoError(t, v.Read(ctx, uriStr, 6, buf))
	assert.Equal(t, "world", string(buf))
}

// TestShardedReadMatchesSingleShardRead is the property test required
// by the parallel-read invariant: reading the same bytes below and
// above the sharding threshold must produce identical content,
// regardless of how many workers split the request.
func TestShardedReadMatchesSingleShardRead(t *testing.T) {
	dir := t.TempDir()
	uriStr := filepath.Join(dir, "big.bin")
	ctx := context.Background()

	data := make([]byte, 1<<20) // 1 MiB
	for i := range data {
		data[i] = byte(i % 251)
	}

	unsharded := newTestVFS(t, 1<<30, 4) // threshold above len(data): single shard
	require.NoError(t, unsharded.CreateFile(ctx, uriStr))
	require.NoError(t, unsharded.Write(ctx, uriStr, data, false))

	wantBuf := make([]byte, len(data))
	require.NoError(t, unsharded.Read(ctx, uriStr, 0, wantBuf))

	sharded := newTestVFS(t, 0, 8) // threshold 0: always shards
	gotBuf := make([]byte, len(data))
	require.NoError(t, sharded.Read(ctx, uriStr, 0, gotBuf))

	assert.Equal(t, wantBuf, gotBuf)
	assert.Equal(t, data, gotBuf)
}

// TestParallelReadScenario exercises the concrete scenario from
// spec.md §8.3: a 16 MiB file, a 1 MiB threshold, and a 4-worker pool.
func TestParallelReadScenario(t *testing.T) {
	dir := t.TempDir()
	uriStr := filepath.Join(dir, "sixteen.bin")
	ctx := context.Background()
	v := newTestVFS(t, 1<<20, 4)

	const size = 16 * 1024 * 1024
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}

	require.NoError(t, v.CreateFile(ctx, uriStr))
	require.NoError(t, v.Write(ctx, uriStr, data, false))

	got := make([]byte, size)
	require.NoError(t, v.Read(ctx, uriStr, 0, got))
	assert.Equal(t, data, got)

	// A sub-range read that does not divide evenly by the worker count
	// still recovers every byte exactly.
	partial := make([]byte, 12345)
	require.NoError(t, v.Read(ctx, uriStr, 100, partial))
	assert.Equal(t, data[100:100+12345], partial)
}

func TestCrossBackendMoveRejected(t *testing.T) {
	ctx := context.Background()
	v := newTestVFS(t, 1<<20, 2)

	err := v.MovePath(ctx, "/tmp/old.txt", "s3://bucket/new.txt", false)
	require.Error(t, err)
}

func TestS3AppendRejected(t *testing.T) {
	ctx := context.Background()
	v, err := New(ctx, Config{
		NumParallelOperations: 2,
		S3: &s3backend.Config{
			Region:                      "us-east-1",
			EnableCargoShipOptimization: false,
		},
	})
	require.NoError(t, err)
	defer v.Close()

	err = v.OpenFile(ctx, "s3://bucket/key.txt", ModeAppend)
	require.Error(t, err)
}

func TestUnsupportedSchemeRejected(t *testing.T) {
	ctx := context.Background()
	v := newTestVFS(t, 1<<20, 2)

	err := v.CreateFile(ctx, "ftp://host/path")
	require.Error(t, err)
}

func TestBackendNotBuiltRejected(t *testing.T) {
	ctx := context.Background()
	v := newTestVFS(t, 1<<20, 2) // built with no S3/HDFS support

	err := v.CreateFile(ctx, "s3://bucket/key.txt")
	require.Error(t, err)

	err = v.CreateFile(ctx, "hdfs://namenode/key.txt")
	require.Error(t, err)
}

func TestLsLexicographicOrder(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	v := newTestVFS(t, 1<<20, 2)

	for _, name := range []string{"c", "a", "b"} {
		require.NoError(t, v.CreateFile(ctx, filepath.Join(dir, name)))
	}

	entries, err := v.Ls(ctx, dir)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	sortedNames := make([]string, len(entries))
	for i, e := range entries {
		sortedNames[i] = filepath.Base(e)
	}
	assert.Equal(t, []string{"a", "b", "c"}, sortedNames)
}

func TestOpenFileWriteTruncates(t *testing.T) {
	dir := t.TempDir()
	uriStr := filepath.Join(dir, "trunc.txt")
	ctx := context.Background()
	v := newTestVFS(t, 1<<20, 2)

	require.NoError(t, v.CreateFile(ctx, uriStr))
	require.NoError(t, v.Write(ctx, uriStr, []byte("0123456789"), false))

	require.NoError(t, v.OpenFile(ctx, uriStr, ModeWrite))
	require.NoError(t, v.Write(ctx, uriStr, []byte("ab"), false))

	size, err := v.FileSize(ctx, uriStr)
	require.NoError(t, err)
	assert.Equal(t, int64(2), size)
}

func TestHealthStateReflectsBackendOutcomes(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	v := newTestVFS(t, 1<<20, 2)

	assert.Equal(t, "healthy", v.HealthState().String())

	require.NoError(t, v.CreateFile(ctx, filepath.Join(dir, "ok.txt")))
	assert.Equal(t, "healthy", v.HealthState().String())
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{NumParallelOperations: 1, ParallelReadThreshold: 0}.Validate())
	assert.Error(t, Config{NumParallelOperations: -1}.Validate())
	assert.Error(t, Config{ParallelReadThreshold: -1}.Validate())
}

func TestCreateDirOnExistingDirFails(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	v := newTestVFS(t, 1<<20, 2)

	sub := filepath.Join(dir, "sub")
	require.NoError(t, v.CreateDir(ctx, sub))
	require.Error(t, v.CreateDir(ctx, sub))
}

func TestReadPastEndOfFileFails(t *testing.T) {
	dir := t.TempDir()
	uriStr := filepath.Join(dir, "short.txt")
	ctx := context.Background()
	v := newTestVFS(t, 1<<20, 2)

	require.NoError(t, v.CreateFile(ctx, uriStr))
	require.NoError(t, v.Write(ctx, uriStr, []byte("abc"), false))

	buf := make([]byte, 10)
	require.Error(t, v.Read(ctx, uriStr, 0, buf))
}
