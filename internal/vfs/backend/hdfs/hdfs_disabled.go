//go:build !vfs_hdfs

// Package hdfs implements backend.Backend against HDFS. This default
// build carries no HDFS client: every call fails with
// errors.ErrCodeBackendNotBuilt, matching the teacher's own capability
// gating for backends it wasn't compiled with. Build with the
// vfs_hdfs tag to link the real client in hdfs_enabled.go.
package hdfs

import (
	"context"

	"github.com/tiledb/vfs/internal/vfs/backend"
	"github.com/tiledb/vfs/pkg/errors"
)

// Backend is the stand-in used when the module is built without the
// vfs_hdfs tag.
type Backend struct{}

// New returns a Backend whose every method reports
// errors.ErrCodeBackendNotBuilt. namenode is accepted for interface
// parity with the vfs_hdfs build and otherwise unused.
func New(namenode string) (*Backend, error) {
	return &Backend{}, nil
}

func notBuilt(op string) error {
	return errors.NewError(errors.ErrCodeBackendNotBuilt,
		"this binary was built without HDFS support").
		WithComponent("hdfs").
		WithOperation(op)
}

func (b *Backend) CreateDir(ctx context.Context, path string) error  { return notBuilt("create_dir") }
func (b *Backend) CreateFile(ctx context.Context, path string) error { return notBuilt("create_file") }
func (b *Backend) RemovePath(ctx context.Context, path string) error { return notBuilt("remove_path") }
func (b *Backend) RemoveFile(ctx context.Context, path string) error { return notBuilt("remove_file") }

func (b *Backend) FileSize(ctx context.Context, path string) (int64, error) {
	return 0, notBuilt("file_size")
}

func (b *Backend) IsDir(ctx context.Context, path string) bool  { return false }
func (b *Backend) IsFile(ctx context.Context, path string) bool { return false }

// IsBucket is always false; HDFS has no bucket concept.
func (b *Backend) IsBucket(ctx context.Context, path string) bool { return false }

func (b *Backend) Ls(ctx context.Context, parent string) ([]backend.DirEntry, error) {
	return nil, notBuilt("ls")
}

func (b *Backend) Read(ctx context.Context, path string, offset int64, buf []byte) error {
	return notBuilt("read")
}

func (b *Backend) Write(ctx context.Context, path string, buf []byte, appendMode bool) error {
	return notBuilt("write")
}

func (b *Backend) Sync(ctx context.Context, path string) error { return notBuilt("sync") }

func (b *Backend) FilelockLock(ctx context.Context, path string, shared bool) (backend.FileLock, error) {
	return backend.FileLock{}, notBuilt("filelock_lock")
}

func (b *Backend) FilelockUnlock(ctx context.Context, path string, lock backend.FileLock) error {
	return notBuilt("filelock_unlock")
}

func (b *Backend) CreateBucket(ctx context.Context, path string) error { return notBuilt("create_bucket") }
func (b *Backend) RemoveBucket(ctx context.Context, path string) error { return notBuilt("remove_bucket") }
func (b *Backend) EmptyBucket(ctx context.Context, path string) error  { return notBuilt("empty_bucket") }

func (b *Backend) IsEmptyBucket(ctx context.Context, path string) (bool, error) {
	return false, notBuilt("is_empty_bucket")
}

func (b *Backend) MovePath(ctx context.Context, oldPath, newPath string) error {
	return notBuilt("move_path")
}

func (b *Backend) OpenFile(ctx context.Context, path string, mode backend.OpenMode) error {
	return notBuilt("open_file")
}

func (b *Backend) CloseFile(ctx context.Context, path string) error { return notBuilt("close_file") }

func (b *Backend) SupportsAppend() bool { return false }
