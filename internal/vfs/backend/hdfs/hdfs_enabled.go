//go:build vfs_hdfs

package hdfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/colinmarc/hdfs/v2"

	vfsbackend "github.com/tiledb/vfs/internal/vfs/backend"
	"github.com/tiledb/vfs/pkg/errors"
	"github.com/tiledb/vfs/pkg/utils"
)

// Backend is a vfsbackend.Backend implementation backed by a single
// long-lived *hdfs.Client, as spec.md §4.2 requires: one client is
// opened per VFS instance and reused across every call.
type Backend struct {
	client *hdfs.Client

	mu     sync.Mutex
	nextID uint64
	locks  map[uint64]struct{}
}

// New dials namenode and returns a Backend wrapping the resulting
// client.
func New(namenode string) (*Backend, error) {
	client, err := hdfs.New(namenode)
	if err != nil {
		return nil, wrapErr(errors.ErrCodeConnectionFailed, "connect", namenode, err)
	}
	return &Backend{client: client, locks: make(map[uint64]struct{})}, nil
}

func wrapErr(code errors.ErrorCode, op, path string, cause error) error {
	return errors.NewError(code, "hdfs: "+op+" failed for "+path).
		WithComponent("hdfs").
		WithOperation(op).
		WithContext("path", path).
		WithCause(cause)
}

// CreateDir is non-recursive: callers create parents explicitly. An
// existing directory is an error, matching
// original_source/tiledb/sm/filesystem/vfs.cc's create_dir, which
// checks is_dir before calling through to the filesystem.
func (b *Backend) CreateDir(ctx context.Context, path string) error {
	if err := utils.ValidatePath(path, true); err != nil {
		return wrapErr(errors.ErrCodeInvalidArgument, "create_dir", path, err)
	}
	if b.IsDir(ctx, path) {
		return wrapErr(errors.ErrCodeVFSAlreadyExists, "create_dir", path, nil)
	}
	if err := b.client.Mkdir(path, 0o755); err != nil {
		if os.IsExist(err) {
			return wrapErr(errors.ErrCodeVFSAlreadyExists, "create_dir", path, err)
		}
		return wrapErr(errors.ErrCodeVFSBackendError, "create_dir", path, err)
	}
	return nil
}

func (b *Backend) CreateFile(ctx context.Context, path string) error {
	if err := utils.ValidatePath(path, true); err != nil {
		return wrapErr(errors.ErrCodeInvalidArgument, "create_file", path, err)
	}
	if err := b.client.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return wrapErr(errors.ErrCodeVFSBackendError, "create_file", path, err)
	}
	w, err := b.client.Create(path)
	if err != nil {
		if os.IsExist(err) {
			return wrapErr(errors.ErrCodeVFSAlreadyExists, "create_file", path, err)
		}
		return wrapErr(errors.ErrCodeVFSBackendError, "create_file", path, err)
	}
	return w.Close()
}

func (b *Backend) RemovePath(ctx context.Context, path string) error {
	if err := b.client.RemoveAll(path); err != nil {
		return wrapErr(errors.ErrCodeVFSBackendError, "remove_path", path, err)
	}
	return nil
}

func (b *Backend) RemoveFile(ctx context.Context, path string) error {
	if err := b.client.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return wrapErr(errors.ErrCodeVFSBackendError, "remove_file", path, err)
	}
	return nil
}

func (b *Backend) FileSize(ctx context.Context, path string) (int64, error) {
	fi, err := b.client.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, wrapErr(errors.ErrCodeVFSNotFound, "file_size", path, err)
		}
		return 0, wrapErr(errors.ErrCodeVFSBackendError, "file_size", path, err)
	}
	return fi.Size(), nil
}

func (b *Backend) IsDir(ctx context.Context, path string) bool {
	fi, err := b.client.Stat(path)
	return err == nil && fi.IsDir()
}

func (b *Backend) IsFile(ctx context.Context, path string) bool {
	fi, err := b.client.Stat(path)
	return err == nil && !fi.IsDir()
}

// IsBucket is always false; HDFS has no bucket concept.
func (b *Backend) IsBucket(ctx context.Context, path string) bool { return false }

func (b *Backend) Ls(ctx context.Context, parent string) ([]vfsbackend.DirEntry, error) {
	infos, err := b.client.ReadDir(parent)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, wrapErr(errors.ErrCodeVFSNotFound, "ls", parent, err)
		}
		return nil, wrapErr(errors.ErrCodeVFSBackendError, "ls", parent, err)
	}

	out := make([]vfsbackend.DirEntry, 0, len(infos))
	for _, fi := range infos {
		out = append(out, vfsbackend.DirEntry{
			URI:   filepath.Join(parent, fi.Name()),
			IsDir: fi.IsDir(),
		})
	}
	return out, nil
}

func (b *Backend) Read(ctx context.Context, path string, offset int64, buf []byte) error {
	r, err := b.client.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return wrapErr(errors.ErrCodeVFSNotFound, "read", path, err)
		}
		return wrapErr(errors.ErrCodeVFSBackendError, "read", path, err)
	}
	defer r.Close()

	// A short read is a failure, not partial success: io.ReadFull
	// turns io.EOF/io.ErrUnexpectedEOF on a partially filled buf into
	// an error, same as the S3 backend's io.ReadFull over the HTTP
	// response body.
	if _, err := io.ReadFull(io.NewSectionReader(r, offset, int64(len(buf))), buf); err != nil {
		return wrapErr(errors.ErrCodeVFSBackendError, "read", path, err)
	}
	return nil
}

// Write supports APPEND natively via the namenode's append RPC,
// unlike S3 where append is rejected at open time.
func (b *Backend) Write(ctx context.Context, path string, buf []byte, appendMode bool) error {
	if appendMode {
		w, err := b.client.Append(path)
		if err != nil {
			return wrapErr(errors.ErrCodeVFSBackendError, "write", path, err)
		}
		if _, err := w.Write(buf); err != nil {
			w.Close()
			return wrapErr(errors.ErrCodeVFSBackendError, "write", path, err)
		}
		return w.Close()
	}

	_ = b.client.Remove(path)
	w, err := b.client.Create(path)
	if err != nil {
		return wrapErr(errors.ErrCodeVFSBackendError, "write", path, err)
	}
	if _, err := w.Write(buf); err != nil {
		w.Close()
		return wrapErr(errors.ErrCodeVFSBackendError, "write", path, err)
	}
	return w.Close()
}

// Sync is a no-op: every Write already closes the underlying
// FileWriter, which flushes to the namenode.
func (b *Backend) Sync(ctx context.Context, path string) error { return nil }

// FilelockLock returns a no-op sentinel lock; HDFS has no native
// advisory locking primitive.
func (b *Backend) FilelockLock(ctx context.Context, path string, shared bool) (vfsbackend.FileLock, error) {
	id := atomic.AddUint64(&b.nextID, 1)

	b.mu.Lock()
	b.locks[id] = struct{}{}
	b.mu.Unlock()

	return vfsbackend.NewFileLock(id, true), nil
}

func (b *Backend) FilelockUnlock(ctx context.Context, path string, lock vfsbackend.FileLock) error {
	b.mu.Lock()
	_, ok := b.locks[lock.ID()]
	delete(b.locks, lock.ID())
	b.mu.Unlock()

	if !ok {
		return wrapErr(errors.ErrCodeInvalidArgument, "filelock_unlock", path, nil)
	}
	return nil
}

func (b *Backend) CreateBucket(ctx context.Context, path string) error {
	return wrapErr(errors.ErrCodeInvalidArgument, "create_bucket", path, nil)
}

func (b *Backend) RemoveBucket(ctx context.Context, path string) error {
	return wrapErr(errors.ErrCodeInvalidArgument, "remove_bucket", path, nil)
}

func (b *Backend) EmptyBucket(ctx context.Context, path string) error {
	return wrapErr(errors.ErrCodeInvalidArgument, "empty_bucket", path, nil)
}

func (b *Backend) IsEmptyBucket(ctx context.Context, path string) (bool, error) {
	return false, wrapErr(errors.ErrCodeInvalidArgument, "is_empty_bucket", path, nil)
}

func (b *Backend) MovePath(ctx context.Context, oldPath, newPath string) error {
	if err := b.client.MkdirAll(filepath.Dir(newPath), 0o755); err != nil {
		return wrapErr(errors.ErrCodeVFSBackendError, "move_path", newPath, err)
	}
	if err := b.client.Rename(oldPath, newPath); err != nil {
		return wrapErr(errors.ErrCodeVFSBackendError, "move_path", oldPath, err)
	}
	return nil
}

func (b *Backend) OpenFile(ctx context.Context, path string, mode vfsbackend.OpenMode) error {
	return nil
}

func (b *Backend) CloseFile(ctx context.Context, path string) error { return nil }

// SupportsAppend is true: HDFS supports append natively via the
// namenode, unlike S3.
func (b *Backend) SupportsAppend() bool { return true }
