//go:build !windows

package posix

import (
	"context"
	"os"

	"golang.org/x/sys/unix"

	"github.com/tiledb/vfs/internal/vfs/backend"
	"github.com/tiledb/vfs/pkg/errors"
)

// FilelockLock takes an advisory flock(2) on path, shared or exclusive.
func (b *Backend) FilelockLock(ctx context.Context, path string, shared bool) (backend.FileLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return backend.FileLock{}, wrapErr(errors.ErrCodeVFSBackendError, "filelock_lock", path, err)
	}

	how := unix.LOCK_EX
	if shared {
		how = unix.LOCK_SH
	}
	if err := unix.Flock(int(f.Fd()), how); err != nil {
		f.Close()
		return backend.FileLock{}, wrapErr(errors.ErrCodeVFSBackendError, "filelock_lock", path, err)
	}

	id := b.nextLockID()

	b.mu.Lock()
	b.locks[id] = &lockedFile{f: f}
	b.mu.Unlock()

	return backend.NewFileLock(id, false), nil
}

// FilelockUnlock releases a lock acquired by FilelockLock. Unlocking
// an already-released lock fails.
func (b *Backend) FilelockUnlock(ctx context.Context, path string, lock backend.FileLock) error {
	b.mu.Lock()
	lf, ok := b.locks[lock.ID()]
	if ok {
		delete(b.locks, lock.ID())
	}
	b.mu.Unlock()

	if !ok {
		return wrapErr(errors.ErrCodeInvalidArgument, "filelock_unlock", path, nil)
	}

	err := unix.Flock(int(lf.f.Fd()), unix.LOCK_UN)
	closeErr := lf.f.Close()
	if err != nil {
		return wrapErr(errors.ErrCodeVFSBackendError, "filelock_unlock", path, err)
	}
	if closeErr != nil {
		return wrapErr(errors.ErrCodeVFSBackendError, "filelock_unlock", path, closeErr)
	}
	return nil
}
