//go:build windows

package posix

import (
	"context"
	"os"

	"golang.org/x/sys/windows"

	"github.com/tiledb/vfs/internal/vfs/backend"
	"github.com/tiledb/vfs/pkg/errors"
)

// FilelockLock takes an advisory LockFileEx lock on path, shared or
// exclusive, covering the whole file.
func (b *Backend) FilelockLock(ctx context.Context, path string, shared bool) (backend.FileLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return backend.FileLock{}, wrapErr(errors.ErrCodeVFSBackendError, "filelock_lock", path, err)
	}

	var flags uint32
	if !shared {
		flags = windows.LOCKFILE_EXCLUSIVE_LOCK
	}

	ol := new(windows.Overlapped)
	if err := windows.LockFileEx(windows.Handle(f.Fd()), flags, 0, ^uint32(0), ^uint32(0), ol); err != nil {
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

	ol := new(windows.Overlapped)
	err := windows.UnlockFileEx(windows.Handle(lf.f.Fd()), 0, ^uint32(0), ^uint32(0), ol)
	closeErr := lf.f.Close()
	if err != nil {
		return wrapErr(errors.ErrCodeVFSBackendError, "filelock_unlock", path, err)
	}
	if closeErr != nil {
		return wrapErr(errors.ErrCodeVFSBackendError, "filelock_unlock", path, closeErr)
	}
	return nil
}
