// Package backend declares the capability-set interface every VFS
// storage adapter (local POSIX/Windows, HDFS, S3) implements with
// identical observable semantics, plus the types shared across them.
//
// The shape of this interface follows the teacher's own
// internal/filesystem.FilesystemInterface: one interface that every
// concrete backend satisfies so the dispatcher above it never sees
// backend-specific types.
package backend

import (
	"context"
)

// DirEntry is one entry returned by Ls.
type DirEntry struct {
	URI   string
	IsDir bool
}

// FileLock is an opaque token returned by a successful Lock call and
// consumed by the matching Unlock call. It is valid only until
// unlocked; unlocking it a second time is a failure.
type FileLock struct {
	id     uint64
	noop   bool
	closed bool
}

// NewFileLock constructs a FileLock wrapping an adapter-private
// handle id. noop marks a sentinel lock returned by a backend (HDFS,
// S3) that does not implement native locking.
func NewFileLock(id uint64, noop bool) FileLock {
	return FileLock{id: id, noop: noop}
}

// ID returns the adapter-private handle id carried by the lock.
func (l FileLock) ID() uint64 { return l.id }

// IsNoop reports whether this lock is a no-op sentinel from a backend
// without native file locking.
func (l FileLock) IsNoop() bool { return l.noop }

// Backend is the narrow capability set every storage adapter exposes.
// A path argument is always a backend-native path (the caller is
// expected to have stripped the scheme and, for remote backends,
// resolved the authority into whatever addressing the backend needs).
type Backend interface {
	CreateDir(ctx context.Context, path string) error
	CreateFile(ctx context.Context, path string) error
	RemovePath(ctx context.Context, path string) error
	RemoveFile(ctx context.Context, path string) error
	FileSize(ctx context.Context, path string) (int64, error)
	IsDir(ctx context.Context, path string) bool
	IsFile(ctx context.Context, path string) bool
	IsBucket(ctx context.Context, path string) bool
	Ls(ctx context.Context, parent string) ([]DirEntry, error)
	Read(ctx context.Context, path string, offset int64, buf []byte) error
	Write(ctx context.Context, path string, buf []byte, append bool) error
	Sync(ctx context.Context, path string) error
	FilelockLock(ctx context.Context, path string, shared bool) (FileLock, error)
	FilelockUnlock(ctx context.Context, path string, lock FileLock) error

	CreateBucket(ctx context.Context, path string) error
	RemoveBucket(ctx context.Context, path string) error
	EmptyBucket(ctx context.Context, path string) error
	IsEmptyBucket(ctx context.Context, path string) (bool, error)

	MovePath(ctx context.Context, oldPath, newPath string) error

	// OpenFile and CloseFile implement the advisory open/close
	// contract of SPEC_FULL.md §4.5. They are stateless: the VFS does
	// not track per-open handles, so a caller may CloseFile a path it
	// never opened.
	OpenFile(ctx context.Context, path string, mode OpenMode) error
	CloseFile(ctx context.Context, path string) error

	// SupportsAppend reports whether OpenFile(path, ModeAppend) can
	// ever succeed on this backend. S3 always returns false.
	SupportsAppend() bool
}

// OpenMode mirrors vfs.Mode without importing the parent package
// (which would create an import cycle); the two types are kept in
// lockstep by the dispatcher's translation at the call boundary.
type OpenMode int

const (
	ModeRead OpenMode = iota
	ModeWrite
	ModeAppend
)
