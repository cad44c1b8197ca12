// Package vfs is the facade that classifies a URI, routes it to the
// right backend, and for large reads shards the request across a
// worker pool and joins the results. It is the direct Go rendering of
// TileDB's own VFS dispatcher
// (original_source/tiledb/sm/filesystem/vfs.cc), folded together with
// the teacher's internal/adapter.Adapter constructor/lifecycle shape.
package vfs

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/tiledb/vfs/internal/vfs/backend"
	"github.com/tiledb/vfs/internal/vfs/backend/hdfs"
	"github.com/tiledb/vfs/internal/vfs/backend/posix"
	s3backend "github.com/tiledb/vfs/internal/vfs/backend/s3"
	vfsmetrics "github.com/tiledb/vfs/internal/vfs/metrics"
	"github.com/tiledb/vfs/internal/vfs/threadpool"
	"github.com/tiledb/vfs/internal/vfs/uri"
	"github.com/tiledb/vfs/pkg/errors"
	"github.com/tiledb/vfs/pkg/health"
	"github.com/tiledb/vfs/pkg/utils"
)

// Mode is a VFS-level open intent.
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
	ModeAppend
)

func (m Mode) toBackendMode() backend.OpenMode {
	switch m {
	case ModeWrite:
		return backend.ModeWrite
	case ModeAppend:
		return backend.ModeAppend
	default:
		return backend.ModeRead
	}
}

// BackendKind tags one of the backend adapters a VFS instance may hold.
type BackendKind int

const (
	BackendPosix BackendKind = 1 << iota
	BackendHDFS
	BackendS3
)

// BackendSet is a bitset over BackendKind, the "supported-backend
// set" of spec.md §3. It is immutable after New returns.
type BackendSet int

// Has reports whether k is a member of s.
func (s BackendSet) Has(k BackendKind) bool { return int(s)&int(k) != 0 }

// Config configures a VFS instance. It mirrors spec.md §3's
// configuration record and is consumed once by New.
type Config struct {
	// NumParallelOperations is the worker pool size, ≥1.
	NumParallelOperations int
	// ParallelReadThreshold is the byte count at or above which Read
	// shards across the pool.
	ParallelReadThreshold int64

	S3   *s3backend.Config
	HDFS *HDFSConfig

	Logger *utils.StructuredLogger
	Slog   *slog.Logger
	Metrics *vfsmetrics.Collector
}

// HDFSConfig carries the opaque HDFS connection parameters spec.md §6
// calls "hdfs.*: opaque connection parameters forwarded to the HDFS
// client."
type HDFSConfig struct {
	Namenode string
}

// VFS is the dispatcher: a thread pool, the backend adapters it was
// built with, the set of backends it supports, and the parallel-read
// threshold. It holds no other state, per spec.md §4.3.
type VFS struct {
	pool      *threadpool.Pool
	threshold int64
	backends  BackendSet

	posix *posix.Backend
	hdfs  *hdfs.Backend
	s3    *s3backend.Backend

	logger  *utils.StructuredLogger
	metrics *vfsmetrics.Collector
	health  *health.Tracker
}

// New constructs a VFS from cfg. The POSIX backend is always present.
// The S3 backend is constructed if cfg.S3 is non-nil. The HDFS backend
// is constructed (against the vfs_hdfs-gated implementation, real or
// stub) if cfg.HDFS is non-nil.
func New(ctx context.Context, cfg Config) (*VFS, error) {
	if cfg.NumParallelOperations < 1 {
		cfg.NumParallelOperations = 1
	}

	tracker := health.NewTracker(health.DefaultConfig())
	tracker.RegisterComponent("posix")

	v := &VFS{
		pool:      threadpool.New(cfg.NumParallelOperations),
		threshold: cfg.ParallelReadThreshold,
		backends:  BackendSet(BackendPosix),
		posix:     posix.New(),
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		health:    tracker,
	}

	if cfg.HDFS != nil {
		h, err := hdfs.New(cfg.HDFS.Namenode)
		if err != nil {
			v.logError("init", "hdfs", err)
			v.pool.Close()
			return nil, err
		}
		v.hdfs = h
		v.backends |= BackendSet(BackendHDFS)
		tracker.RegisterComponent("hdfs")
	}

	if cfg.S3 != nil {
		s, err := s3backend.New(ctx, cfg.S3, cfg.Slog)
		if err != nil {
			v.logError("init", "s3", err)
			v.pool.Close()
			return nil, err
		}
		v.s3 = s
		v.backends |= BackendSet(BackendS3)
		tracker.RegisterComponent("s3")
	}

	return v, nil
}

// HealthState reports the aggregated health of every backend this VFS
// was built with, per pkg/health.Tracker's consecutive-error state
// machine.
func (v *VFS) HealthState() health.HealthState {
	return v.health.GetOverallHealth()
}

func (v *VFS) logError(op, backendName string, err error) {
	if v.logger != nil {
		v.logger.Error("vfs operation failed", map[string]interface{}{
			"operation": op,
			"backend":   backendName,
			"error":     err.Error(),
		})
	}
}

// Close drains and joins the worker pool. Backend connections are not
// explicitly closed: HDFS and S3 clients deliberately skip disconnect
// in this design, matching a quirk of the source this was ported
// from (see spec.md §9).
func (v *VFS) Close() {
	v.pool.Close()
}

func wrapVFSErr(code errors.ErrorCode, op, uriStr string, cause error) *errors.ObjectFSError {
	return errors.NewError(code, "vfs: "+op+" failed for "+uriStr).
		WithComponent("vfs").
		WithOperation(op).
		WithContext("uri", uriStr).
		WithCause(cause)
}

// resolve classifies uriStr, selects the backend it routes to, and
// returns the backend-native path string to pass that backend's
// methods. It fails with ErrCodeBackendNotBuilt if the backend is a
// recognized scheme this VFS wasn't built with, or
// ErrCodeUnsupportedScheme for "other".
func (v *VFS) resolve(uriStr string) (backend.Backend, string, string, error) {
	u := uri.Parse(uriStr)

	switch u.Scheme() {
	case uri.SchemeFile:
		return v.posix, u.NativePath(), "posix", nil
	case uri.SchemeHDFS:
		if !v.backends.Has(BackendHDFS) {
			return nil, "", "", wrapVFSErr(errors.ErrCodeBackendNotBuilt, "resolve", uriStr, nil).
				WithDetail("reason", "this VFS was built without HDFS support")
		}
		return v.hdfs, u.Path(), "hdfs", nil
	case uri.SchemeS3:
		if !v.backends.Has(BackendS3) {
			return nil, "", "", wrapVFSErr(errors.ErrCodeBackendNotBuilt, "resolve", uriStr, nil).
				WithDetail("reason", "this VFS was built without S3 support")
		}
		// backend path convention is "<bucket><path>" where path
		// already starts with "/", matching s3.splitPath.
		return v.s3, u.Authority() + u.Path(), "s3", nil
	default:
		return nil, "", "", wrapVFSErr(errors.ErrCodeUnsupportedScheme, "resolve", uriStr, nil)
	}
}

func (v *VFS) record(backendName, op string, err error) {
	if v.metrics != nil {
		v.metrics.RecordOperation(backendName, op, err)
	}
	if err != nil {
		v.health.RecordError(backendName, err)
		v.logError(op, backendName, err)
	} else {
		v.health.RecordSuccess(backendName)
	}
}

// AbsPath resolves s to its absolute form, per uri.AbsPath.
func AbsPath(s string) string { return uri.AbsPath(s) }

func (v *VFS) CreateDir(ctx context.Context, uriStr string) error {
	b, path, name, err := v.resolve(uriStr)
	if err != nil {
		return err
	}
	err = b.CreateDir(ctx, path)
	v.record(name, "create_dir", err)
	return err
}

func (v *VFS) CreateFile(ctx context.Context, uriStr string) error {
	b, path, name, err := v.resolve(uriStr)
	if err != nil {
		return err
	}
	err = b.CreateFile(ctx, path)
	v.record(name, "create_file", err)
	return err
}

func (v *VFS) RemovePath(ctx context.Context, uriStr string) error {
	b, path, name, err := v.resolve(uriStr)
	if err != nil {
		return err
	}
	err = b.RemovePath(ctx, path)
	v.record(name, "remove_path", err)
	return err
}

func (v *VFS) RemoveFile(ctx context.Context, uriStr string) error {
	b, path, name, err := v.resolve(uriStr)
	if err != nil {
		return err
	}
	err = b.RemoveFile(ctx, path)
	v.record(name, "remove_file", err)
	return err
}

func (v *VFS) FileSize(ctx context.Context, uriStr string) (int64, error) {
	b, path, name, err := v.resolve(uriStr)
	if err != nil {
		return 0, err
	}
	n, err := b.FileSize(ctx, path)
	v.record(name, "file_size", err)
	return n, err
}

func (v *VFS) IsDir(ctx context.Context, uriStr string) bool {
	b, path, _, err := v.resolve(uriStr)
	if err != nil {
		return false
	}
	return b.IsDir(ctx, path)
}

func (v *VFS) IsFile(ctx context.Context, uriStr string) bool {
	b, path, _, err := v.resolve(uriStr)
	if err != nil {
		return false
	}
	return b.IsFile(ctx, path)
}

func (v *VFS) IsBucket(ctx context.Context, uriStr string) bool {
	b, path, _, err := v.resolve(uriStr)
	if err != nil {
		return false
	}
	return b.IsBucket(ctx, path)
}

func (v *VFS) Ls(ctx context.Context, uriStr string) ([]string, error) {
	b, path, name, err := v.resolve(uriStr)
	if err != nil {
		return nil, err
	}
	entries, err := b.Ls(ctx, path)
	v.record(name, "ls", err)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.URI)
	}
	sort.Strings(out)
	return out, nil
}

// Sync delegates to the backend's durability operation: a real flush
// on POSIX/HDFS, a no-op on S3 (durability is only achieved at
// CloseFile's multipart-complete).
func (v *VFS) Sync(ctx context.Context, uriStr string) error {
	b, path, name, err := v.resolve(uriStr)
	if err != nil {
		return err
	}
	err = b.Sync(ctx, path)
	v.record(name, "sync", err)
	return err
}

func (v *VFS) FilelockLock(ctx context.Context, uriStr string, shared bool) (backend.FileLock, error) {
	b, path, name, err := v.resolve(uriStr)
	if err != nil {
		return backend.FileLock{}, err
	}
	lock, err := b.FilelockLock(ctx, path, shared)
	v.record(name, "filelock_lock", err)
	return lock, err
}

func (v *VFS) FilelockUnlock(ctx context.Context, uriStr string, lock backend.FileLock) error {
	b, path, name, err := v.resolve(uriStr)
	if err != nil {
		return err
	}
	err = b.FilelockUnlock(ctx, path, lock)
	v.record(name, "filelock_unlock", err)
	return err
}

func (v *VFS) CreateBucket(ctx context.Context, uriStr string) error {
	b, path, name, err := v.resolve(uriStr)
	if err != nil {
		return err
	}
	err = b.CreateBucket(ctx, path)
	v.record(name, "create_bucket", err)
	return err
}

func (v *VFS) RemoveBucket(ctx context.Context, uriStr string) error {
	b, path, name, err := v.resolve(uriStr)
	if err != nil {
		return err
	}
	err = b.RemoveBucket(ctx, path)
	v.record(name, "remove_bucket", err)
	return err
}

func (v *VFS) EmptyBucket(ctx context.Context, uriStr string) error {
	b, path, name, err := v.resolve(uriStr)
	if err != nil {
		return err
	}
	err = b.EmptyBucket(ctx, path)
	v.record(name, "empty_bucket", err)
	return err
}

func (v *VFS) IsEmptyBucket(ctx context.Context, uriStr string) (bool, error) {
	b, path, name, err := v.resolve(uriStr)
	if err != nil {
		return false, err
	}
	ok, err := b.IsEmptyBucket(ctx, path)
	v.record(name, "is_empty_bucket", err)
	return ok, err
}

// MovePath moves oldURI to newURI. Cross-backend moves are rejected
// with ErrCodeCrossBackendMove. When force is true and the
// destination already exists, it is removed before the move is
// attempted; if that removal succeeds but the subsequent move fails,
// the destination is permanently lost — this hazard is preserved from
// the source this VFS was ported from and is not recoverable at this
// layer.
func (v *VFS) MovePath(ctx context.Context, oldURI, newURI string, force bool) error {
	oldU := uri.Parse(oldURI)
	newU := uri.Parse(newURI)

	if oldU.Scheme() != newU.Scheme() {
		return wrapVFSErr(errors.ErrCodeCrossBackendMove, "move_path", oldURI, nil).
			WithDetail("destination", newURI)
	}

	b, oldPath, name, err := v.resolve(oldURI)
	if err != nil {
		return err
	}
	_, newPath, _, err := v.resolve(newURI)
	if err != nil {
		return err
	}

	if force && (b.IsDir(ctx, newPath) || b.IsFile(ctx, newPath)) {
		if err := b.RemovePath(ctx, newPath); err != nil {
			return wrapVFSErr(errors.ErrCodeVFSBackendError, "move_path", oldURI, err).
				WithDetail("destination", newURI)
		}
	}

	err = b.MovePath(ctx, oldPath, newPath)
	v.record(name, "move_path", err)
	return err
}

// OpenFile implements the stateless open contract of spec.md §4.5:
// READ requires IsFile and fails with ErrCodeVFSNotFound otherwise;
// WRITE truncates by removing an existing file first; APPEND fails on
// backends that don't support it.
func (v *VFS) OpenFile(ctx context.Context, uriStr string, mode Mode) error {
	b, path, name, err := v.resolve(uriStr)
	if err != nil {
		return err
	}

	if mode == ModeRead && !b.IsFile(ctx, path) {
		return wrapVFSErr(errors.ErrCodeVFSNotFound, "open_file", uriStr, nil).
			WithDetail("reason", "not a file")
	}

	if mode == ModeAppend && !b.SupportsAppend() {
		return wrapVFSErr(errors.ErrCodeInvalidArgument, "open_file", uriStr, nil).
			WithDetail("reason", "append is unsupported on this backend")
	}

	if mode == ModeWrite && b.IsFile(ctx, path) {
		if err := b.RemoveFile(ctx, path); err != nil {
			return err
		}
	}

	err = b.OpenFile(ctx, path, mode.toBackendMode())
	v.record(name, "open_file", err)
	return err
}

// CloseFile delegates to the backend's durability operation: Sync for
// POSIX/HDFS, multipart-complete for S3.
func (v *VFS) CloseFile(ctx context.Context, uriStr string) error {
	b, path, name, err := v.resolve(uriStr)
	if err != nil {
		return err
	}
	err = b.CloseFile(ctx, path)
	v.record(name, "close_file", err)
	return err
}

// Write performs a direct backend write. Sharding only applies to
// Read, per spec.md §4.3.
func (v *VFS) Write(ctx context.Context, uriStr string, buf []byte, appendMode bool) error {
	b, path, name, err := v.resolve(uriStr)
	if err != nil {
		return err
	}
	err = b.Write(ctx, path, buf, appendMode)
	if v.metrics != nil {
		v.metrics.RecordWrite(name, int64(len(buf)), err)
	}
	if err != nil {
		v.health.RecordError(name, err)
		v.logError("write", name, err)
	} else {
		v.health.RecordSuccess(name)
	}
	return err
}

// Read fills buf starting at offset. Below the configured parallel
// read threshold, it performs a single backend call on the calling
// goroutine. At or above it, the read is sharded into
// k = pool.NumThreads() contiguous ranges — following
// original_source/tiledb/sm/filesystem/vfs.cc:598-634's
// `num_threads = nbytes >= threshold ? pool->num_threads() : 1` and
// `thread_read_nbytes = ceil(nbytes, num_threads)` exactly — each
// shard runs as a pool task writing into a disjoint slice of buf, and
// the call returns once every shard has completed (failed shards do
// not cancel the others). On failure, the error is the lowest-indexed
// failing shard's, with every shard's error collected alongside it in
// Details["shard_errors"].
func (v *VFS) Read(ctx context.Context, uriStr string, offset int64, buf []byte) error {
	b, path, name, err := v.resolve(uriStr)
	if err != nil {
		return err
	}

	nbytes := int64(len(buf))
	if nbytes == 0 {
		return nil
	}

	numShards := 1
	if nbytes >= v.threshold {
		numShards = v.pool.NumThreads()
		if int64(numShards) > nbytes {
			numShards = int(nbytes)
		}
	}

	if v.metrics != nil {
		v.metrics.RecordParallelRead(numShards)
	}

	if numShards <= 1 {
		err := b.Read(ctx, path, offset, buf)
		if v.metrics != nil {
			v.metrics.RecordRead(name, nbytes, err)
		}
		if err != nil {
			v.health.RecordError(name, err)
			v.logError("read", name, err)
		} else {
			v.health.RecordSuccess(name)
		}
		return err
	}

	shardSize := ceilDiv(nbytes, int64(numShards))
	futures := make([]*threadpool.Future, numShards)

	for i := 0; i < numShards; i++ {
		begin := int64(i) * shardSize
		end := min64((int64(i)+1)*shardSize-1, nbytes-1)
		if begin > end {
			futures[i] = nil
			continue
		}

		shardBuf := buf[begin : end+1]
		shardOffset := offset + begin

		futures[i] = v.pool.EnqueueWithResult(func() error {
			return b.Read(ctx, path, shardOffset, shardBuf)
		})
	}

	if v.metrics != nil {
		queueDepth, inFlight := v.pool.Occupancy()
		v.metrics.RecordPoolOccupancy(queueDepth, inFlight)
	}

	var firstErr error
	shardErrs := make([]string, 0, numShards)
	for _, f := range futures {
		if f == nil {
			continue
		}
		if err := f.Wait(); err != nil {
			shardErrs = append(shardErrs, err.Error())
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if firstErr != nil {
		wrapped := wrapVFSErr(errors.ErrCodeParallelReadFailed, "read", uriStr, firstErr).
			WithDetail("shard_errors", shardErrs).
			WithDetail("num_shards", numShards)
		if v.metrics != nil {
			v.metrics.RecordRead(name, 0, wrapped)
		}
		v.record(name, "read", wrapped)
		return wrapped
	}

	v.record(name, "read", nil)
	if v.metrics != nil {
		v.metrics.RecordRead(name, nbytes, nil)
	}
	return nil
}

func ceilDiv(a, b int64) int64 {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// Validate checks cfg for obviously invalid values before New
// constructs anything, mirroring the teacher's
// Configuration.Validate style.
func (cfg Config) Validate() error {
	if cfg.NumParallelOperations < 1 {
		return fmt.Errorf("vfs: num_parallel_operations must be >= 1, got %d", cfg.NumParallelOperations)
	}
	if cfg.ParallelReadThreshold < 0 {
		return fmt.Errorf("vfs: parallel_read_threshold must be >= 0, got %d", cfg.ParallelReadThreshold)
	}
	return nil
}
