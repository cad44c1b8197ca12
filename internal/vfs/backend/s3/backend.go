// Package s3 implements backend.Backend against an S3-compatible
// object store, adapted from the teacher's internal/storage/s3
// package: the tiering/cost-optimizer machinery is gone (no
// counterpart in the VFS domain), replaced by the capability-set
// methods spec.md §4.2 requires. Writes buffer in memory per open
// path and flush — via a single PutObject or a multipart upload,
// depending on size — only when CloseFile is called.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	cargoships3 "github.com/scttfrdmn/cargoship/pkg/aws/s3"

	vfsbackend "github.com/tiledb/vfs/internal/vfs/backend"
	"github.com/tiledb/vfs/internal/circuit"
	"github.com/tiledb/vfs/pkg/errors"
	"github.com/tiledb/vfs/pkg/retry"
)

// Backend is a vfsbackend.Backend implementation backed by a single
// *s3.Client shared across every bucket named by an s3:// URI. A
// Backend is not scoped to one bucket at construction time: the
// bucket is the first path segment of every call, mirroring the
// `s3://<bucket>/<key>` grammar of spec.md §6.
type Backend struct {
	cm      *ClientManager
	cfg     *Config
	logger  *slog.Logger
	retryer *retry.Retryer
	breaker *circuit.CircuitBreaker

	buffers  *bufferRegistry
	uploads  *MultipartStateManager
	mu       sync.Mutex
	nextLock uint64
	locks    map[uint64]struct{}
}

// New constructs an S3 backend from cfg. logger receives the
// teacher's own log/slog boundary logging (see internal/storage/s3's
// existing use of *slog.Logger), distinct from the structured logger
// the VFS dispatcher uses above this layer.
func New(ctx context.Context, cfg *Config, logger *slog.Logger) (*Backend, error) {
	cm, err := NewClientManager(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	return &Backend{
		cm:      cm,
		cfg:     cfg,
		logger:  logger,
		retryer: retry.New(retry.DefaultConfig()),
		breaker: circuit.NewCircuitBreaker("s3-backend", circuit.Config{}),
		buffers: newBufferRegistry(),
		uploads: NewMultipartStateManager(),
		locks:   make(map[uint64]struct{}),
	}, nil
}

func wrapErr(code errors.ErrorCode, op, path string, cause error) *errors.ObjectFSError {
	return errors.NewError(code, "s3: "+op+" failed for "+path).
		WithComponent("s3").
		WithOperation(op).
		WithContext("path", path).
		WithContext("scheme", "s3").
		WithCause(cause)
}

// splitPath divides a backend path of the form "<bucket>/<key...>"
// (the form the dispatcher produces for every s3:// URI) into its
// bucket and key parts. An empty key refers to the bucket itself.
func splitPath(path string) (bucket, key string) {
	path = strings.TrimPrefix(path, "/")
	idx := strings.IndexByte(path, '/')
	if idx < 0 {
		return path, ""
	}
	return path[:idx], path[idx+1:]
}

// withRetry runs fn through the backend's retryer and circuit
// breaker, bounding the VFS's own retry of transient S3 errors (see
// DESIGN.md, "S3 backend resiliency") without pulling in a
// generalized recovery engine.
func (b *Backend) withRetry(fn func() error) error {
	return b.breaker.Execute(func() error {
		return b.retryer.Do(fn)
	})
}

func (b *Backend) CreateDir(ctx context.Context, path string) error {
	bucket, key := splitPath(path)
	dirKey := strings.TrimSuffix(key, "/") + "/"

	if b.isDir(ctx, bucket, key) {
		return wrapErr(errors.ErrCodeVFSAlreadyExists, "create_dir", path, nil)
	}

	err := b.withRetry(func() error {
		_, err := b.cm.Client().PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(dirKey),
			Body:   bytes.NewReader(nil),
		})
		return err
	})
	if err != nil {
		return wrapErr(errors.ErrCodeVFSBackendError, "create_dir", path, err)
	}
	return nil
}

func (b *Backend) CreateFile(ctx context.Context, path string) error {
	bucket, key := splitPath(path)

	if b.headExists(ctx, bucket, key) {
		return nil
	}

	err := b.withRetry(func() error {
		_, err := b.cm.Client().PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
			Body:   bytes.NewReader(nil),
		})
		return err
	})
	if err != nil {
		return wrapErr(errors.ErrCodeVFSBackendError, "create_file", path, err)
	}
	return nil
}

func (b *Backend) RemovePath(ctx context.Context, path string) error {
	bucket, key := splitPath(path)
	prefix := strings.TrimSuffix(key, "/")
	if prefix != "" {
		prefix += "/"
	}

	var keys []string
	var continuationToken *string
	for {
		out, err := b.cm.Client().ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return wrapErr(errors.ErrCodeVFSBackendError, "remove_path", path, err)
		}
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		continuationToken = out.NextContinuationToken
	}

	// Also remove the bare key itself (it may be a zero-byte leaf
	// object rather than a directory marker).
	if b.headExists(ctx, bucket, key) {
		keys = append(keys, key)
	}

	for _, k := range keys {
		if err := b.withRetry(func() error {
			_, err := b.cm.Client().DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(bucket),
				Key:    aws.String(k),
			})
			return err
		}); err != nil {
			return wrapErr(errors.ErrCodeVFSBackendError, "remove_path", path, err)
		}
	}
	return nil
}

func (b *Backend) RemoveFile(ctx context.Context, path string) error {
	bucket, key := splitPath(path)

	if strings.HasSuffix(key, "/") {
		return wrapErr(errors.ErrCodeInvalidArgument, "remove_file", path, nil)
	}
	if !b.headExists(ctx, bucket, key) {
		return nil
	}

	err := b.withRetry(func() error {
		_, err := b.cm.Client().DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		return err
	})
	if err != nil {
		return wrapErr(errors.ErrCodeVFSBackendError, "remove_file", path, err)
	}
	return nil
}

func (b *Backend) FileSize(ctx context.Context, path string) (int64, error) {
	bucket, key := splitPath(path)

	out, err := b.cm.Client().HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, wrapErr(errors.ErrCodeVFSNotFound, "file_size", path, err)
	}
	return aws.ToInt64(out.ContentLength), nil
}

func (b *Backend) headExists(ctx context.Context, bucket, key string) bool {
	_, err := b.cm.Client().HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	return err == nil
}

func (b *Backend) isDir(ctx context.Context, bucket, key string) bool {
	prefix := strings.TrimSuffix(key, "/")
	if prefix != "" {
		prefix += "/"
	}
	out, err := b.cm.Client().ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(1),
	})
	return err == nil && len(out.Contents) > 0
}

func (b *Backend) IsDir(ctx context.Context, path string) bool {
	bucket, key := splitPath(path)
	if key == "" {
		return b.IsBucket(ctx, path)
	}
	return b.isDir(ctx, bucket, key)
}

func (b *Backend) IsFile(ctx context.Context, path string) bool {
	bucket, key := splitPath(path)
	if key == "" || strings.HasSuffix(key, "/") {
		return false
	}
	return b.headExists(ctx, bucket, key)
}

func (b *Backend) IsBucket(ctx context.Context, path string) bool {
	bucket, _ := splitPath(path)
	return b.cm.HealthCheck(ctx, bucket) == nil
}

func (b *Backend) Ls(ctx context.Context, parent string) ([]vfsbackend.DirEntry, error) {
	bucket, key := splitPath(parent)
	prefix := strings.TrimSuffix(key, "/")
	if prefix != "" {
		prefix += "/"
	}

	out, err := b.cm.Client().ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:    aws.String(bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	if err != nil {
		return nil, wrapErr(errors.ErrCodeVFSBackendError, "ls", parent, err)
	}

	entries := make([]vfsbackend.DirEntry, 0, len(out.Contents)+len(out.CommonPrefixes))
	for _, cp := range out.CommonPrefixes {
		p := aws.ToString(cp.Prefix)
		entries = append(entries, vfsbackend.DirEntry{
			URI:   "s3://" + bucket + "/" + p,
			IsDir: true,
		})
	}
	for _, obj := range out.Contents {
		k := aws.ToString(obj.Key)
		if k == prefix {
			continue
		}
		entries = append(entries, vfsbackend.DirEntry{
			URI:   "s3://" + bucket + "/" + k,
			IsDir: false,
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].URI < entries[j].URI })
	return entries, nil
}

func (b *Backend) Read(ctx context.Context, path string, offset int64, buf []byte) error {
	bucket, key := splitPath(path)
	if len(buf) == 0 {
		return nil
	}

	rangeHeader := fmt.Sprintf("bytes=%d-%d", offset, offset+int64(len(buf))-1)

	var body io.ReadCloser
	err := b.withRetry(func() error {
		out, err := b.cm.Client().GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
			Range:  aws.String(rangeHeader),
		})
		if err != nil {
			return err
		}
		body = out.Body
		return nil
	})
	if err != nil {
		return wrapErr(errors.ErrCodeVFSNotFound, "read", path, err)
	}
	defer body.Close()

	n, err := io.ReadFull(body, buf)
	if err != nil {
		return wrapErr(errors.ErrCodeVFSBackendError, "read",
			path, fmt.Errorf("short read: got %d of %d bytes: %w", n, len(buf), err))
	}
	return nil
}

// Write appends buf into the in-memory buffer tracked for path.
// appendMode is rejected: S3 never supports append (SupportsAppend
// returns false), and OpenFile(ModeAppend) already fails before a
// Write can be attempted.
func (b *Backend) Write(ctx context.Context, path string, buf []byte, appendMode bool) error {
	if appendMode {
		return wrapErr(errors.ErrCodeInvalidArgument, "write", path, nil)
	}
	b.buffers.get(path).append(buf)
	return nil
}

// Sync is a no-op on S3: durability is only achieved at CloseFile's
// multipart-complete (or single PutObject), per spec.md §4.2.
func (b *Backend) Sync(ctx context.Context, path string) error { return nil }

func (b *Backend) CreateBucket(ctx context.Context, path string) error {
	bucket, _ := splitPath(path)
	err := b.withRetry(func() error {
		_, err := b.cm.Client().CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
		return err
	})
	if err != nil {
		return wrapErr(errors.ErrCodeVFSBackendError, "create_bucket", path, err)
	}
	return nil
}

func (b *Backend) RemoveBucket(ctx context.Context, path string) error {
	bucket, _ := splitPath(path)
	err := b.withRetry(func() error {
		_, err := b.cm.Client().DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)})
		return err
	})
	if err != nil {
		return wrapErr(errors.ErrCodeVFSBackendError, "remove_bucket", path, err)
	}
	return nil
}

func (b *Backend) EmptyBucket(ctx context.Context, path string) error {
	return b.RemovePath(ctx, path)
}

func (b *Backend) IsEmptyBucket(ctx context.Context, path string) (bool, error) {
	bucket, _ := splitPath(path)
	out, err := b.cm.Client().ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, wrapErr(errors.ErrCodeVFSBackendError, "is_empty_bucket", path, err)
	}
	return len(out.Contents) == 0, nil
}

func (b *Backend) MovePath(ctx context.Context, oldPath, newPath string) error {
	srcBucket, srcKey := splitPath(oldPath)
	dstBucket, dstKey := splitPath(newPath)

	err := b.withRetry(func() error {
		_, err := b.cm.Client().CopyObject(ctx, &s3.CopyObjectInput{
			Bucket:     aws.String(dstBucket),
			Key:        aws.String(dstKey),
			CopySource: aws.String(srcBucket + "/" + srcKey),
		})
		return err
	})
	if err != nil {
		return wrapErr(errors.ErrCodeVFSBackendError, "move_path", oldPath, err)
	}

	if err := b.RemoveFile(ctx, oldPath); err != nil {
		return wrapErr(errors.ErrCodeVFSBackendError, "move_path", oldPath, err)
	}
	return nil
}

// OpenFile rejects ModeAppend (S3 never supports it) and, for
// ModeWrite, discards any stale buffered bytes left over from a
// previous open of the same path that was never closed.
func (b *Backend) OpenFile(ctx context.Context, path string, mode vfsbackend.OpenMode) error {
	switch mode {
	case vfsbackend.ModeAppend:
		return wrapErr(errors.ErrCodeInvalidArgument, "open_file", path, nil).
			WithDetail("reason", "append is unsupported on S3")
	case vfsbackend.ModeWrite:
		b.buffers.discard(path)
	}
	return nil
}

// CloseFile flushes path's accumulated write buffer, if any, via a
// single PutObject or a multipart upload depending on size. Closing
// a path that was never written (no tracked buffer) is a no-op,
// matching the stateless open/close contract of spec.md §4.5.
func (b *Backend) CloseFile(ctx context.Context, path string) error {
	buf := b.buffers.take(path)
	if buf == nil {
		return nil
	}

	data := buf.bytes()
	bucket, key := splitPath(path)

	if err := b.flush(ctx, bucket, key, data); err != nil {
		return wrapErr(errors.ErrCodeVFSBackendError, "close_file", path, err)
	}
	return nil
}

// flush uploads data to bucket/key, preferring the cargoship
// transporter when optimized uploads are enabled, falling back to a
// hand-rolled multipart upload above the configured threshold and to
// a single PutObject below it.
func (b *Backend) flush(ctx context.Context, bucket, key string, data []byte) error {
	if t := b.cm.Transporter(bucket); t != nil {
		archive := cargoships3.Archive{
			Key:    key,
			Reader: bytes.NewReader(data),
			Size:   int64(len(data)),
		}
		_, err := t.Upload(ctx, archive)
		return err
	}

	if int64(len(data)) >= b.cfg.MultipartThreshold && b.cfg.MultipartThreshold > 0 {
		return b.multipartUpload(ctx, bucket, key, data)
	}

	return b.withRetry(func() error {
		_, err := b.cm.Client().PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
		})
		return err
	})
}

func (b *Backend) multipartUpload(ctx context.Context, bucket, key string, data []byte) error {
	create, err := b.cm.Client().CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return err
	}
	uploadID := aws.ToString(create.UploadId)

	chunkSize := b.cfg.MultipartChunkSize
	if chunkSize <= 0 {
		chunkSize = int64(len(data))
	}

	state := NewMultipartUploadState(uploadID, bucket, key, int64(len(data)), chunkSize)
	b.uploads.TrackUpload(state)
	defer b.uploads.RemoveUpload(uploadID)

	var completed []s3types.CompletedPart
	for i := 0; i*int(chunkSize) < len(data); i++ {
		start := i * int(chunkSize)
		end := start + int(chunkSize)
		if end > len(data) {
			end = len(data)
		}
		partNumber := int32(i + 1)

		out, err := b.cm.Client().UploadPart(ctx, &s3.UploadPartInput{
			Bucket:     aws.String(bucket),
			Key:        aws.String(key),
			UploadId:   aws.String(uploadID),
			PartNumber: aws.Int32(partNumber),
			Body:       bytes.NewReader(data[start:end]),
		})
		if err != nil {
			state.MarkPartFailed(int(partNumber), err)
			b.uploads.MarkUploadFailed(uploadID)
			b.abortMultipart(ctx, bucket, key, uploadID)
			return err
		}

		state.MarkPartCompleted(int(partNumber), int64(end-start), aws.ToString(out.ETag))
		completed = append(completed, s3types.CompletedPart{
			ETag:       out.ETag,
			PartNumber: aws.Int32(partNumber),
		})
	}

	_, err = b.cm.Client().CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &s3types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		b.abortMultipart(ctx, bucket, key, uploadID)
		return err
	}

	b.uploads.MarkUploadCompleted(uploadID)
	return nil
}

func (b *Backend) abortMultipart(ctx context.Context, bucket, key, uploadID string) {
	_, _ = b.cm.Client().AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
}

// FilelockLock returns a no-op sentinel lock: S3 has no byte-range or
// whole-object locking primitive.
func (b *Backend) FilelockLock(ctx context.Context, path string, shared bool) (vfsbackend.FileLock, error) {
	id := atomic.AddUint64(&b.nextLock, 1)

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

// SupportsAppend is always false: APPEND is invalid on S3 per
// spec.md §3 and is rejected at OpenFile time.
func (b *Backend) SupportsAppend() bool { return false }
