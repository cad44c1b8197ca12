// Package uri classifies storage locations into the schemes the VFS
// understands and normalizes local paths to absolute form. It has no
// dependency on any backend: a URI is a pure value.
package uri

import (
	"path/filepath"
	"runtime"
	"strings"
)

// Scheme identifies which backend a URI routes to.
type Scheme int

const (
	// SchemeFile is the local POSIX/Windows filesystem.
	SchemeFile Scheme = iota
	// SchemeHDFS is the Hadoop Distributed File System.
	SchemeHDFS
	// SchemeS3 is an S3-compatible object store.
	SchemeS3
	// SchemeOther is any scheme the VFS does not recognize.
	SchemeOther
)

// String returns the scheme's canonical prefix word.
func (s Scheme) String() string {
	switch s {
	case SchemeFile:
		return "file"
	case SchemeHDFS:
		return "hdfs"
	case SchemeS3:
		return "s3"
	default:
		return "other"
	}
}

const (
	filePrefix = "file://"
	hdfsPrefix = "hdfs://"
	s3Prefix   = "s3://"
)

// URI is a value type carrying a scheme, an authority (for remote
// schemes), and a path. It is immutable after construction.
type URI struct {
	scheme    Scheme
	authority string
	path      string
	raw       string
}

// Parse classifies s into a URI. It never fails: an unrecognized
// scheme prefix becomes SchemeOther and the input is returned
// unchanged as the raw form.
func Parse(s string) URI {
	switch {
	case strings.HasPrefix(s, filePrefix):
		return URI{scheme: SchemeFile, path: s[len(filePrefix):], raw: s}
	case strings.HasPrefix(s, hdfsPrefix):
		return parseAuthorityURI(SchemeHDFS, hdfsPrefix, s)
	case strings.HasPrefix(s, s3Prefix):
		return parseAuthorityURI(SchemeS3, s3Prefix, s)
	case strings.Contains(s, "://"):
		return URI{scheme: SchemeOther, path: s, raw: s}
	default:
		// A bare path with no scheme prefix is implicitly file://.
		return URI{scheme: SchemeFile, path: s, raw: s}
	}
}

// parseAuthorityURI splits "<prefix><authority>/<path...>" into its
// authority and path parts, canonicalizing by stripping duplicate
// slashes immediately after the authority.
func parseAuthorityURI(scheme Scheme, prefix, s string) URI {
	rest := s[len(prefix):]
	idx := strings.IndexByte(rest, '/')
	if idx < 0 {
		return URI{scheme: scheme, authority: rest, raw: s}
	}

	authority := rest[:idx]
	path := rest[idx:]
	for len(path) > 1 && path[0] == '/' && path[1] == '/' {
		path = path[1:]
	}
	return URI{scheme: scheme, authority: authority, path: path, raw: s}
}

// Scheme returns the URI's scheme tag.
func (u URI) Scheme() Scheme { return u.scheme }

// Authority returns the URI's authority (bucket, HDFS namenode, ...).
// Empty for local and "other" URIs.
func (u URI) Authority() string { return u.authority }

// Path returns the URI's path component, without the scheme prefix
// or authority.
func (u URI) Path() string { return u.path }

// String returns the URI in its canonical "<scheme>://..." form for
// remote schemes, or the bare filesystem path for local URIs.
func (u URI) String() string {
	switch u.scheme {
	case SchemeFile:
		if strings.HasPrefix(u.raw, filePrefix) {
			return filePrefix + u.path
		}
		return u.path
	case SchemeHDFS:
		return hdfsPrefix + u.authority + u.path
	case SchemeS3:
		return s3Prefix + u.authority + u.path
	default:
		return u.raw
	}
}

// IsFile reports whether u routes to the local backend.
func (u URI) IsFile() bool { return u.scheme == SchemeFile }

// IsHDFS reports whether u routes to the HDFS backend.
func (u URI) IsHDFS() bool { return u.scheme == SchemeHDFS }

// IsS3 reports whether u routes to the S3 backend.
func (u URI) IsS3() bool { return u.scheme == SchemeS3 }

// NativePath returns the local-OS form of a file URI's path: forward
// slashes are translated to the platform separator on Windows. It is
// only meaningful for SchemeFile URIs.
func (u URI) NativePath() string {
	if runtime.GOOS == "windows" {
		return filepath.FromSlash(u.path)
	}
	return u.path
}

// AbsPath returns the absolute-path form of s.
//
// For a file URI (bare path or "file://" prefix), the path is resolved
// against the process's working directory, "." and ".." segments are
// collapsed, repeated separators are removed, and on Windows
// backslashes are translated to the canonical forward-slash form
// before being re-prefixed with "file://". For remote schemes and
// "other", the input is returned unchanged: AbsPath is the only
// operation that can synthesize an authority, and it never fails.
//
// AbsPath is idempotent: AbsPath(AbsPath(s)) == AbsPath(s).
func AbsPath(s string) string {
	u := Parse(s)
	if u.scheme != SchemeFile {
		return s
	}

	p := u.NativePath()
	abs, err := filepath.Abs(p)
	if err != nil {
		// filepath.Abs only fails if os.Getwd fails; fall back to a
		// Clean of the raw input rather than propagating an error
		// AbsPath is documented to never produce.
		abs = filepath.Clean(p)
	}

	return filePrefix + filepath.ToSlash(abs)
}
