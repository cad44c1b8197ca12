package uri

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScheme(t *testing.T) {
	cases := []struct {
		in   string
		want Scheme
	}{
		{"/tmp/foo", SchemeFile},
		{"file:///tmp/foo", SchemeFile},
		{"hdfs://namenode:8020/data/foo", SchemeHDFS},
		{"s3://my-bucket/key", SchemeS3},
		{"ftp://example.com/x", SchemeOther},
		{"unsupported-scheme-string", SchemeFile},
	}

	for _, c := range cases {
		got := Parse(c.in)
		assert.Equal(t, c.want, got.Scheme(), "input %q", c.in)
	}
}

func TestParseAuthorityCanonicalizesSlashes(t *testing.T) {
	u := Parse("s3://bucket//double//slash")
	require.Equal(t, SchemeS3, u.Scheme())
	assert.Equal(t, "bucket", u.Authority())
	assert.Equal(t, "/double//slash", u.Path())
}

func TestAbsPathIdempotent(t *testing.T) {
	inputs := []string{"relative/path", "/already/absolute", "./a/../b"}
	for _, in := range inputs {
		once := AbsPath(in)
		twice := AbsPath(once)
		assert.Equal(t, once, twice, "AbsPath not idempotent for %q", in)
	}
}

func TestAbsPathPassesThroughRemoteSchemes(t *testing.T) {
	assert.Equal(t, "s3://bucket/key", AbsPath("s3://bucket/key"))
	assert.Equal(t, "hdfs://nn/path", AbsPath("hdfs://nn/path"))
}

func TestAbsPathResolvesDotDot(t *testing.T) {
	got := AbsPath("a/../b")
	u := Parse(got)
	require.True(t, u.IsFile())
	assert.Equal(t, filepath.Base(u.NativePath()), "b")
}

func TestURIStringRoundTrip(t *testing.T) {
	assert.Equal(t, "s3://bucket/key", Parse("s3://bucket/key").String())
	assert.Equal(t, "hdfs://nn/data", Parse("hdfs://nn/data").String())
}
