package demo

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/iri-facility-api/internal/config"
	"github.com/JakeFAU/iri-facility-api/internal/facility"
)

func i64(v int64) *int64 { return &v }

func writeFile(t *testing.T, b *Backend, name, content string) {
	t.Helper()
	p := filepath.Join(b.Sandbox(), name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestSandboxSeeded(t *testing.T) {
	t.Parallel()
	b := newBackend(t)
	data, err := b.Download(context.Background(), nil, nil, "test.txt")
	require.NoError(t, err)
	require.Equal(t, "hello world", string(data))
}

func TestPathsStayInSandbox(t *testing.T) {
	t.Parallel()
	b := newBackend(t)
	ctx := context.Background()
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret"), []byte("x"), 0o644))
	require.NoError(t, os.Symlink(outside, filepath.Join(b.Sandbox(), "escape")))

	_, err := b.Download(ctx, nil, nil, "../"+filepath.Base(outside))
	require.ErrorIs(t, err, facility.ErrInvalidArgument)
	_, err = b.Download(ctx, nil, nil, "escape/secret")
	require.ErrorIs(t, err, facility.ErrInvalidArgument)
	_, err = b.Mkdir(ctx, nil, nil, facility.MkdirRequest{Path: "escape/new"})
	require.ErrorIs(t, err, facility.ErrInvalidArgument)

	abs, err := b.Download(ctx, nil, nil, filepath.Join(b.Sandbox(), "test.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello world", string(abs))
}

func TestMkdirThenLs(t *testing.T) {
	t.Parallel()
	b := newBackend(t)
	ctx := context.Background()

	dir, err := b.Mkdir(ctx, nil, nil, facility.MkdirRequest{Path: "t1/nested", Parent: true})
	require.NoError(t, err)
	require.Equal(t, "nested", dir.Name)
	require.Equal(t, "directory", dir.Type)
	require.True(t, strings.HasPrefix(dir.Permissions, "d"))

	_, err = b.Mkdir(ctx, nil, nil, facility.MkdirRequest{Path: "t2/nested"})
	require.Error(t, err)

	files, err := b.Ls(ctx, nil, nil, facility.LsRequest{Path: "t1"})
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "t1", files[0].Name)

	writeFile(t, b, "t1/a.txt", "a")
	writeFile(t, b, "t1/.hidden", "h")
	files, err = b.Ls(ctx, nil, nil, facility.LsRequest{Path: "t1/*"})
	require.NoError(t, err)
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	require.Equal(t, []string{"a.txt", "nested"}, names)

	files, err = b.Ls(ctx, nil, nil, facility.LsRequest{Path: "t1", Recursive: true, ShowHidden: true})
	require.NoError(t, err)
	require.Len(t, files, 4)

	files, err = b.Ls(ctx, nil, nil, facility.LsRequest{Path: "t1/a.txt", NumericUID: true})
	require.NoError(t, err)
	require.Equal(t, "1", files[0].Size)
	require.Equal(t, "file", files[0].Type)
}

func TestRemove(t *testing.T) {
	t.Parallel()
	b := newBackend(t)
	ctx := context.Background()

	err := b.Remove(ctx, nil, nil, "missing")
	require.ErrorIs(t, err, facility.ErrNotFound)
	require.ErrorContains(t, err, "no such file or directory")

	require.ErrorIs(t, b.Remove(ctx, nil, nil, "."), facility.ErrInvalidArgument)
	require.ErrorIs(t, b.Remove(ctx, nil, nil, "/"), facility.ErrInvalidArgument)

	writeFile(t, b, "d/x", "x")
	require.NoError(t, b.Remove(ctx, nil, nil, "d"))
	_, err = os.Stat(filepath.Join(b.Sandbox(), "d"))
	require.True(t, os.IsNotExist(err))
}

func TestHeadTailView(t *testing.T) {
	t.Parallel()
	b := newBackend(t)
	ctx := context.Background()
	writeFile(t, b, "lines.txt", "one\ntwo\nthree\nfour\n")

	tests := []struct {
		name string
		call func() (*facility.FileContent, error)
		want string
		unit facility.ContentUnit
	}{
		{
			name: "head lines",
			call: func() (*facility.FileContent, error) {
				return b.Head(ctx, nil, nil, facility.HeadRequest{Path: "lines.txt", Lines: i64(2)})
			},
			want: "one\ntwo\n",
			unit: facility.ContentLines,
		},
		{
			name: "head bytes",
			call: func() (*facility.FileContent, error) {
				return b.Head(ctx, nil, nil, facility.HeadRequest{Path: "lines.txt", FileBytes: i64(5)})
			},
			want: "one\nt",
			unit: facility.ContentBytes,
		},
		{
			name: "head skip trailing",
			call: func() (*facility.FileContent, error) {
				return b.Head(ctx, nil, nil, facility.HeadRequest{Path: "lines.txt", Lines: i64(1), SkipTrailing: true})
			},
			want: "one\ntwo\nthree\n",
			unit: facility.ContentLines,
		},
		{
			name: "head default",
			call: func() (*facility.FileContent, error) {
				return b.Head(ctx, nil, nil, facility.HeadRequest{Path: "lines.txt"})
			},
			want: "one\ntwo\nthree\nfour\n",
			unit: facility.ContentLines,
		},
		{
			name: "tail lines",
			call: func() (*facility.FileContent, error) {
				return b.Tail(ctx, nil, nil, facility.TailRequest{Path: "lines.txt", Lines: i64(1)})
			},
			want: "four\n",
			unit: facility.ContentLines,
		},
		{
			name: "tail skip heading",
			call: func() (*facility.FileContent, error) {
				return b.Tail(ctx, nil, nil, facility.TailRequest{Path: "lines.txt", Lines: i64(3), SkipHeading: true})
			},
			want: "three\nfour\n",
			unit: facility.ContentLines,
		},
		{
			name: "tail bytes",
			call: func() (*facility.FileContent, error) {
				return b.Tail(ctx, nil, nil, facility.TailRequest{Path: "lines.txt", FileBytes: i64(3)})
			},
			want: "ur\n",
			unit: facility.ContentBytes,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.call()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Content)
			assert.Equal(t, tt.unit, got.ContentType)
		})
	}

	_, err := b.Head(ctx, nil, nil, facility.HeadRequest{Path: "lines.txt", Lines: i64(1), FileBytes: i64(1)})
	require.ErrorIs(t, err, facility.ErrInvalidArgument)

	view, err := b.View(ctx, nil, nil, facility.ViewRequest{Path: "lines.txt", Offset: 4, Size: 3})
	require.NoError(t, err)
	require.Equal(t, "two", view)

	view, err = b.View(ctx, nil, nil, facility.ViewRequest{Path: "lines.txt", Offset: 100, Size: 3})
	require.NoError(t, err)
	require.Empty(t, view)

	_, err = b.View(ctx, nil, nil, facility.ViewRequest{Path: "lines.txt", Size: 4096})
	require.ErrorIs(t, err, facility.ErrInvalidArgument)
}

func TestChecksumTypeStat(t *testing.T) {
	t.Parallel()
	b := newBackend(t)
	ctx := context.Background()

	sum, err := b.Checksum(ctx, nil, nil, "test.txt")
	require.NoError(t, err)
	require.Equal(t, "SHA-256", sum.Algorithm)
	require.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", sum.Checksum)

	kind, err := b.FileType(ctx, nil, nil, "test.txt")
	require.NoError(t, err)
	require.Equal(t, "text/plain; charset=utf-8", kind)

	kind, err = b.FileType(ctx, nil, nil, ".")
	require.NoError(t, err)
	require.Equal(t, "directory", kind)

	st, err := b.Stat(ctx, nil, nil, facility.StatRequest{Path: "test.txt"})
	require.NoError(t, err)
	require.Equal(t, int64(len("hello world")), st.Size)
	require.NotZero(t, st.Mtime)
}

func TestSymlinkAndStat(t *testing.T) {
	t.Parallel()
	b := newBackend(t)
	ctx := context.Background()

	link, err := b.Symlink(ctx, nil, nil, facility.SymlinkRequest{Path: "test.txt", LinkPath: "link"})
	require.NoError(t, err)
	require.Equal(t, "symlink", link.Type)
	require.Equal(t, filepath.Join(b.Sandbox(), "test.txt"), link.LinkTarget)

	followed, err := b.Stat(ctx, nil, nil, facility.StatRequest{Path: "link", Dereference: true})
	require.NoError(t, err)
	require.Equal(t, int64(len("hello world")), followed.Size)

	files, err := b.Ls(ctx, nil, nil, facility.LsRequest{Path: "link", Dereference: true})
	require.NoError(t, err)
	require.Equal(t, "file", files[0].Type)
}

func TestChmodUploadSizeLimit(t *testing.T) {
	t.Parallel()
	b := newBackend(t, func(c *config.DemoConfig) { c.OpsSizeLimit = 8 })
	ctx := context.Background()

	f, err := b.Chmod(ctx, nil, nil, facility.ChmodRequest{Path: "test.txt", Mode: "600"})
	require.NoError(t, err)
	require.Equal(t, "-rw-------", f.Permissions)
	_, err = b.Chmod(ctx, nil, nil, facility.ChmodRequest{Path: "test.txt", Mode: "9"})
	require.ErrorIs(t, err, facility.ErrInvalidArgument)

	require.NoError(t, b.Upload(ctx, nil, nil, facility.UploadRequest{Path: "up.txt", Content: []byte("small")}))
	err = b.Upload(ctx, nil, nil, facility.UploadRequest{Path: "up.txt", Content: []byte("far too large")})
	require.ErrorIs(t, err, facility.ErrInvalidArgument)

	_, err = b.Download(ctx, nil, nil, "test.txt")
	require.ErrorIs(t, err, facility.ErrInvalidArgument, "11 bytes exceed the 8 byte limit")
}

func TestMoveAndCopy(t *testing.T) {
	t.Parallel()
	b := newBackend(t)
	ctx := context.Background()
	writeFile(t, b, "src/a.txt", "a")
	_, err := b.Mkdir(ctx, nil, nil, facility.MkdirRequest{Path: "dst"})
	require.NoError(t, err)

	copied, err := b.Copy(ctx, nil, nil, facility.CopyRequest{Path: "src", TargetPath: "dst"})
	require.NoError(t, err)
	require.Equal(t, "src", copied.Name)
	data, err := os.ReadFile(filepath.Join(b.Sandbox(), "dst", "src", "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "a", string(data))

	_, err = b.Copy(ctx, nil, nil, facility.CopyRequest{Path: "src", TargetPath: "src/inner"})
	require.ErrorIs(t, err, facility.ErrInvalidArgument)

	moved, err := b.Move(ctx, nil, nil, facility.MoveRequest{Path: "src/a.txt", TargetPath: "b.txt"})
	require.NoError(t, err)
	require.Equal(t, "b.txt", moved.Name)
	_, err = os.Stat(filepath.Join(b.Sandbox(), "src", "a.txt"))
	require.True(t, os.IsNotExist(err))

	_, err = b.Move(ctx, nil, nil, facility.MoveRequest{Path: ".", TargetPath: "x"})
	require.ErrorIs(t, err, facility.ErrInvalidArgument)
}

func TestCompressExtract(t *testing.T) {
	t.Parallel()
	for _, c := range []facility.CompressionType{facility.CompressionGzip, facility.CompressionNone, ""} {
		t.Run(string(c)+"_archive", func(t *testing.T) {
			t.Parallel()
			b := newBackend(t)
			ctx := context.Background()
			writeFile(t, b, "data/keep.txt", "keep")
			writeFile(t, b, "data/skip.log", "skip")

			archive, err := b.Compress(ctx, nil, nil, facility.CompressRequest{
				Path:         "data",
				TargetPath:   "data.tar",
				MatchPattern: "*.txt",
				Compression:  c,
			})
			require.NoError(t, err)
			require.Equal(t, "data.tar", archive.Name)

			_, err = b.Mkdir(ctx, nil, nil, facility.MkdirRequest{Path: "out"})
			require.NoError(t, err)
			_, err = b.Extract(ctx, nil, nil, facility.ExtractRequest{Path: "data.tar", TargetPath: "out"})
			require.NoError(t, err)

			got, err := os.ReadFile(filepath.Join(b.Sandbox(), "out", "data", "keep.txt"))
			require.NoError(t, err)
			require.Equal(t, "keep", string(got))
			_, err = os.Stat(filepath.Join(b.Sandbox(), "out", "data", "skip.log"))
			require.True(t, os.IsNotExist(err))
		})
	}
}

func TestCompressionUnsupported(t *testing.T) {
	t.Parallel()
	b := newBackend(t)
	ctx := context.Background()

	_, err := b.Compress(ctx, nil, nil, facility.CompressRequest{Path: "test.txt", TargetPath: "t.tar.bz2", Compression: facility.CompressionBzip2})
	require.ErrorIs(t, err, facility.ErrUnsupported)
	_, err = b.Extract(ctx, nil, nil, facility.ExtractRequest{Path: "test.txt", TargetPath: ".", Compression: facility.CompressionXz})
	require.ErrorIs(t, err, facility.ErrUnsupported)
	_, err = b.Compress(ctx, nil, nil, facility.CompressRequest{Path: "test.txt", TargetPath: "t.tar", Compression: "zip"})
	require.ErrorIs(t, err, facility.ErrInvalidArgument)
}
