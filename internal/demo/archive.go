package demo

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/bzip2"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/JakeFAU/iri-facility-api/internal/facility"
)

var (
	gzipMagic  = []byte{0x1f, 0x8b}
	bzip2Magic = []byte("BZh")
)

// Compress archives Path into a tar at TargetPath. Member names are relative
// to the sandbox root. MatchPattern keeps only files whose base name matches.
func (b *Backend) Compress(_ context.Context, _ *facility.Resource, _ *facility.User, req facility.CompressRequest) (*facility.File, error) {
	if !req.Compression.Valid() {
		return nil, fmt.Errorf("%w: compression %q", facility.ErrInvalidArgument, req.Compression)
	}
	switch req.Compression {
	case facility.CompressionBzip2, facility.CompressionXz:
		return nil, fmt.Errorf("%w: %s compression", facility.ErrUnsupported, req.Compression)
	}
	if req.MatchPattern != "" {
		if _, err := filepath.Match(req.MatchPattern, ""); err != nil {
			return nil, fmt.Errorf("%w: match pattern: %v", facility.ErrInvalidArgument, err)
		}
	}
	src, err := b.resolve(req.Path)
	if err != nil {
		return nil, err
	}
	dst, err := b.resolve(req.TargetPath)
	if err != nil {
		return nil, err
	}
	if within(src, dst) && src != dst {
		return nil, fmt.Errorf("%w: archive cannot be written inside %s", facility.ErrInvalidArgument, req.Path)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	err = b.writeArchive(out, src, req)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst)
		return nil, err
	}
	b.logger.Debug("archive written",
		zap.String("source", src),
		zap.String("target", dst),
		zap.String("compression", string(req.Compression)),
	)
	return b.fileEntry(dst, false, false)
}

func (b *Backend) writeArchive(w io.Writer, src string, req facility.CompressRequest) error {
	var zw *gzip.Writer
	if req.Compression != facility.CompressionNone {
		zw = gzip.NewWriter(w)
		w = zw
	}
	tw := tar.NewWriter(w)
	err := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := os.Lstat(p)
		if err != nil {
			return err
		}
		if req.Dereference && info.Mode()&fs.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(p)
			if err != nil || !b.inside(resolved) {
				return fmt.Errorf("%w: link %s leaves sandbox", facility.ErrInvalidArgument, p)
			}
			if info, err = os.Stat(resolved); err != nil {
				return err
			}
		}
		if req.MatchPattern != "" && !info.IsDir() {
			if ok, _ := filepath.Match(req.MatchPattern, filepath.Base(p)); !ok {
				return nil
			}
		}
		return b.addMember(tw, p, info)
	})
	if cerr := tw.Close(); err == nil {
		err = cerr
	}
	if zw != nil {
		if cerr := zw.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (b *Backend) addMember(tw *tar.Writer, p string, info fs.FileInfo) error {
	link := ""
	if info.Mode()&fs.ModeSymlink != 0 {
		target, err := os.Readlink(p)
		if err != nil {
			return err
		}
		link = target
	}
	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	name, err := filepath.Rel(b.sandbox, p)
	if err != nil {
		return err
	}
	hdr.Name = filepath.ToSlash(name)
	if info.IsDir() {
		hdr.Name += "/"
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("tar header %s: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}

// Extract unpacks the tar at Path into the directory TargetPath. An empty
// compression is detected from the archive header.
func (b *Backend) Extract(_ context.Context, _ *facility.Resource, _ *facility.User, req facility.ExtractRequest) (*facility.File, error) {
	if !req.Compression.Valid() {
		return nil, fmt.Errorf("%w: compression %q", facility.ErrInvalidArgument, req.Compression)
	}
	if req.Compression == facility.CompressionXz {
		return nil, fmt.Errorf("%w: %s compression", facility.ErrUnsupported, req.Compression)
	}
	src, err := b.resolve(req.Path)
	if err != nil {
		return nil, err
	}
	dst, err := b.resolve(req.TargetPath)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(dst)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", facility.ErrInvalidArgument, req.TargetPath)
	}

	f, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r, err := decompress(bufio.NewReader(f), req.Compression)
	if err != nil {
		return nil, err
	}
	if err := b.readArchive(tar.NewReader(r), dst); err != nil {
		return nil, err
	}
	return b.fileEntry(dst, false, false)
}

func decompress(r *bufio.Reader, c facility.CompressionType) (io.Reader, error) {
	if c == "" {
		head, _ := r.Peek(3)
		switch {
		case bytes.HasPrefix(head, gzipMagic):
			c = facility.CompressionGzip
		case bytes.HasPrefix(head, bzip2Magic):
			c = facility.CompressionBzip2
		default:
			c = facility.CompressionNone
		}
	}
	switch c {
	case facility.CompressionGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("%w: gzip: %v", facility.ErrInvalidArgument, err)
		}
		return zr, nil
	case facility.CompressionBzip2:
		return bzip2.NewReader(r), nil
	}
	return r, nil
}

func (b *Backend) readArchive(tr *tar.Reader, dst string) error {
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: read archive: %v", facility.ErrInvalidArgument, err)
		}
		target := filepath.Join(dst, filepath.FromSlash(hdr.Name))
		if !within(dst, target) {
			return fmt.Errorf("%w: archive member %s escapes target", facility.ErrInvalidArgument, hdr.Name)
		}
		mode := fs.FileMode(hdr.Mode).Perm()
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, mode|0o700); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := writeMember(target, tr, mode); err != nil {
				return err
			}
		case tar.TypeSymlink:
			linked := hdr.Linkname
			if !filepath.IsAbs(linked) {
				linked = filepath.Join(filepath.Dir(target), linked)
			}
			if !b.inside(filepath.Clean(linked)) {
				return fmt.Errorf("%w: archive link %s leaves sandbox", facility.ErrInvalidArgument, hdr.Name)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		default:
			b.logger.Debug("archive member skipped",
				zap.String("name", hdr.Name),
				zap.String("type", string(hdr.Typeflag)),
			)
		}
	}
}

func writeMember(path string, r io.Reader, mode fs.FileMode) error {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
