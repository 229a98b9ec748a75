package demo

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/iri-facility-api/internal/facility"
	"github.com/JakeFAU/iri-facility-api/internal/hash/sha256"
)

const (
	seedFile    = "test.txt"
	seedContent = "hello world"

	defaultWindowLines = 10
	timeLayout         = "2006-01-02 15:04:05"
)

// prepareSandbox creates dir if needed, seeds it, and returns its resolved path.
func prepareSandbox(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("demo: sandbox path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", fmt.Errorf("demo: create sandbox: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("demo: resolve sandbox: %w", err)
	}
	seed := filepath.Join(resolved, seedFile)
	if _, err := os.Lstat(seed); errors.Is(err, fs.ErrNotExist) {
		if err := os.WriteFile(seed, []byte(seedContent), 0o644); err != nil {
			return "", fmt.Errorf("demo: seed sandbox: %w", err)
		}
	}
	return resolved, nil
}

// resolve maps a caller path onto the sandbox, following every symlink.
// Paths are relative to the sandbox root; an absolute path already inside
// the sandbox is accepted as is. Missing trailing components are allowed so
// targets of mkdir or upload can be named.
func (b *Backend) resolve(path string) (string, error) {
	joined := b.join(path)
	resolved, err := realPath(joined)
	if err != nil {
		return "", err
	}
	if !b.inside(resolved) {
		return "", fmt.Errorf("%w: path outside sandbox: %s", facility.ErrInvalidArgument, path)
	}
	return resolved, nil
}

// resolveEntry is resolve without following a final symlink, for operations
// that act on the link itself.
func (b *Backend) resolveEntry(path string) (string, error) {
	joined := b.join(path)
	if joined == b.sandbox {
		return b.sandbox, nil
	}
	dir, err := b.resolve(filepath.Dir(joined))
	if err != nil {
		return "", fmt.Errorf("%w: path outside sandbox: %s", facility.ErrInvalidArgument, path)
	}
	return filepath.Join(dir, filepath.Base(joined)), nil
}

func (b *Backend) join(path string) string {
	if filepath.IsAbs(path) && b.inside(filepath.Clean(path)) {
		return filepath.Clean(path)
	}
	return filepath.Join(b.sandbox, path)
}

func (b *Backend) inside(p string) bool {
	return within(b.sandbox, p)
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// realPath evaluates symlinks in the longest existing prefix of p and
// re-appends the rest.
func realPath(p string) (string, error) {
	var rest []string
	cur := p
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			for i := len(rest) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, rest[i])
			}
			return resolved, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", err
		}
		rest = append(rest, filepath.Base(cur))
		cur = parent
	}
}

// fileEntry describes p. Symlinks are described as links unless follow is set.
func (b *Backend) fileEntry(p string, follow, numeric bool) (*facility.File, error) {
	info, err := os.Lstat(p)
	if err != nil {
		return nil, err
	}
	f := &facility.File{Name: filepath.Base(p)}
	if info.Mode()&fs.ModeSymlink != 0 {
		if follow {
			if target, err := os.Stat(p); err == nil {
				info = target
			}
		} else if target, err := os.Readlink(p); err == nil {
			f.LinkTarget = target
		}
	}
	switch {
	case info.IsDir():
		f.Type = "directory"
	case info.Mode()&fs.ModeSymlink != 0:
		f.Type = "symlink"
	case info.Mode().IsRegular():
		f.Type = "file"
	default:
		f.Type = "other"
	}
	f.User, f.Group = ownerNames(info, numeric)
	f.Permissions = fileMode(info.Mode())
	f.LastModified = info.ModTime().Format(timeLayout)
	f.Size = strconv.FormatInt(info.Size(), 10)
	return f, nil
}

func ownerNames(info fs.FileInfo, numeric bool) (string, string) {
	uid, gid, ok := owner(info)
	if !ok {
		return "", ""
	}
	u := strconv.FormatUint(uint64(uid), 10)
	g := strconv.FormatUint(uint64(gid), 10)
	if numeric {
		return u, g
	}
	if found, err := user.LookupId(u); err == nil {
		u = found.Username
	}
	if found, err := user.LookupGroupId(g); err == nil {
		g = found.Name
	}
	return u, g
}

// fileMode renders mode the way ls -l does.
func fileMode(m fs.FileMode) string {
	kind := byte('-')
	switch {
	case m.IsDir():
		kind = 'd'
	case m&fs.ModeSymlink != 0:
		kind = 'l'
	case m&fs.ModeNamedPipe != 0:
		kind = 'p'
	case m&fs.ModeSocket != 0:
		kind = 's'
	case m&fs.ModeCharDevice != 0:
		kind = 'c'
	case m&fs.ModeDevice != 0:
		kind = 'b'
	}
	return string(kind) + m.Perm().String()[1:]
}

func basicStat(fi fs.FileInfo) facility.FileStat {
	mtime := fi.ModTime().Unix()
	return facility.FileStat{
		Mode:  uint32(fi.Mode().Perm()),
		Nlink: 1,
		Size:  fi.Size(),
		Atime: mtime,
		Ctime: mtime,
		Mtime: mtime,
	}
}

// Chmod sets the permission bits of a path. Mode is octal.
func (b *Backend) Chmod(_ context.Context, _ *facility.Resource, _ *facility.User, req facility.ChmodRequest) (*facility.File, error) {
	p, err := b.resolve(req.Path)
	if err != nil {
		return nil, err
	}
	mode, err := strconv.ParseUint(req.Mode, 8, 32)
	if err != nil || mode > 0o7777 {
		return nil, fmt.Errorf("%w: mode %q is not an octal permission", facility.ErrInvalidArgument, req.Mode)
	}
	if err := os.Chmod(p, fs.FileMode(mode)); err != nil {
		return nil, err
	}
	return b.fileEntry(p, false, false)
}

// Chown changes the owner and group of a path. Names or numeric ids are
// accepted; an empty value leaves that side unchanged.
func (b *Backend) Chown(_ context.Context, _ *facility.Resource, _ *facility.User, req facility.ChownRequest) (*facility.File, error) {
	p, err := b.resolve(req.Path)
	if err != nil {
		return nil, err
	}
	uid, err := lookupID(req.Owner, func(name string) (string, error) {
		u, err := user.Lookup(name)
		if err != nil {
			return "", err
		}
		return u.Uid, nil
	})
	if err != nil {
		return nil, err
	}
	gid, err := lookupID(req.Group, func(name string) (string, error) {
		g, err := user.LookupGroup(name)
		if err != nil {
			return "", err
		}
		return g.Gid, nil
	})
	if err != nil {
		return nil, err
	}
	if err := os.Chown(p, uid, gid); err != nil {
		return nil, err
	}
	return b.fileEntry(p, false, false)
}

func lookupID(name string, lookup func(string) (string, error)) (int, error) {
	if name == "" {
		return -1, nil
	}
	if n, err := strconv.Atoi(name); err == nil {
		return n, nil
	}
	id, err := lookup(name)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", facility.ErrInvalidArgument, err)
	}
	return strconv.Atoi(id)
}

// Ls expands path as a glob inside the sandbox and describes every match.
// Recursive also describes everything below matched directories.
func (b *Backend) Ls(_ context.Context, _ *facility.Resource, _ *facility.User, req facility.LsRequest) ([]facility.File, error) {
	pattern, err := b.resolveEntry(req.Path)
	if err != nil {
		return nil, err
	}
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", facility.ErrInvalidArgument, err)
	}
	sort.Strings(matches)

	out := make([]facility.File, 0, len(matches))
	seen := make(map[string]struct{})
	add := func(p string) error {
		if _, dup := seen[p]; dup {
			return nil
		}
		seen[p] = struct{}{}
		if !req.ShowHidden && p != pattern && strings.HasPrefix(filepath.Base(p), ".") {
			return nil
		}
		if req.Dereference {
			if resolved, err := filepath.EvalSymlinks(p); err != nil || !b.inside(resolved) {
				return nil
			}
		}
		f, err := b.fileEntry(p, req.Dereference, req.NumericUID)
		if err != nil {
			return err
		}
		out = append(out, *f)
		return nil
	}

	for _, m := range matches {
		if !b.inside(m) {
			continue
		}
		if err := add(m); err != nil {
			return nil, err
		}
		if !req.Recursive {
			continue
		}
		if info, err := os.Stat(m); err != nil || !info.IsDir() {
			continue
		}
		err := filepath.WalkDir(m, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if p == m {
				return nil
			}
			if !req.ShowHidden && strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			return add(p)
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Head returns the first bytes or lines of a file. SkipTrailing returns
// everything except the last ones instead.
func (b *Backend) Head(_ context.Context, _ *facility.Resource, _ *facility.User, req facility.HeadRequest) (*facility.FileContent, error) {
	if err := facility.ValidateWindow(req.FileBytes, req.Lines); err != nil {
		return nil, err
	}
	data, err := b.readLimited(req.Path)
	if err != nil {
		return nil, err
	}
	unit, n := windowOf(req.FileBytes, req.Lines)
	units := split(data, unit)
	end := n
	if req.SkipTrailing {
		end = int64(len(units)) - n
	}
	end = clamp(end, 0, int64(len(units)))
	return &facility.FileContent{
		Content:       strings.Join(units[:end], ""),
		ContentType:   unit,
		StartPosition: 0,
		EndPosition:   end,
	}, nil
}

// Tail returns the last bytes or lines of a file. SkipHeading returns
// everything from the given one-based position instead.
func (b *Backend) Tail(_ context.Context, _ *facility.Resource, _ *facility.User, req facility.TailRequest) (*facility.FileContent, error) {
	if err := facility.ValidateWindow(req.FileBytes, req.Lines); err != nil {
		return nil, err
	}
	data, err := b.readLimited(req.Path)
	if err != nil {
		return nil, err
	}
	unit, n := windowOf(req.FileBytes, req.Lines)
	units := split(data, unit)
	total := int64(len(units))
	start := total - n
	if req.SkipHeading {
		start = n - 1
	}
	start = clamp(start, 0, total)
	return &facility.FileContent{
		Content:       strings.Join(units[start:], ""),
		ContentType:   unit,
		StartPosition: start,
		EndPosition:   total,
	}, nil
}

func windowOf(fileBytes, lines *int64) (facility.ContentUnit, int64) {
	switch {
	case fileBytes != nil:
		return facility.ContentBytes, *fileBytes
	case lines != nil:
		return facility.ContentLines, *lines
	}
	return facility.ContentLines, defaultWindowLines
}

// split cuts data into bytes or newline-terminated lines.
func split(data []byte, unit facility.ContentUnit) []string {
	if unit == facility.ContentBytes {
		out := make([]string, len(data))
		for i := range data {
			out[i] = string(data[i : i+1])
		}
		return out
	}
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), len(data)+1)
	sc.Split(scanLinesKeepEOL)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	return out
}

func scanLinesKeepEOL(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, data[:i+1], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func clamp(v, lo, hi int64) int64 {
	return max(lo, min(v, hi))
}

// View returns size bytes starting at offset.
func (b *Backend) View(_ context.Context, _ *facility.Resource, _ *facility.User, req facility.ViewRequest) (string, error) {
	if req.Offset < 0 || req.Size <= 0 || req.Size > b.cfg.OpsSizeLimit {
		return "", fmt.Errorf("%w: view needs offset >= 0 and 0 < size <= %d", facility.ErrInvalidArgument, b.cfg.OpsSizeLimit)
	}
	p, err := b.resolve(req.Path)
	if err != nil {
		return "", err
	}
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()
	buf := make([]byte, req.Size)
	n, err := f.ReadAt(buf, req.Offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return string(buf[:n]), nil
}

// Checksum hashes a file.
func (b *Backend) Checksum(_ context.Context, _ *facility.Resource, _ *facility.User, path string) (*facility.FileChecksum, error) {
	p, err := b.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sum, err := b.hasher.HashReader(f)
	if err != nil {
		return nil, err
	}
	return &facility.FileChecksum{Algorithm: sha256.Algorithm, Checksum: sum}, nil
}

// FileType sniffs the content type of a path.
func (b *Backend) FileType(_ context.Context, _ *facility.Resource, _ *facility.User, path string) (string, error) {
	p, err := b.resolve(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(p)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "directory", nil
	}
	if info.Size() == 0 {
		return "empty", nil
	}
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()
	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", err
	}
	return http.DetectContentType(head[:n]), nil
}

// Stat reports stat(2) for a path, or lstat(2) unless dereferencing.
func (b *Backend) Stat(_ context.Context, _ *facility.Resource, _ *facility.User, req facility.StatRequest) (*facility.FileStat, error) {
	var (
		p   string
		err error
	)
	if req.Dereference {
		p, err = b.resolve(req.Path)
	} else {
		p, err = b.resolveEntry(req.Path)
	}
	if err != nil {
		return nil, err
	}
	info, err := os.Lstat(p)
	if err != nil {
		return nil, err
	}
	st := statOf(info)
	return &st, nil
}

// Remove deletes a path and everything below it. The path must exist and
// may not be the sandbox root.
func (b *Backend) Remove(_ context.Context, _ *facility.Resource, _ *facility.User, path string) error {
	p, err := b.resolveEntry(path)
	if err != nil {
		return err
	}
	if p == b.sandbox {
		return fmt.Errorf("%w: cannot delete sandbox", facility.ErrInvalidArgument)
	}
	if _, err := os.Lstat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %w", facility.ErrNotFound, err)
		}
		return err
	}
	if err := os.RemoveAll(p); err != nil {
		return err
	}
	b.logger.Debug("path removed", zap.String("path", p))
	return nil
}

// Mkdir creates a directory, and its parents when Parent is set.
func (b *Backend) Mkdir(_ context.Context, _ *facility.Resource, _ *facility.User, req facility.MkdirRequest) (*facility.File, error) {
	p, err := b.resolve(req.Path)
	if err != nil {
		return nil, err
	}
	if req.Parent {
		err = os.MkdirAll(p, 0o755)
	} else {
		err = os.Mkdir(p, 0o755)
	}
	if err != nil {
		return nil, err
	}
	return b.fileEntry(p, false, false)
}

// Symlink creates LinkPath pointing at Path.
func (b *Backend) Symlink(_ context.Context, _ *facility.Resource, _ *facility.User, req facility.SymlinkRequest) (*facility.File, error) {
	target, err := b.resolve(req.Path)
	if err != nil {
		return nil, err
	}
	link, err := b.resolveEntry(req.LinkPath)
	if err != nil {
		return nil, err
	}
	if err := os.Symlink(target, link); err != nil {
		return nil, err
	}
	return b.fileEntry(link, false, false)
}

// Download reads a whole file, up to the operation size limit.
func (b *Backend) Download(_ context.Context, _ *facility.Resource, _ *facility.User, path string) ([]byte, error) {
	return b.readLimited(path)
}

// Upload writes content to a path, replacing any existing file.
func (b *Backend) Upload(_ context.Context, _ *facility.Resource, _ *facility.User, req facility.UploadRequest) error {
	if int64(len(req.Content)) > b.cfg.OpsSizeLimit {
		return fmt.Errorf("%w: upload of %d bytes exceeds limit %d", facility.ErrInvalidArgument, len(req.Content), b.cfg.OpsSizeLimit)
	}
	p, err := b.resolve(req.Path)
	if err != nil {
		return err
	}
	return os.WriteFile(p, req.Content, 0o644)
}

// Move renames Path to TargetPath, or into it when it is a directory.
func (b *Backend) Move(_ context.Context, _ *facility.Resource, _ *facility.User, req facility.MoveRequest) (*facility.File, error) {
	src, err := b.resolveEntry(req.Path)
	if err != nil {
		return nil, err
	}
	if src == b.sandbox {
		return nil, fmt.Errorf("%w: cannot move sandbox", facility.ErrInvalidArgument)
	}
	dst, err := b.destination(req.TargetPath, src)
	if err != nil {
		return nil, err
	}
	if err := os.Rename(src, dst); err != nil {
		return nil, err
	}
	return b.fileEntry(dst, false, false)
}

// Copy copies Path to TargetPath, recursing into directories. Symlinks are
// copied as links unless Dereference is set.
func (b *Backend) Copy(_ context.Context, _ *facility.Resource, _ *facility.User, req facility.CopyRequest) (*facility.File, error) {
	src, err := b.resolve(req.Path)
	if err != nil {
		return nil, err
	}
	dst, err := b.destination(req.TargetPath, src)
	if err != nil {
		return nil, err
	}
	if within(src, dst) {
		return nil, fmt.Errorf("%w: cannot copy %s into itself", facility.ErrInvalidArgument, req.Path)
	}
	if err := b.copyTree(src, dst, req.Dereference); err != nil {
		return nil, err
	}
	return b.fileEntry(dst, false, false)
}

// destination resolves target, descending into it when it is an existing
// directory, the way mv and cp do.
func (b *Backend) destination(target, src string) (string, error) {
	dst, err := b.resolve(target)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(dst); err == nil && info.IsDir() {
		dst = filepath.Join(dst, filepath.Base(src))
	}
	return dst, nil
}

func (b *Backend) copyTree(src, dst string, deref bool) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		out := filepath.Join(dst, rel)
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			if !deref {
				target, err := os.Readlink(p)
				if err != nil {
					return err
				}
				return os.Symlink(target, out)
			}
			resolved, err := filepath.EvalSymlinks(p)
			if err != nil {
				return err
			}
			if !b.inside(resolved) {
				return fmt.Errorf("%w: link %s leaves sandbox", facility.ErrInvalidArgument, p)
			}
			if info, err = os.Stat(resolved); err != nil {
				return err
			}
			if info.IsDir() {
				return b.copyTree(resolved, out, deref)
			}
			return copyFile(resolved, out, info.Mode().Perm())
		}
		if d.IsDir() {
			return os.MkdirAll(out, info.Mode().Perm())
		}
		return copyFile(p, out, info.Mode().Perm())
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// readLimited reads a whole file that is no larger than the operation size
// limit.
func (b *Backend) readLimited(path string) ([]byte, error) {
	p, err := b.resolve(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", facility.ErrInvalidArgument, path)
	}
	if info.Size() > b.cfg.OpsSizeLimit {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit is %d", facility.ErrInvalidArgument, path, info.Size(), b.cfg.OpsSizeLimit)
	}
	return os.ReadFile(p)
}
