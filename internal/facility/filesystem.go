package facility

import "fmt"

// CompressionType selects the archive compression.
type CompressionType string

// Known compression types.
const (
	CompressionNone  CompressionType = "none"
	CompressionBzip2 CompressionType = "bzip2"
	CompressionGzip  CompressionType = "gzip"
	CompressionXz    CompressionType = "xz"
)

// Valid reports whether c is a known compression type. Empty means gzip.
func (c CompressionType) Valid() bool {
	switch c {
	case "", CompressionNone, CompressionBzip2, CompressionGzip, CompressionXz:
		return true
	}
	return false
}

// ContentUnit tells whether a FileContent window counts bytes or lines.
type ContentUnit string

// Known content units.
const (
	ContentLines ContentUnit = "lines"
	ContentBytes ContentUnit = "bytes"
)

// File is one directory entry.
type File struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	LinkTarget   string `json:"link_target,omitempty"`
	User         string `json:"user"`
	Group        string `json:"group"`
	Permissions  string `json:"permissions"`
	LastModified string `json:"last_modified"`
	Size         string `json:"size"`
}

// FileContent is a window of a file.
type FileContent struct {
	Content       string      `json:"content"`
	ContentType   ContentUnit `json:"content_type"`
	StartPosition int64       `json:"start_position"`
	EndPosition   int64       `json:"end_position"`
}

// FileChecksum is a file digest.
type FileChecksum struct {
	Algorithm string `json:"algorithm"`
	Checksum  string `json:"checksum"`
}

// FileStat mirrors stat(2).
type FileStat struct {
	Mode  uint32 `json:"mode"`
	Ino   uint64 `json:"ino"`
	Dev   uint64 `json:"dev"`
	Nlink uint64 `json:"nlink"`
	UID   uint32 `json:"uid"`
	GID   uint32 `json:"gid"`
	Size  int64  `json:"size"`
	Atime int64  `json:"atime"`
	Ctime int64  `json:"ctime"`
	Mtime int64  `json:"mtime"`
}

// LsRequest lists a path.
type LsRequest struct {
	Path        string `json:"path"`
	ShowHidden  bool   `json:"show_hidden"`
	NumericUID  bool   `json:"numeric_uid"`
	Recursive   bool   `json:"recursive"`
	Dereference bool   `json:"dereference"`
}

// HeadRequest reads the start of a file. FileBytes and Lines are exclusive.
type HeadRequest struct {
	Path         string `json:"path"`
	FileBytes    *int64 `json:"file_bytes"`
	Lines        *int64 `json:"lines"`
	SkipTrailing bool   `json:"skip_trailing"`
}

// TailRequest reads the end of a file. FileBytes and Lines are exclusive.
type TailRequest struct {
	Path        string `json:"path"`
	FileBytes   *int64 `json:"file_bytes"`
	Lines       *int64 `json:"lines"`
	SkipHeading bool   `json:"skip_heading"`
}

// ValidateWindow rejects a head or tail request that names both units.
func ValidateWindow(fileBytes, lines *int64) error {
	if fileBytes != nil && lines != nil {
		return fmt.Errorf("%w: file_bytes and lines cannot be specified together", ErrInvalidArgument)
	}
	if (fileBytes != nil && *fileBytes < 0) || (lines != nil && *lines < 0) {
		return fmt.Errorf("%w: file_bytes and lines must be >= 0", ErrInvalidArgument)
	}
	return nil
}

// ViewRequest reads Size bytes starting at Offset.
type ViewRequest struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Offset int64  `json:"offset"`
}

// StatRequest stats a path.
type StatRequest struct {
	Path        string `json:"path"`
	Dereference bool   `json:"dereference"`
}

// ChmodRequest changes permissions. Mode is octal.
type ChmodRequest struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
}

// ChownRequest changes ownership. Empty names are left unchanged.
type ChownRequest struct {
	Path  string `json:"path"`
	Owner string `json:"owner"`
	Group string `json:"group"`
}

// MkdirRequest creates a directory.
type MkdirRequest struct {
	Path   string `json:"path"`
	Parent bool   `json:"parent"`
}

// SymlinkRequest creates LinkPath pointing at Path.
type SymlinkRequest struct {
	Path     string `json:"path"`
	LinkPath string `json:"link_path"`
}

// UploadRequest writes Content to Path.
type UploadRequest struct {
	Path    string `json:"path"`
	Content []byte `json:"content"`
}

// CompressRequest archives Path into TargetPath.
type CompressRequest struct {
	Path         string          `json:"path"`
	TargetPath   string          `json:"target_path"`
	MatchPattern string          `json:"match_pattern,omitempty"`
	Dereference  bool            `json:"dereference"`
	Compression  CompressionType `json:"compression"`
}

// ExtractRequest unpacks the archive at Path into TargetPath.
type ExtractRequest struct {
	Path        string          `json:"path"`
	TargetPath  string          `json:"target_path"`
	Compression CompressionType `json:"compression"`
}

// MoveRequest renames Path to TargetPath.
type MoveRequest struct {
	Path       string `json:"path"`
	TargetPath string `json:"target_path"`
}

// CopyRequest copies Path to TargetPath.
type CopyRequest struct {
	Path        string `json:"path"`
	TargetPath  string `json:"target_path"`
	Dereference bool   `json:"dereference"`
}

// Output wraps a filesystem result the way every filesystem response does.
type Output struct {
	Output any `json:"output"`
}
