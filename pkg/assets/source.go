package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotExist is returned by a Source for a missing object.
var ErrNotExist = errors.New("assets: object does not exist")

// Object is an opened compiled asset. Callers must close Body.
type Object struct {
	Body io.ReadCloser

	// Size is -1 when unknown.
	Size        int64
	ModTime     time.Time
	ContentType string
}

// Source provides compiled assets by relative name.
type Source interface {
	Open(ctx context.Context, name string) (*Object, error)
}

// FSSource serves compiled assets from a file system, usually os.DirFS(dist).
type FSSource struct {
	fsys fs.FS
}

// NewFSSource returns a source reading from fsys.
func NewFSSource(fsys fs.FS) *FSSource {
	return &FSSource{fsys: fsys}
}

// Open implements Source. The body implements io.Seeker when the underlying
// file does.
func (s *FSSource) Open(ctx context.Context, name string) (*Object, error) {
	f, err := s.fsys.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, name)
		}
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%w: %s is a directory", ErrNotExist, name)
	}

	return &Object{
		Body:        f,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		ContentType: mime.TypeByExtension(path.Ext(name)),
	}, nil
}

// CleanPath sanitizes a request path relative to the asset root.
// It rejects traversal and absolute-path tricks so serving cannot escape the
// configured directory or bucket prefix.
func CleanPath(rel string) (string, bool) {
	if rel == "" {
		return "", false
	}
	// NUL can appear via %00.
	if strings.IndexByte(rel, 0) != -1 {
		return "", false
	}
	if strings.Contains(rel, "\\") {
		return "", false
	}
	// "/dist//etc/passwd" strips to "/etc/passwd".
	if strings.HasPrefix(rel, "/") {
		return "", false
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == "." || seg == ".." {
			return "", false
		}
	}

	clean := path.Clean(rel)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") || strings.HasPrefix(clean, "/") {
		return "", false
	}

	osPath := filepath.FromSlash(clean)
	if filepath.IsAbs(osPath) || filepath.VolumeName(osPath) != "" {
		return "", false
	}
	return clean, true
}

// IsFingerprinted reports whether a file name carries a content hash, as in
// app.5f2e81c9.css.
func IsFingerprinted(name string) bool {
	parts := strings.Split(path.Base(name), ".")
	if len(parts) < 3 {
		return false
	}

	hash := parts[len(parts)-2]
	if len(hash) < 8 {
		return false
	}
	for _, c := range hash {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
