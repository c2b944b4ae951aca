package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"regexp"
	"strings"

	"github.com/spf13/afero"
)

// ContentDir is the directory below the store root that holds book content
const ContentDir = "books"

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// FileStore keeps book content by file name. A name is owned by at most one book.
type FileStore struct {
	fs afero.Fs
}

// NewFileStore wraps an afero filesystem, creating the content directory if needed
func NewFileStore(fs afero.Fs) (*FileStore, error) {
	ok, err := afero.DirExists(fs, ContentDir)
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := fs.MkdirAll(ContentDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create content directory: %w", err)
		}
	}
	return &FileStore{fs: fs}, nil
}

// NewDiskStore returns a FileStore rooted at dir on the local filesystem
func NewDiskStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory %s: %w", dir, err)
	}
	return NewFileStore(afero.NewBasePathFs(afero.NewOsFs(), dir))
}

// SanitizeFilename reduces an uploaded file name to a safe base name.
// It returns an empty string when nothing usable is left.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(strings.TrimSpace(name))
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeChars.ReplaceAllString(name, "")
	name = strings.TrimLeft(name, "._")
	if name == "" || name == "." {
		return ""
	}
	return name
}

// Ref is the content reference stored on a book for a file name
func Ref(name string) string {
	return ContentDir + "/" + name
}

// NameFromRef is the inverse of Ref
func NameFromRef(ref string) string {
	return strings.TrimPrefix(ref, ContentDir+"/")
}

// Exists reports whether content is stored under name
func (s *FileStore) Exists(name string) (bool, error) {
	return afero.Exists(s.fs, Ref(name))
}

// Save writes content under name, replacing any previous content
func (s *FileStore) Save(name string, content io.Reader) error {
	f, err := s.fs.Create(Ref(name))
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	if _, err := io.Copy(f, content); err != nil {
		f.Close()
		_ = s.fs.Remove(Ref(name))
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return f.Close()
}

// Remove deletes the content stored under name. Missing content is not an error.
func (s *FileStore) Remove(name string) error {
	err := s.fs.Remove(Ref(name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", name, err)
	}
	return nil
}

// Open returns a reader for the content stored under name
func (s *FileStore) Open(name string) (afero.File, error) {
	return s.fs.Open(Ref(name))
}
