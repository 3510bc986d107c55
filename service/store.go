package service

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/shhirl/fixmybanana/config"
)

// unsafeChars matches everything that may not appear in a stored filename
var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// FileStore persists uploads as a flat directory of files named by their
// sanitized original name. Concurrent uploads of the same name race and the
// later write wins; files are never auto-deleted.
type FileStore struct {
	dir     string
	allowed map[string]bool
}

func NewFileStore(cfg *config.UploadConfig) (*FileStore, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory %s: %w", cfg.Dir, err)
	}

	allowed := make(map[string]bool, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		allowed[strings.ToLower(ext)] = true
	}

	return &FileStore{dir: cfg.Dir, allowed: allowed}, nil
}

// Dir returns the upload directory
func (s *FileStore) Dir() string {
	return s.dir
}

// Allowed reports whether the filename carries an accepted image extension.
// The check is on the last dot-segment, case-insensitive; a name without a
// dot has no extension and is rejected.
func (s *FileStore) Allowed(filename string) bool {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 {
		return false
	}
	return s.allowed[strings.ToLower(filename[idx+1:])]
}

// Sanitize strips directory components and unsafe characters from an
// uploaded filename so it is safe to join under the upload directory.
func Sanitize(filename string) (string, error) {
	// Windows clients send backslash-separated paths
	name := strings.ReplaceAll(filename, "\\", "/")
	name = path.Base(name)
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")

	if name == "" {
		return "", fmt.Errorf("filename %q is empty after sanitizing", filename)
	}
	return name, nil
}

// Save writes the upload under its sanitized name, overwriting any existing
// file of the same name, and returns the stored path.
func (s *FileStore) Save(sanitizedName string, r io.Reader) (string, error) {
	dst := filepath.Join(s.dir, sanitizedName)

	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", dst, err)
	}

	return dst, nil
}

// Path resolves a stored filename for read-back. Names that would escape
// the upload directory are rejected; missing files return an error.
func (s *FileStore) Path(filename string) (string, error) {
	if filename != filepath.Base(filename) || filename == "." || filename == ".." {
		return "", fmt.Errorf("invalid filename %q", filename)
	}

	full := filepath.Join(s.dir, filename)
	if _, err := os.Stat(full); err != nil {
		return "", fmt.Errorf("file %s not found: %w", filename, err)
	}
	return full, nil
}
