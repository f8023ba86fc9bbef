package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"
)

// MaxNameBytes caps a file name stem, leaving room under the common 255-byte
// limit for a collision suffix and the .txt extension.
const MaxNameBytes = 200

// FitName cuts name to at most MaxNameBytes bytes without splitting a rune.
func FitName(name string) string {
	if len(name) <= MaxNameBytes {
		return name
	}
	cut := MaxNameBytes
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut]
}

// IOError reports a filesystem failure while persisting an article. It is
// fatal for the run.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// ErrorType labels persistence failures in logs and metrics.
func (e *IOError) ErrorType() string {
	return "io"
}

// FileStore writes one plain text file per article.
type FileStore struct {
	dirPerm  os.FileMode
	filePerm os.FileMode
}

// NewFileStore returns a store using 0755 directories and 0644 files.
func NewFileStore() *FileStore {
	return &FileStore{
		dirPerm:  0o755,
		filePerm: 0o644,
	}
}

// EnsureDir creates dir and its parents. An existing directory is not an
// error.
func (s *FileStore) EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, s.dirPerm); err != nil {
		return &IOError{Op: "create directory", Path: dir, Err: err}
	}
	return nil
}

// Save writes body to dir/<title>.txt, replacing any existing file. The
// content is staged in a temporary file and renamed into place, so
// concurrent writers to the same name leave exactly one complete file.
func (s *FileStore) Save(dir, title string, body []byte) error {
	if err := s.EnsureDir(dir); err != nil {
		return err
	}

	path := filepath.Join(dir, title+".txt")
	tmp, err := os.CreateTemp(dir, ".article-*.tmp")
	if err != nil {
		return &IOError{Op: "create temp file", Path: path, Err: err}
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		cleanup()
		return &IOError{Op: "write", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return &IOError{Op: "close", Path: path, Err: err}
	}
	if err := os.Chmod(tmpName, s.filePerm); err != nil {
		cleanup()
		return &IOError{Op: "chmod", Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return &IOError{Op: "rename", Path: path, Err: err}
	}
	return nil
}
