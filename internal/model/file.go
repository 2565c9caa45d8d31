package model

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// File is one file selected for ingestion.
type File struct {
	open        func() (io.ReadCloser, error)
	Name        string
	Path        string
	ContentType string
	Size        int64
}

// NewLocalFile stats a file on disk and returns a File that reads from it.
func NewLocalFile(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("%s is a directory", path)
	}

	return File{
		Name:        filepath.Base(path),
		Path:        path,
		Size:        info.Size(),
		ContentType: contentTypeFor(path),
		open: func() (io.ReadCloser, error) {
			return os.Open(path) // #nosec G304 -- operator-selected path
		},
	}, nil
}

// NewMemoryFile returns a File backed by data. A declared size of zero or
// less means len(data).
func NewMemoryFile(name string, data []byte, size int64) File {
	if size <= 0 {
		size = int64(len(data))
	}
	return File{
		Name:        name,
		Size:        size,
		ContentType: contentTypeFor(name),
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// Open returns a reader over the file contents.
func (f File) Open() (io.ReadCloser, error) {
	if f.open == nil {
		return nil, fmt.Errorf("file %s has no content source", f.Name)
	}
	return f.open()
}

// Extension returns the lower-cased extension without the dot.
func (f File) Extension() string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(f.Name)), ".")
}

func contentTypeFor(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
