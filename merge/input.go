package merge

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
)

// Input is one file of a batch. The engine only reads it, once, during the
// merge call that received it.
type Input interface {
	// Name is the declared file name; its extension selects the format.
	Name() string
	Size() int64
	Open() (io.ReadCloser, error)
}

type bytesInput struct {
	name string
	data []byte
}

// BytesInput wraps an in-memory file.
func BytesInput(name string, data []byte) Input {
	return bytesInput{name: name, data: data}
}

func (b bytesInput) Name() string { return b.name }
func (b bytesInput) Size() int64  { return int64(len(b.data)) }
func (b bytesInput) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.data)), nil
}

type fileInput struct {
	path string
	size int64
}

// FileInput reads a file from disk. Its name is the base name of path.
func FileInput(path string) (Input, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrInvalid}
	}
	return fileInput{path: path, size: fi.Size()}, nil
}

func (f fileInput) Name() string                 { return filepath.Base(f.path) }
func (f fileInput) Size() int64                  { return f.size }
func (f fileInput) Open() (io.ReadCloser, error) { return os.Open(f.path) }
