package merge

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	DefaultMaxFiles    = 10
	DefaultMaxFileSize = 5 * 1024 * 1024
)

// Limits is the batch contract.
type Limits struct {
	MaxFiles int
	// MaxFileSize is exclusive: a file of exactly this many bytes is
	// rejected.
	MaxFileSize int64
}

func DefaultLimits() Limits {
	return Limits{MaxFiles: DefaultMaxFiles, MaxFileSize: DefaultMaxFileSize}
}

// Validate checks the shape of a batch. It does no I/O.
func Validate(batch []Input, limits Limits) error {
	if limits.MaxFiles <= 0 {
		limits.MaxFiles = DefaultMaxFiles
	}
	if limits.MaxFileSize <= 0 {
		limits.MaxFileSize = DefaultMaxFileSize
	}
	if len(batch) == 0 {
		return &Error{Kind: KindEmptyBatch}
	}
	if len(batch) > limits.MaxFiles {
		return &Error{Kind: KindTooManyFiles, Detail: fmt.Sprintf("%d files, at most %d allowed", len(batch), limits.MaxFiles)}
	}
	for _, in := range batch {
		if in.Size() >= limits.MaxFileSize {
			return &Error{
				Kind:   KindFileTooLarge,
				File:   in.Name(),
				Detail: fmt.Sprintf("%d bytes, limit is %d", in.Size(), limits.MaxFileSize),
			}
		}
	}
	return nil
}

// Path is the processing path an input takes.
type Path int

const (
	DocumentPath Path = iota + 1
	RasterPath
)

func (p Path) String() string {
	switch p {
	case DocumentPath:
		return "document"
	case RasterPath:
		return "raster"
	}
	return "unknown"
}

// Classify picks the path from the file extension, case-insensitively.
func Classify(name string) (Path, error) {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".pdf":
		return DocumentPath, nil
	case ".jpg", ".jpeg", ".png":
		return RasterPath, nil
	}
	return 0, &Error{Kind: KindUnsupportedType, File: name, Detail: fmt.Sprintf("extension %q", ext)}
}
