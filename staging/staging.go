// Package staging owns the per-merge scratch directory. Every file written
// while processing a batch lives under one uniquely named directory that is
// removed when the batch ends, however it ends.
package staging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/wudi/pdfmerge/observability"
)

var ErrOutsideArea = errors.New("path is outside the staging area")

// removeAll is swapped in tests.
var removeAll = os.RemoveAll

// Area is a private scratch directory. It is not safe for use by more than
// one merge.
type Area struct {
	dir    string
	logger observability.Logger
}

// With creates <root>/<uuid>, runs fn with it and removes the directory on
// every exit path, panics included. A failed removal is logged and does not
// change the result of fn. An empty root means the system temp directory.
func With(root string, logger observability.Logger, fn func(*Area) error) error {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	a, err := create(root, logger)
	if err != nil {
		return err
	}
	defer a.cleanup()
	return fn(a)
}

func create(root string, logger observability.Logger) (*Area, error) {
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create staging root: %w", err)
	}
	dir := filepath.Join(root, uuid.NewString())
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create staging area: %w", err)
	}
	logger.Debug("staging area created", observability.String("dir", dir))
	return &Area{dir: dir, logger: logger.With(observability.String("staging", filepath.Base(dir)))}, nil
}

func (a *Area) cleanup() {
	if err := removeAll(a.dir); err != nil {
		a.logger.Warn("staging area cleanup failed", observability.String("dir", a.dir), observability.Error("error", err))
		return
	}
	a.logger.Debug("staging area removed", observability.String("dir", a.dir))
}

// Dir is the absolute area directory.
func (a *Area) Dir() string { return a.dir }

// Create opens a new uniquely named file prefix-*ext inside the area.
func (a *Area) Create(prefix, ext string) (*os.File, error) {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return os.CreateTemp(a.dir, sanitize(prefix)+"-*"+ext)
}

// Write copies r into a new file and returns its path. A partial file is
// removed on failure.
func (a *Area) Write(prefix, ext string, r io.Reader) (string, error) {
	f, err := a.Create(prefix, ext)
	if err != nil {
		return "", err
	}
	path := f.Name()
	_, err = io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("stage %s: %w", filepath.Base(path), err)
	}
	return path, nil
}

// Remove deletes a staged artifact. Missing files are not an error.
func (a *Area) Remove(path string) error {
	rel, err := filepath.Rel(a.dir, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("%w: %s", ErrOutsideArea, path)
	}
	return os.RemoveAll(path)
}

// sanitize keeps file name prefixes to a safe character set.
func sanitize(prefix string) string {
	var b strings.Builder
	for _, r := range prefix {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		if b.Len() >= 40 {
			break
		}
	}
	if b.Len() == 0 {
		return "input"
	}
	return b.String()
}
