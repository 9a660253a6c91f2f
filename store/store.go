// Package store keeps merged documents in a local directory. A document
// becomes visible under its name only after it was written completely.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/wudi/pdfmerge/observability"
)

var (
	ErrInvalidName = errors.New("invalid document name")
	ErrNotFound    = errors.New("document not found")
	ErrExists      = errors.New("document already exists")
)

// VerifyFunc inspects a fully written temporary file before it is
// published. Returning an error discards the file.
type VerifyFunc func(ctx context.Context, path string) error

type Local struct {
	root   string
	verify VerifyFunc
	logger observability.Logger
}

type Option func(*Local)

func WithVerify(v VerifyFunc) Option { return func(l *Local) { l.verify = v } }

func WithLogger(logger observability.Logger) Option {
	return func(l *Local) { l.logger = logger }
}

// NewLocal creates root if needed.
func NewLocal(root string, opts ...Option) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	l := &Local{root: abs, logger: observability.NopLogger{}}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

func (l *Local) Root() string { return l.root }

// Path maps a slash separated name below the root.
func (l *Local) Path(name string) (string, error) {
	if name == "" || !filepath.IsLocal(filepath.FromSlash(name)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(l.root, filepath.FromSlash(name)), nil
}

// Publish calls write with a temporary file next to the destination and
// renames it into place once write and the verify hook succeed. On any
// failure nothing exists under name.
func (l *Local) Publish(ctx context.Context, name string, write func(io.Writer) error) (int64, error) {
	dst, err := l.Path(name)
	if err != nil {
		return 0, err
	}
	if _, err := os.Stat(dst); err == nil {
		return 0, fmt.Errorf("%w: %s", ErrExists, name)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".publish-*")
	if err != nil {
		return 0, err
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			if rerr := os.Remove(tmpPath); rerr != nil && !os.IsNotExist(rerr) {
				l.logger.Warn("remove unpublished file", observability.String("path", tmpPath), observability.Error("error", rerr))
			}
		}
	}()

	if err := write(tmp); err != nil {
		return 0, err
	}
	if err := tmp.Sync(); err != nil {
		return 0, err
	}
	fi, err := tmp.Stat()
	if err != nil {
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if l.verify != nil {
		if err := l.verify(ctx, tmpPath); err != nil {
			return 0, fmt.Errorf("verify %s: %w", name, err)
		}
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return 0, err
	}
	committed = true
	l.logger.Debug("document published", observability.String("name", name), observability.Int64("bytes", fi.Size()))
	return fi.Size(), nil
}

func (l *Local) Open(name string) (*os.File, error) {
	p, err := l.Path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return f, err
}

// Remove deletes a published document. Removing a missing document is not
// an error.
func (l *Local) Remove(name string) error {
	p, err := l.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
