// Package verify checks merged documents with pdfcpu, an independent PDF
// implementation, so output problems are not hidden by sharing a parser
// with the writer.
package verify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var ErrInvalid = errors.New("invalid pdf")

var disableConfig sync.Once

// Config returns a relaxed pdfcpu configuration that never touches the
// user's pdfcpu config directory.
func Config() *model.Configuration {
	disableConfig.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Report is the outcome of a successful check.
type Report struct {
	Pages int
}

// Reader validates the document in rs and counts its pages.
func Reader(rs io.ReadSeeker) (Report, error) {
	if err := api.Validate(rs, Config()); err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return Report{}, err
	}
	n, err := api.PageCount(rs, Config())
	if err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return Report{Pages: n}, nil
}

// File validates a document on disk.
func File(path string) (Report, error) {
	if err := api.ValidateFile(path, Config()); err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	n, err := api.PageCountFile(path)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return Report{Pages: n}, nil
}

// Pages returns a store verify hook that also requires the expected page
// count. Zero accepts any count.
func Pages(want int) func(ctx context.Context, path string) error {
	return func(ctx context.Context, path string) error {
		rep, err := File(path)
		if err != nil {
			return err
		}
		if want > 0 && rep.Pages != want {
			return fmt.Errorf("%w: %d pages, expected %d", ErrInvalid, rep.Pages, want)
		}
		return nil
	}
}
