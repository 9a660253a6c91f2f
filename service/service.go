// Package service manages merged documents end to end: it runs a merge,
// publishes the result to the output store and keeps a catalog record of
// it.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wudi/pdfmerge/catalog"
	"github.com/wudi/pdfmerge/merge"
	"github.com/wudi/pdfmerge/observability"
	"github.com/wudi/pdfmerge/store"
)

// DefaultOutputDir is the store directory merged documents go to.
const DefaultOutputDir = "pdf"

var ErrInvalidName = errors.New("document name is required")

type Options struct {
	OutputDir string
	Logger    observability.Logger
	Now       func() time.Time
	NewID     func() string
}

type Service struct {
	engine  *merge.Engine
	store   *store.Local
	catalog *catalog.Store
	opts    Options
}

func New(engine *merge.Engine, st *store.Local, cat *catalog.Store, opts Options) *Service {
	if opts.OutputDir == "" {
		opts.OutputDir = DefaultOutputDir
	}
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Service{engine: engine, store: st, catalog: cat, opts: opts}
}

// CreateRecord merges files into a new document named documentName. The
// record exists only if the document was published.
func (s *Service) CreateRecord(ctx context.Context, documentName string, files []merge.Input) (catalog.Record, error) {
	documentName = strings.TrimSpace(documentName)
	if documentName == "" {
		return catalog.Record{}, ErrInvalidName
	}
	fileURL := fmt.Sprintf("%s/%s.pdf", s.opts.OutputDir, s.opts.NewID())

	var res *merge.Result
	size, err := s.store.Publish(ctx, fileURL, func(w io.Writer) error {
		var err error
		res, err = s.engine.Merge(ctx, files, w, merge.WithTitle(documentName))
		return err
	})
	if err != nil {
		return catalog.Record{}, err
	}

	rec := catalog.Record{
		ID:           s.opts.NewID(),
		DocumentName: documentName,
		FileURL:      fileURL,
		Pages:        res.Pages,
		Bytes:        size,
		CreatedAt:    s.opts.Now().UTC(),
	}
	if err := s.catalog.Create(ctx, rec); err != nil {
		if rerr := s.store.Remove(fileURL); rerr != nil {
			s.opts.Logger.Error("remove orphaned document", observability.String("file_url", fileURL), observability.Error("error", rerr))
		}
		return catalog.Record{}, err
	}
	s.opts.Logger.Info("record created",
		observability.String("id", rec.ID),
		observability.String("file_url", fileURL),
		observability.Int(observability.MetricPageCount, rec.Pages))
	return rec, nil
}

func (s *Service) GetAll(ctx context.Context) ([]catalog.Record, error) {
	return s.catalog.List(ctx)
}

func (s *Service) GetByID(ctx context.Context, id string) (catalog.Record, error) {
	return s.catalog.Get(ctx, id)
}

// Open returns the record and its document for download. The caller closes
// the file.
func (s *Service) Open(ctx context.Context, id string) (catalog.Record, *os.File, error) {
	rec, err := s.catalog.Get(ctx, id)
	if err != nil {
		return catalog.Record{}, nil, err
	}
	f, err := s.store.Open(rec.FileURL)
	if err != nil {
		return catalog.Record{}, nil, err
	}
	return rec, f, nil
}

// Delete removes a record and its document. Deleting an unknown id does
// nothing.
func (s *Service) Delete(ctx context.Context, id string) error {
	rec, err := s.catalog.Get(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.store.Remove(rec.FileURL); err != nil {
		return err
	}
	if err := s.catalog.Delete(ctx, id); err != nil && !errors.Is(err, catalog.ErrNotFound) {
		return err
	}
	s.opts.Logger.Info("record deleted", observability.String("id", id))
	return nil
}
