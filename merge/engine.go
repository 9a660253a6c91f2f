// Package merge combines a batch of PDF documents and raster images into one
// PDF. Inputs become pages in submission order; the first failing input
// aborts the whole batch.
package merge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wudi/pdfmerge/builder"
	"github.com/wudi/pdfmerge/importer"
	"github.com/wudi/pdfmerge/observability"
	"github.com/wudi/pdfmerge/optimize"
	"github.com/wudi/pdfmerge/recovery"
	"github.com/wudi/pdfmerge/security"
	"github.com/wudi/pdfmerge/staging"
	"github.com/wudi/pdfmerge/transcode"
	"github.com/wudi/pdfmerge/writer"
)

// State is a step of one merge call.
type State int

const (
	StateStart State = iota
	StateValidating
	StateProcessing
	StateFinalizing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateValidating:
		return "validating"
	case StateProcessing:
		return "processing"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type Config struct {
	Limits Limits
	// StagingRoot holds the per-call staging areas. Empty means the system
	// temp directory.
	StagingRoot string
	// Strict fails documents with a damaged cross-reference structure
	// instead of rebuilding it.
	Strict    bool
	Security  security.Limits
	Transcode transcode.Options
	Writer    writer.Config
	// Deduplicate stores identical objects of the output once.
	Deduplicate bool
	Producer    string

	Logger observability.Logger
	Tracer observability.Tracer
	// Now stamps the output creation date.
	Now func() time.Time
}

func DefaultConfig() Config {
	return Config{
		Limits:      DefaultLimits(),
		Security:    security.DefaultLimits(),
		Transcode:   transcode.DefaultOptions(),
		Writer:      writer.DefaultConfig(),
		Deduplicate: true,
		Producer:    "pdfmerge",
	}
}

// Engine merges batches. It holds no per-call state, so one Engine may
// serve concurrent calls.
type Engine struct {
	cfg    Config
	writer *writer.Writer
	opt    *optimize.Optimizer
}

func New(cfg Config) (*Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NopTracer()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Security == (security.Limits{}) {
		cfg.Security = security.DefaultLimits()
	}
	if cfg.Transcode.Limits == (security.Limits{}) {
		cfg.Transcode.Limits = cfg.Security
	}
	w, err := writer.New(cfg.Writer)
	if err != nil {
		return nil, err
	}
	e := &Engine{cfg: cfg, writer: w}
	if cfg.Deduplicate {
		e.opt = optimize.New(optimize.Config{CombineIdenticalIndirectObjects: true})
	}
	return e, nil
}

// InputReport describes how one input was handled.
type InputReport struct {
	Name     string `json:"name" yaml:"name"`
	Path     string `json:"path" yaml:"path"`
	Pages    int    `json:"pages" yaml:"pages"`
	Repaired bool   `json:"repaired,omitempty" yaml:"repaired,omitempty"`
	Resized  bool   `json:"resized,omitempty" yaml:"resized,omitempty"`
}

// Result describes a finished merge.
type Result struct {
	Bytes  int64         `json:"bytes" yaml:"bytes"`
	Pages  int           `json:"pages" yaml:"pages"`
	Inputs []InputReport `json:"inputs" yaml:"inputs"`
}

// Option adjusts a single merge call.
type Option func(*builder.Info)

// WithTitle sets the /Title of the output.
func WithTitle(title string) Option {
	return func(info *builder.Info) { info.Title = title }
}

// run tracks the state of one merge call.
type run struct {
	state  State
	logger observability.Logger
}

func (r *run) transition(to State, fields ...observability.Field) {
	fields = append(fields, observability.String("from", r.state.String()), observability.String("to", to.String()))
	r.logger.Debug("merge state", fields...)
	r.state = to
}

func (r *run) fail(err error) error {
	r.transition(StateFailed, observability.Error("error", err))
	r.logger.Warn("merge failed", observability.String("kind", string(KindOf(err))), observability.Error("error", err))
	return err
}

// Merge validates batch, turns every input into pages in order and writes
// the finished document to sink. Nothing reaches sink unless every input
// succeeded. A sink error leaves partial output behind; the caller must
// discard it.
func (e *Engine) Merge(ctx context.Context, batch []Input, sink io.Writer, opts ...Option) (*Result, error) {
	start := e.cfg.Now()
	ctx, span := e.cfg.Tracer.StartSpan(ctx, "merge")
	defer span.Finish()

	r := &run{state: StateStart, logger: e.cfg.Logger}
	r.transition(StateValidating, observability.Int(observability.MetricMergeInputs, len(batch)))
	if err := Validate(batch, e.cfg.Limits); err != nil {
		span.SetError(err)
		return nil, r.fail(err)
	}

	info := builder.Info{Producer: e.cfg.Producer, CreationDate: start}
	for _, o := range opts {
		o(&info)
	}

	var res *Result
	r.transition(StateProcessing)
	err := staging.With(e.cfg.StagingRoot, e.cfg.Logger, func(area *staging.Area) error {
		b := builder.New()
		b.SetInfo(info)
		reports := make([]InputReport, 0, len(batch))
		for i, in := range batch {
			rep, err := e.process(ctx, area, b, i, in)
			if err != nil {
				return err
			}
			reports = append(reports, rep)
		}

		r.transition(StateFinalizing, observability.Int(observability.MetricPageCount, b.PageCount()))
		n, err := e.finalize(ctx, b, sink)
		if err != nil {
			return err
		}
		res = &Result{Bytes: n, Pages: b.PageCount(), Inputs: reports}
		return nil
	})
	if err != nil {
		var me *Error
		if !errors.As(err, &me) {
			err = &Error{Kind: KindIOFailure, Err: err}
		}
		span.SetError(err)
		return nil, r.fail(err)
	}

	r.transition(StateDone,
		observability.Int(observability.MetricPageCount, res.Pages),
		observability.Int64(observability.MetricWrittenBytes, res.Bytes))
	e.cfg.Logger.Info("merge complete",
		observability.Int(observability.MetricMergeInputs, len(batch)),
		observability.Int(observability.MetricPageCount, res.Pages),
		observability.Int64(observability.MetricWrittenBytes, res.Bytes),
		observability.Duration(observability.MetricMergeTime, e.cfg.Now().Sub(start)))
	span.SetTag("pages", res.Pages)
	return res, nil
}

// process stages one input, converts it and appends its pages to b. Files
// staged for a failing input are removed before the error is returned.
func (e *Engine) process(ctx context.Context, area *staging.Area, b *builder.Builder, index int, in Input) (rep InputReport, err error) {
	name := in.Name()
	log := e.cfg.Logger.With(observability.String("file", name), observability.Int("index", index))
	path, err := Classify(name)
	if err != nil {
		return rep, err
	}
	rep = InputReport{Name: name, Path: path.String()}

	var staged []string
	defer func() {
		if err == nil {
			return
		}
		for _, p := range staged {
			if rerr := area.Remove(p); rerr != nil {
				log.Warn("remove staged file", observability.String("path", p), observability.Error("error", rerr))
			}
		}
	}()

	data, src, err := e.stage(area, index, in)
	if src != "" {
		staged = append(staged, src)
	}
	if err != nil {
		return rep, err
	}

	var handles []builder.PageHandle
	switch path {
	case DocumentPath:
		t0 := e.cfg.Now()
		doc, ierr := importer.Import(ctx, data, importer.Options{
			Recovery: e.strategy(),
			Limits:   e.cfg.Security,
			Logger:   log,
		})
		if ierr != nil {
			return rep, inputError(name, ierr)
		}
		log.Debug("document imported",
			observability.Int(observability.MetricPageCount, len(doc.Pages)),
			observability.String("version", doc.Version),
			observability.Duration(observability.MetricParseTime, e.cfg.Now().Sub(t0)))
		handles = doc.Pages
		rep.Repaired = doc.Repaired

	case RasterPath:
		t0 := e.cfg.Now()
		im, jpg, terr := e.transcode(area, index, data)
		if jpg != "" {
			staged = append(staged, jpg)
		}
		if terr != nil {
			return rep, inputError(name, terr)
		}
		page, perr := im.Page()
		if perr != nil {
			return rep, &Error{Kind: KindIOFailure, File: name, Err: perr}
		}
		log.Debug("image transcoded",
			observability.String("format", im.Format),
			observability.Int("width", im.Width),
			observability.Int("height", im.Height),
			observability.Duration(observability.MetricTranscodeTime, e.cfg.Now().Sub(t0)))
		handles = []builder.PageHandle{page}
		rep.Resized = im.Resized()
	}

	before := b.PageCount()
	if err := b.Append(handles...); err != nil {
		return rep, &Error{Kind: KindCorrupt, File: name, Err: err}
	}
	rep.Pages = b.PageCount() - before
	return rep, nil
}

// stage copies the input into the area and reads it back. The declared size
// was validated already; the copy enforces the same cap on the actual bytes.
func (e *Engine) stage(area *staging.Area, index int, in Input) ([]byte, string, error) {
	name := in.Name()
	rc, err := in.Open()
	if err != nil {
		return nil, "", &Error{Kind: KindIOFailure, File: name, Err: err}
	}
	defer rc.Close()

	limit := e.cfg.Limits.MaxFileSize
	if limit <= 0 {
		limit = DefaultMaxFileSize
	}
	ext := strings.ToLower(filepath.Ext(name))
	path, err := area.Write(fmt.Sprintf("input%02d", index), ext, io.LimitReader(rc, limit))
	if err != nil {
		return nil, "", &Error{Kind: KindIOFailure, File: name, Err: err}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, &Error{Kind: KindIOFailure, File: name, Err: err}
	}
	if int64(len(data)) >= limit {
		return nil, path, &Error{
			Kind:   KindFileTooLarge,
			File:   name,
			Detail: fmt.Sprintf("at least %d bytes, limit is %d", len(data), limit),
		}
	}
	return data, path, nil
}

func (e *Engine) transcode(area *staging.Area, index int, data []byte) (*transcode.Image, string, error) {
	f, err := area.Create(fmt.Sprintf("image%02d", index), ".jpg")
	if err != nil {
		return nil, "", err
	}
	path := f.Name()
	im, err := transcode.ToFile(bytes.NewReader(data), f, path, e.cfg.Transcode)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	return im, path, err
}

func (e *Engine) finalize(ctx context.Context, b *builder.Builder, sink io.Writer) (int64, error) {
	doc, err := b.Build()
	if err != nil {
		return 0, &Error{Kind: KindCorrupt, Err: err}
	}
	if e.opt != nil {
		stats, err := e.opt.Optimize(ctx, doc)
		if err != nil {
			return 0, &Error{Kind: KindCorrupt, Err: err}
		}
		if stats.Removed() > 0 {
			e.cfg.Logger.Debug("duplicate objects folded",
				observability.Int("streams", stats.Streams),
				observability.Int("objects", stats.Objects))
		}
	}
	t0 := e.cfg.Now()
	n, err := e.writer.Write(ctx, doc, sink)
	if err != nil {
		return n, &Error{Kind: KindIOFailure, Detail: "write output", Err: err}
	}
	e.cfg.Logger.Debug("output written",
		observability.Int64(observability.MetricWrittenBytes, n),
		observability.Duration(observability.MetricWriteTime, e.cfg.Now().Sub(t0)))
	return n, nil
}

// strategy returns a fresh recovery strategy; the lenient one records
// errors and must not be shared between inputs.
func (e *Engine) strategy() recovery.Strategy {
	if e.cfg.Strict {
		return recovery.NewStrictStrategy()
	}
	return recovery.NewLenientStrategy()
}

// inputError maps an importer or transcoder failure to its kind.
func inputError(name string, err error) error {
	kind := KindIOFailure
	switch {
	case errors.Is(err, importer.ErrEncrypted):
		kind = KindEncrypted
	case errors.Is(err, transcode.ErrDecode):
		kind = KindDecodeFailure
	case errors.Is(err, importer.ErrCorrupt),
		errors.Is(err, importer.ErrNoPages),
		errors.Is(err, importer.ErrPageTree):
		kind = KindCorrupt
	}
	return &Error{Kind: kind, File: name, Err: err}
}
