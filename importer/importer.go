// Package importer turns the pages of an existing PDF into page handles for
// an output document.
package importer

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfmerge/builder"
	"github.com/wudi/pdfmerge/filters"
	"github.com/wudi/pdfmerge/ir/raw"
	"github.com/wudi/pdfmerge/observability"
	"github.com/wudi/pdfmerge/parser"
	"github.com/wudi/pdfmerge/recovery"
	"github.com/wudi/pdfmerge/security"
)

var (
	ErrCorrupt   = errors.New("corrupt document")
	ErrNoPages   = errors.New("document has no pages")
	ErrPageTree  = errors.New("broken page tree")
	ErrEncrypted = parser.ErrEncrypted
)

type Options struct {
	Recovery recovery.Strategy
	Limits   security.Limits
	Logger   observability.Logger
}

// Document is an imported source. Pages holds one handle per page in page
// tree order.
type Document struct {
	Pages    []builder.PageHandle
	Version  string
	Repaired bool
	// Objects is the number of objects the source contained.
	Objects int
}

// source is shared by all pages of one document so each output builder
// copies shared resources once.
type source struct {
	doc     *raw.Document
	copiers map[*builder.Builder]*builder.Copier
}

func (s *source) copier(b *builder.Builder) *builder.Copier {
	c, ok := s.copiers[b]
	if !ok {
		c = b.NewCopier(s.doc)
		s.copiers[b] = c
	}
	return c
}

// Import parses data and collects its pages. Encrypted documents fail with
// ErrEncrypted; every other structural problem wraps ErrCorrupt.
func Import(ctx context.Context, data []byte, opts Options) (*Document, error) {
	if opts.Limits == (security.Limits{}) {
		opts.Limits = security.DefaultLimits()
	}
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger{}
	}
	p := parser.NewDocumentParser(parser.Config{Recovery: opts.Recovery, Limits: opts.Limits})
	doc, err := p.Parse(ctx, data)
	if err != nil {
		if errors.Is(err, parser.ErrEncrypted) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if doc.Repaired {
		opts.Logger.Warn("document structure repaired", observability.Int("objects", len(doc.Objects)))
	}

	w := &walker{
		doc:      doc,
		src:      &source{doc: doc, copiers: make(map[*builder.Builder]*builder.Copier)},
		pipeline: filters.NewDefaultPipeline(filters.Limits{MaxDecompressedSize: opts.Limits.MaxDecompressedSize, MaxDecodeTime: opts.Limits.MaxDecodeTime}),
		maxDepth: opts.Limits.MaxPageTreeDepth,
		visited:  make(map[raw.ObjectRef]bool),
	}
	root, _ := doc.Root()
	pagesObj, _ := root.Lookup("Pages")
	if err := w.walk(ctx, pagesObj, inherited{}, 0); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if len(w.pages) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, ErrNoPages)
	}
	return &Document{Pages: w.pages, Version: doc.Version, Repaired: doc.Repaired, Objects: len(doc.Objects)}, nil
}

// inherited holds the page attributes a page tree node passes down.
type inherited struct {
	resources raw.Object
	mediaBox  raw.Object
	cropBox   raw.Object
	rotate    raw.Object
}

func (in inherited) merge(d *raw.DictObj) inherited {
	if v, ok := d.Lookup("Resources"); ok {
		in.resources = v
	}
	if v, ok := d.Lookup("MediaBox"); ok {
		in.mediaBox = v
	}
	if v, ok := d.Lookup("CropBox"); ok {
		in.cropBox = v
	}
	if v, ok := d.Lookup("Rotate"); ok {
		in.rotate = v
	}
	return in
}

type walker struct {
	doc      *raw.Document
	src      *source
	pipeline *filters.Pipeline
	maxDepth int
	visited  map[raw.ObjectRef]bool
	pages    []builder.PageHandle
}

func (w *walker) walk(ctx context.Context, node raw.Object, in inherited, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if w.maxDepth > 0 && depth > w.maxDepth {
		return fmt.Errorf("%w: deeper than %d levels", ErrPageTree, w.maxDepth)
	}
	if ref, ok := node.(raw.RefObj); ok {
		if w.visited[ref.R] {
			return fmt.Errorf("%w: node %s visited twice", ErrPageTree, ref.R)
		}
		w.visited[ref.R] = true
	}
	dict, ok := w.doc.Resolve(node).(*raw.DictObj)
	if !ok {
		return fmt.Errorf("%w: node is not a dictionary", ErrPageTree)
	}
	in = in.merge(dict)

	kidsObj, hasKids := dict.Lookup("Kids")
	if raw.NameValue(w.get(dict, "Type")) == "Page" || (!hasKids && raw.NameValue(w.get(dict, "Type")) != "Pages") {
		page, err := w.page(ctx, dict, in)
		if err != nil {
			return fmt.Errorf("page %d: %w", len(w.pages)+1, err)
		}
		w.pages = append(w.pages, page)
		return nil
	}
	kids, ok := w.doc.Resolve(kidsObj).(*raw.ArrayObj)
	if !ok {
		if !hasKids {
			// an empty /Pages node without /Kids holds no pages
			return nil
		}
		return fmt.Errorf("%w: /Kids is not an array", ErrPageTree)
	}
	for _, kid := range kids.Items {
		if err := w.walk(ctx, kid, in, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) get(d *raw.DictObj, key string) raw.Object {
	v, _ := d.Lookup(key)
	return w.doc.Resolve(v)
}

func (w *walker) page(ctx context.Context, dict *raw.DictObj, in inherited) (builder.PageHandle, error) {
	media, ok := builder.RectFromArray(w.doc.Resolve(in.mediaBox))
	if !ok {
		media = builder.DefaultMediaBox
	}
	crop, _ := builder.RectFromArray(w.doc.Resolve(in.cropBox))
	rotate, _ := raw.ToInt64(w.doc.Resolve(in.rotate))

	content, err := w.contents(ctx, w.get(dict, "Contents"))
	if err != nil {
		return nil, err
	}
	return &page{
		src:       w.src,
		mediaBox:  media,
		cropBox:   crop,
		rotate:    int(rotate),
		resources: in.resources,
		content:   content,
	}, nil
}

// contents returns the stream to wrap. A single stream is used as is; an
// array is decoded and joined into one unfiltered stream.
func (w *walker) contents(ctx context.Context, obj raw.Object) (*raw.StreamObj, error) {
	switch v := obj.(type) {
	case *raw.StreamObj:
		return v, nil
	case *raw.ArrayObj:
		var streams []*raw.StreamObj
		for _, it := range v.Items {
			if stm, ok := w.doc.Resolve(it).(*raw.StreamObj); ok {
				streams = append(streams, stm)
			}
		}
		if len(streams) == 1 {
			return streams[0], nil
		}
		decoded := make([][]byte, 0, len(streams))
		for i, stm := range streams {
			names, params := filters.ExtractFilters(stm.Dict)
			data, err := w.pipeline.Decode(ctx, stm.Data, names, params)
			if err != nil {
				return nil, fmt.Errorf("content stream %d: %w", i+1, err)
			}
			decoded = append(decoded, data)
		}
		return builder.ContentFromDecoded(decoded), nil
	}
	// no content: a blank page
	return nil, nil
}

// page is one imported page. It implements builder.PageHandle.
type page struct {
	src       *source
	mediaBox  builder.Rect
	cropBox   builder.Rect
	rotate    int
	resources raw.Object
	content   *raw.StreamObj
}

func (p *page) AppendTo(b *builder.Builder) error {
	fp := &builder.FormPage{
		Copier:   p.src.copier(b),
		MediaBox: p.mediaBox,
		CropBox:  p.cropBox,
		Rotate:   p.rotate,
		Content:  p.content,
	}
	if res, ok := p.src.doc.Resolve(p.resources).(*raw.DictObj); ok {
		fp.Resources = res
	}
	return fp.AppendTo(b)
}
