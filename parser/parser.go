package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/wudi/pdfmerge/ir/raw"
	"github.com/wudi/pdfmerge/recovery"
	"github.com/wudi/pdfmerge/security"
	"github.com/wudi/pdfmerge/xref"
)

var (
	ErrNotPDF    = errors.New("missing %PDF header")
	ErrEncrypted = errors.New("document is encrypted")
	ErrNoCatalog = errors.New("document catalog not found")
)

// EncryptedError names the security handler of a refused document. It
// matches ErrEncrypted.
type EncryptedError struct {
	Info security.EncryptionInfo
}

func (e *EncryptedError) Error() string {
	return fmt.Sprintf("%s (%s)", ErrEncrypted, e.Info)
}

func (e *EncryptedError) Is(target error) bool { return target == ErrEncrypted }

// Config controls high-level PDF parsing (xref resolution + object loading).
type Config struct {
	Recovery recovery.Strategy
	XRef     xref.ResolverConfig
	Limits   security.Limits
}

// DocumentParser builds a raw.Document using xref tables/streams and the object loader.
type DocumentParser struct {
	cfg Config
}

func NewDocumentParser(cfg Config) *DocumentParser {
	if cfg.Recovery == nil {
		cfg.Recovery = recovery.NewStrictStrategy()
	}
	if cfg.Limits == (security.Limits{}) {
		cfg.Limits = security.DefaultLimits()
	}
	if cfg.XRef.Recovery == nil {
		cfg.XRef.Recovery = cfg.Recovery
	}
	if cfg.XRef.MaxXRefDepth == 0 {
		cfg.XRef.MaxXRefDepth = cfg.Limits.MaxXRefDepth
	}
	if cfg.XRef.Filters.MaxDecompressedSize == 0 {
		cfg.XRef.Filters.MaxDecompressedSize = cfg.Limits.MaxDecompressedSize
	}
	return &DocumentParser{cfg: cfg}
}

var headerPattern = regexp.MustCompile(`%PDF-(\d\.\d)`)

// Parse loads every object of data. Encrypted documents are refused with
// ErrEncrypted before any object other than the encryption dictionary is
// read.
func (p *DocumentParser) Parse(ctx context.Context, data []byte) (*raw.Document, error) {
	version, err := p.headerVersion(ctx, data)
	if err != nil {
		return nil, err
	}

	table, err := xref.NewResolver(p.cfg.XRef).Resolve(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("resolve xref: %w", err)
	}
	loader := newObjectLoader(data, table, p.cfg.Limits)

	resolveDirect := func(o raw.Object) raw.Object {
		ref, ok := o.(raw.RefObj)
		if !ok {
			return o
		}
		_, obj, err := loader.Load(ctx, ref.R.Num)
		if err != nil {
			return raw.NullObj{}
		}
		return obj
	}
	if info, encrypted := security.Inspect(table.Trailer, resolveDirect); encrypted {
		return nil, &EncryptedError{Info: info}
	}

	doc := &raw.Document{
		Objects:  make(map[raw.ObjectRef]raw.Object),
		Trailer:  table.Trailer,
		Version:  version,
		Repaired: table.Repaired,
	}
	for _, num := range table.Objects() {
		if num == 0 {
			continue
		}
		ref, obj, err := loader.Load(ctx, num)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			loc := recovery.Location{Component: recovery.ComponentObject, ObjectNum: num}
			if e, ok := table.Lookup(num); ok {
				loc.ByteOffset = e.Offset
				loc.ObjectGen = e.Gen
			}
			if !p.cfg.Recovery.OnError(ctx, err, loc).Continue() {
				return nil, fmt.Errorf("load object %d: %w", num, err)
			}
			continue
		}
		// compressed members always have generation 0
		if e, _ := table.Lookup(num); e.Kind == xref.EntryInUse {
			ref.Gen = e.Gen
		}
		doc.Objects[ref] = obj
	}

	if table.Repaired {
		p.recoverCompressed(ctx, loader, doc)
	}
	if _, ok := doc.Root(); !ok {
		if !p.locateCatalog(doc) {
			return nil, ErrNoCatalog
		}
	}
	return doc, nil
}

func (p *DocumentParser) headerVersion(ctx context.Context, data []byte) (string, error) {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	if m := headerPattern.FindSubmatch(head); m != nil {
		return string(m[1]), nil
	}
	loc := recovery.Location{Component: "header"}
	if !p.cfg.Recovery.OnError(ctx, ErrNotPDF, loc).Continue() {
		return "", ErrNotPDF
	}
	return "1.4", nil
}

// recoverCompressed adds members of object streams that a full-file scan
// cannot see. Objects found directly in the file take precedence.
func (p *DocumentParser) recoverCompressed(ctx context.Context, loader *objectLoader, doc *raw.Document) {
	for ref, obj := range doc.Objects {
		stm, ok := obj.(*raw.StreamObj)
		if !ok || raw.NameValue(get(stm.Dict, "Type")) != "ObjStm" {
			continue
		}
		headers, payload, err := loader.readObjStm(ctx, stm)
		if err != nil {
			p.cfg.Recovery.OnError(ctx, err, recovery.Location{Component: recovery.ComponentObject, ObjectNum: ref.Num})
			continue
		}
		for _, h := range headers {
			key := raw.ObjectRef{Num: h.num}
			if _, exists := doc.Objects[key]; exists {
				continue
			}
			member, err := readMember(payload, h.offset, p.cfg.Limits)
			if err != nil {
				continue
			}
			doc.Objects[key] = member
		}
	}
}

// locateCatalog points the trailer at the first /Type /Catalog object, in
// object number order.
func (p *DocumentParser) locateCatalog(doc *raw.Document) bool {
	var best *raw.ObjectRef
	for ref, obj := range doc.Objects {
		d, ok := obj.(*raw.DictObj)
		if !ok || raw.NameValue(get(d, "Type")) != "Catalog" {
			continue
		}
		if best == nil || ref.Num < best.Num {
			r := ref
			best = &r
		}
	}
	if best == nil {
		return false
	}
	if doc.Trailer == nil {
		doc.Trailer = raw.Dict()
	}
	doc.Trailer.Set(raw.NameLiteral("Root"), raw.RefObj{R: *best})
	return true
}

// IsPDF reports whether data starts like a PDF file.
func IsPDF(data []byte) bool {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	return bytes.Contains(head, []byte("%PDF-"))
}
