package writer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"hash"
	"io"
	"sort"

	"golang.org/x/crypto/blake2b"

	"github.com/wudi/pdfmerge/builder"
	"github.com/wudi/pdfmerge/filters"
	"github.com/wudi/pdfmerge/ir/raw"
)

type PDFVersion string

const (
	PDF14 PDFVersion = "1.4"
	PDF17 PDFVersion = "1.7"
)

type Config struct {
	Version PDFVersion
	// Compression is the zlib level for streams written without a filter;
	// 0 stores them uncompressed.
	Compression int
	// XRefStreams writes a cross-reference stream instead of a table.
	XRefStreams bool
	// ObjectStreams packs non-stream objects into object streams. It
	// requires XRefStreams.
	ObjectStreams bool
	// ObjectsPerStream bounds the members of one object stream.
	ObjectsPerStream int
}

// DefaultConfig is the most compact output: level 9, object streams and an
// xref stream.
func DefaultConfig() Config {
	return Config{
		Version:          PDF17,
		Compression:      9,
		XRefStreams:      true,
		ObjectStreams:    true,
		ObjectsPerStream: 100,
	}
}

var ErrInvalidConfig = errors.New("invalid writer config")

type Writer struct {
	cfg Config
}

func New(cfg Config) (*Writer, error) {
	if cfg.Version == "" {
		cfg.Version = PDF17
	}
	if cfg.ObjectStreams && !cfg.XRefStreams {
		return nil, fmt.Errorf("%w: object streams need an xref stream", ErrInvalidConfig)
	}
	if cfg.Compression < 0 || cfg.Compression > 9 {
		return nil, fmt.Errorf("%w: compression level %d", ErrInvalidConfig, cfg.Compression)
	}
	if cfg.ObjectsPerStream <= 0 {
		cfg.ObjectsPerStream = 100
	}
	return &Writer{cfg: cfg}, nil
}

// xrefEntry records where an object ended up.
type xrefEntry struct {
	typ    byte
	field2 int64
	field3 int
}

// countingWriter tracks the output offset and feeds every byte to the
// document hash used for /ID.
type countingWriter struct {
	w   *bufio.Writer
	h   hash.Hash
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.h.Write(p[:n])
	if err != nil {
		c.err = err
	}
	return n, err
}

func (c *countingWriter) WriteString(s string) (int, error) { return c.Write([]byte(s)) }

// Write serializes doc to out in a single pass and returns the number of
// bytes written.
func (w *Writer) Write(ctx context.Context, doc *builder.Document, out io.Writer) (int64, error) {
	if doc == nil || len(doc.Objects) == 0 {
		return 0, errors.New("empty document")
	}
	h, err := blake2b.New(16, nil)
	if err != nil {
		return 0, err
	}
	cw := &countingWriter{w: bufio.NewWriterSize(out, 64*1024), h: h}

	refs := make([]raw.ObjectRef, 0, len(doc.Objects))
	for ref := range doc.Objects {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Num < refs[j].Num })
	size := doc.Size()
	entries := make(map[int]xrefEntry, len(refs)+8)

	fmt.Fprintf(cw, "%%PDF-%s\n%%\xE2\xE3\xCF\xD3\n", w.cfg.Version)

	var packed []raw.ObjectRef
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return cw.n, err
		}
		obj := doc.Objects[ref]
		if w.packable(ref, obj) {
			packed = append(packed, ref)
			continue
		}
		entries[ref.Num] = xrefEntry{typ: 1, field2: cw.n, field3: ref.Gen}
		if err := w.writeIndirect(cw, ref, obj); err != nil {
			return cw.n, err
		}
	}

	for start := 0; start < len(packed); start += w.cfg.ObjectsPerStream {
		end := min(start+w.cfg.ObjectsPerStream, len(packed))
		group := packed[start:end]
		stmRef := raw.ObjectRef{Num: size}
		size++
		stm, err := w.objectStream(doc, group)
		if err != nil {
			return cw.n, err
		}
		for i, ref := range group {
			entries[ref.Num] = xrefEntry{typ: 2, field2: int64(stmRef.Num), field3: i}
		}
		entries[stmRef.Num] = xrefEntry{typ: 1, field2: cw.n}
		if err := w.writeIndirect(cw, stmRef, stm); err != nil {
			return cw.n, err
		}
	}

	trailer := raw.Dict()
	trailer.Set(raw.NameLiteral("Root"), raw.RefObj{R: doc.Root})
	if doc.Info != nil {
		trailer.Set(raw.NameLiteral("Info"), raw.RefObj{R: *doc.Info})
	}
	// the hash covers every object written so far
	id := h.Sum(nil)
	trailer.Set(raw.NameLiteral("ID"), raw.NewArray(raw.HexStringObj{Bytes: id}, raw.HexStringObj{Bytes: id}))

	var xrefOffset int64
	if w.cfg.XRefStreams {
		xrefOffset, err = w.writeXRefStream(cw, trailer, entries, size)
	} else {
		xrefOffset, err = w.writeXRefTable(cw, trailer, entries, size)
	}
	if err != nil {
		return cw.n, err
	}
	fmt.Fprintf(cw, "startxref\n%d\n%%%%EOF\n", xrefOffset)
	if cw.err != nil {
		return cw.n, cw.err
	}
	if err := cw.w.Flush(); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}

func (w *Writer) packable(ref raw.ObjectRef, obj raw.Object) bool {
	if !w.cfg.ObjectStreams || ref.Gen != 0 {
		return false
	}
	_, isStream := obj.(*raw.StreamObj)
	return !isStream
}

func (w *Writer) writeIndirect(cw *countingWriter, ref raw.ObjectRef, obj raw.Object) error {
	if stm, ok := obj.(*raw.StreamObj); ok {
		prepared, err := w.prepareStream(stm)
		if err != nil {
			return fmt.Errorf("object %d: %w", ref.Num, err)
		}
		obj = prepared
	}
	fmt.Fprintf(cw, "%d %d obj\n", ref.Num, ref.Gen)
	writeObject(cw, obj)
	cw.WriteString("\nendobj\n")
	return cw.err
}

// prepareStream compresses unfiltered payloads and sets /Length. The input
// stream is left untouched.
func (w *Writer) prepareStream(stm *raw.StreamObj) (*raw.StreamObj, error) {
	dict := raw.Dict()
	if stm.Dict != nil {
		for k, v := range stm.Dict.KV {
			dict.KV[k] = v
		}
	}
	data := stm.Data
	if _, filtered := dict.Lookup("Filter"); !filtered && w.cfg.Compression > 0 && len(data) > 0 {
		enc, err := filters.FlateEncode(data, w.cfg.Compression)
		if err != nil {
			return nil, err
		}
		data = enc
		dict.Set(raw.NameLiteral("Filter"), raw.NameLiteral("FlateDecode"))
		dict.Delete("DecodeParms")
	}
	dict.Set(raw.NameLiteral("Length"), raw.NumberInt(int64(len(data))))
	return raw.NewStream(dict, data), nil
}

func (w *Writer) objectStream(doc *builder.Document, group []raw.ObjectRef) (*raw.StreamObj, error) {
	var header, body []byte
	for _, ref := range group {
		header = fmt.Appendf(header, "%d %d ", ref.Num, len(body))
		body = appendObject(body, doc.Objects[ref])
		body = append(body, '\n')
	}
	dict := raw.Dict()
	dict.Set(raw.NameLiteral("Type"), raw.NameLiteral("ObjStm"))
	dict.Set(raw.NameLiteral("N"), raw.NumberInt(int64(len(group))))
	dict.Set(raw.NameLiteral("First"), raw.NumberInt(int64(len(header))))
	// unfiltered, so prepareStream compresses it at the configured level
	return raw.NewStream(dict, append(header, body...)), nil
}

func (w *Writer) writeXRefStream(cw *countingWriter, trailer *raw.DictObj, entries map[int]xrefEntry, size int) (int64, error) {
	ref := raw.ObjectRef{Num: size}
	size++
	offset := cw.n
	entries[ref.Num] = xrefEntry{typ: 1, field2: offset}

	rows := make([]byte, 0, size*7)
	for n := 0; n < size; n++ {
		e, ok := entries[n]
		if !ok {
			e = xrefEntry{typ: 0, field3: 65535}
			if n != 0 {
				e.field3 = 0
			}
		}
		rows = append(rows, e.typ,
			byte(e.field2>>24), byte(e.field2>>16), byte(e.field2>>8), byte(e.field2),
			byte(e.field3>>8), byte(e.field3))
	}
	dict := raw.Dict()
	for k, v := range trailer.KV {
		dict.KV[k] = v
	}
	dict.Set(raw.NameLiteral("Type"), raw.NameLiteral("XRef"))
	dict.Set(raw.NameLiteral("Size"), raw.NumberInt(int64(size)))
	dict.Set(raw.NameLiteral("W"), raw.NewArray(raw.NumberInt(1), raw.NumberInt(4), raw.NumberInt(2)))
	if err := w.writeIndirect(cw, ref, raw.NewStream(dict, rows)); err != nil {
		return 0, err
	}
	return offset, nil
}

func (w *Writer) writeXRefTable(cw *countingWriter, trailer *raw.DictObj, entries map[int]xrefEntry, size int) (int64, error) {
	offset := cw.n
	fmt.Fprintf(cw, "xref\n0 %d\n", size)
	for n := 0; n < size; n++ {
		e, ok := entries[n]
		switch {
		case n == 0:
			cw.WriteString("0000000000 65535 f\r\n")
		case !ok:
			cw.WriteString("0000000000 00000 f\r\n")
		default:
			fmt.Fprintf(cw, "%010d %05d n\r\n", e.field2, e.field3)
		}
	}
	trailer.Set(raw.NameLiteral("Size"), raw.NumberInt(int64(size)))
	cw.WriteString("trailer\n")
	writeObject(cw, trailer)
	cw.WriteString("\n")
	return offset, cw.err
}
