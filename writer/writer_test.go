package writer

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wudi/pdfmerge/builder"
	"github.com/wudi/pdfmerge/ir/raw"
	"github.com/wudi/pdfmerge/parser"
)

func buildDoc(t *testing.T, pages int) *builder.Document {
	t.Helper()
	b := builder.New()
	for i := 0; i < pages; i++ {
		content := b.Add(raw.NewStream(raw.Dict(), []byte("0 0 m 100 100 l S")))
		page := raw.Dict()
		page.Set(raw.NameLiteral("MediaBox"), builder.A4.Array())
		page.Set(raw.NameLiteral("Contents"), raw.RefObj{R: content})
		page.Set(raw.NameLiteral("Resources"), raw.Dict())
		b.AppendPage(page)
	}
	b.SetInfo(builder.Info{Title: "Merged – März", Producer: "pdfmerge", CreationDate: time.Unix(0, 0)})
	doc, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return doc
}

func writeDoc(t *testing.T, cfg Config, doc *builder.Document) []byte {
	t.Helper()
	w, err := New(cfg)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	var buf bytes.Buffer
	n, err := w.Write(context.Background(), doc, &buf)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if n != int64(buf.Len()) {
		t.Fatalf("reported %d bytes, wrote %d", n, buf.Len())
	}
	return buf.Bytes()
}

func countPages(t *testing.T, doc *raw.Document) int {
	t.Helper()
	root, ok := doc.Root()
	if !ok {
		t.Fatalf("no catalog")
	}
	pagesObj, _ := root.Lookup("Pages")
	pages, ok := doc.Resolve(pagesObj).(*raw.DictObj)
	if !ok {
		t.Fatalf("no page tree")
	}
	kidsObj, _ := pages.Lookup("Kids")
	kids := doc.Resolve(kidsObj).(*raw.ArrayObj)
	return kids.Len()
}

func TestWriterRoundTripCompact(t *testing.T) {
	out := writeDoc(t, DefaultConfig(), buildDoc(t, 3))
	if !bytes.HasPrefix(out, []byte("%PDF-1.7\n%\xE2\xE3\xCF\xD3\n")) {
		t.Fatalf("unexpected header %q", out[:16])
	}
	if bytes.Contains(out, []byte("\nxref\n")) {
		t.Fatalf("compact output should not contain a classic xref table")
	}
	if !bytes.Contains(out, []byte("/Type /ObjStm")) || !bytes.Contains(out, []byte("/Type /XRef")) {
		t.Fatalf("expected object and xref streams")
	}

	doc, err := parser.NewDocumentParser(parser.Config{}).Parse(context.Background(), out)
	if err != nil {
		t.Fatalf("re-parse: %v", err)
	}
	if got := countPages(t, doc); got != 3 {
		t.Fatalf("expected 3 pages, got %d", got)
	}
	id, ok := doc.Trailer.Lookup("ID")
	if !ok || id.(*raw.ArrayObj).Len() != 2 {
		t.Fatalf("trailer /ID missing")
	}
	infoObj, _ := doc.Trailer.Lookup("Info")
	info := doc.Resolve(infoObj).(*raw.DictObj)
	title, _ := info.Lookup("Title")
	if !bytes.Equal(title.(raw.StringObj).Bytes, builder.TextString("Merged – März").Bytes) {
		t.Fatalf("title did not survive the round trip")
	}
}

func TestWriterRoundTripClassic(t *testing.T) {
	cfg := Config{Version: PDF14, Compression: 0}
	out := writeDoc(t, cfg, buildDoc(t, 2))
	if !bytes.Contains(out, []byte("\nxref\n0 ")) || !bytes.Contains(out, []byte("trailer\n<<")) {
		t.Fatalf("expected a classic xref table")
	}
	if !bytes.Contains(out, []byte("0 0 m 100 100 l S")) {
		t.Fatalf("uncompressed content missing")
	}
	doc, err := parser.NewDocumentParser(parser.Config{}).Parse(context.Background(), out)
	if err != nil {
		t.Fatalf("re-parse: %v", err)
	}
	if doc.Version != "1.4" {
		t.Fatalf("version %q", doc.Version)
	}
	if got := countPages(t, doc); got != 2 {
		t.Fatalf("expected 2 pages, got %d", got)
	}
}

func TestWriterIsDeterministic(t *testing.T) {
	a := writeDoc(t, DefaultConfig(), buildDoc(t, 2))
	b := writeDoc(t, DefaultConfig(), buildDoc(t, 2))
	if !bytes.Equal(a, b) {
		t.Fatalf("identical documents produced different bytes")
	}
}

func TestWriterSplitsObjectStreams(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ObjectsPerStream = 2
	out := writeDoc(t, cfg, buildDoc(t, 4))
	if n := bytes.Count(out, []byte("/Type /ObjStm")); n < 3 {
		t.Fatalf("expected several object streams, got %d", n)
	}
	doc, err := parser.NewDocumentParser(parser.Config{}).Parse(context.Background(), out)
	if err != nil {
		t.Fatalf("re-parse: %v", err)
	}
	if got := countPages(t, doc); got != 4 {
		t.Fatalf("expected 4 pages, got %d", got)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	if _, err := New(Config{ObjectStreams: true}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("object streams without xref stream accepted: %v", err)
	}
	if _, err := New(Config{Compression: 11}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("compression 11 accepted: %v", err)
	}
}

type failingWriter struct{ after int }

func (f *failingWriter) Write(p []byte) (int, error) {
	if f.after <= 0 {
		return 0, errors.New("disk full")
	}
	f.after--
	return len(p), nil
}

func TestWriterReportsSinkErrors(t *testing.T) {
	w, _ := New(DefaultConfig())
	if _, err := w.Write(context.Background(), buildDoc(t, 1), &failingWriter{}); err == nil {
		t.Fatalf("sink error swallowed")
	}
}
