package xref_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/wudi/pdfmerge/recovery"
	"github.com/wudi/pdfmerge/xref"
)

func buildSimplePDF() ([]byte, map[int]int64) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n")

	offsets := make(map[int]int64)

	offsets[1] = int64(buf.Len())
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	offsets[2] = int64(buf.Len())
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [] /Count 0 >>\nendobj\n")

	xrefOffset := buf.Len()
	buf.WriteString("xref\n0 3\n")
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= 2; i++ {
		buf.WriteString(fmt.Sprintf("%010d 00000 n \n", offsets[i]))
	}
	buf.WriteString("trailer\n<< /Size 3 /Root 1 0 R >>\n")
	buf.WriteString("startxref\n")
	buf.WriteString(fmt.Sprintf("%d\n", xrefOffset))
	buf.WriteString("%%EOF\n")

	return buf.Bytes(), offsets
}

func TestResolverParsesXRefTable(t *testing.T) {
	pdf, offsets := buildSimplePDF()

	table, err := xref.NewResolver(xref.ResolverConfig{}).Resolve(context.Background(), pdf)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	for obj, off := range offsets {
		e, ok := table.Lookup(obj)
		if !ok {
			t.Fatalf("missing object %d", obj)
		}
		if e.Kind != xref.EntryInUse || e.Offset != off || e.Gen != 0 {
			t.Fatalf("object %d: expected (%d,0), got %+v", obj, off, e)
		}
	}
	if _, ok := table.Lookup(0); ok {
		t.Fatalf("free entry 0 must not resolve")
	}
	if _, ok := table.Trailer.Lookup("Root"); !ok {
		t.Fatalf("trailer lost /Root")
	}
}

// xrefRow encodes one /W [1 4 2] row.
func xrefRow(typ byte, f2 uint32, f3 uint16) []byte {
	return []byte{typ, byte(f2 >> 24), byte(f2 >> 16), byte(f2 >> 8), byte(f2), byte(f3 >> 8), byte(f3)}
}

func buildXRefStreamPDF() ([]byte, int64) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n")

	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	off3 := buf.Len()
	objstm := "2 0 << /Type /Pages /Kids [] /Count 0 >>"
	buf.WriteString(fmt.Sprintf("3 0 obj\n<< /Type /ObjStm /N 1 /First 4 /Length %d >>\nstream\n%s\nendstream\nendobj\n", len(objstm), objstm))

	xrefOff := buf.Len()
	var rows []byte
	rows = append(rows, xrefRow(0, 0, 65535)...)
	rows = append(rows, xrefRow(1, uint32(off1), 0)...)
	rows = append(rows, xrefRow(2, 3, 0)...)
	rows = append(rows, xrefRow(1, uint32(off3), 0)...)
	rows = append(rows, xrefRow(1, uint32(xrefOff), 0)...)
	buf.WriteString(fmt.Sprintf("4 0 obj\n<< /Type /XRef /Size 5 /W [1 4 2] /Root 1 0 R /Length %d >>\nstream\n", len(rows)))
	buf.Write(rows)
	buf.WriteString("\nendstream\nendobj\n")
	buf.WriteString(fmt.Sprintf("startxref\n%d\n%%%%EOF\n", xrefOff))
	return buf.Bytes(), int64(off1)
}

func TestResolverParsesXRefStream(t *testing.T) {
	pdf, off1 := buildXRefStreamPDF()
	table, err := xref.NewResolver(xref.ResolverConfig{}).Resolve(context.Background(), pdf)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	e, ok := table.Lookup(1)
	if !ok || e.Kind != xref.EntryInUse || e.Offset != off1 {
		t.Fatalf("object 1: got %+v", e)
	}
	e, ok = table.Lookup(2)
	if !ok || e.Kind != xref.EntryCompressed || e.Stream != 3 || e.Index != 0 {
		t.Fatalf("object 2 should live in stream 3: got %+v", e)
	}
	if _, ok := table.Trailer.Lookup("W"); ok {
		t.Fatalf("stream keys must not leak into the trailer")
	}
	if _, ok := table.Trailer.Lookup("Root"); !ok {
		t.Fatalf("trailer lost /Root")
	}
}

func TestResolverFollowsPrevChain(t *testing.T) {
	pdf, _ := buildSimplePDF()
	buf := bytes.NewBuffer(append([]byte(nil), pdf...))
	firstXRef := bytes.LastIndex(pdf, []byte("xref\n0 3"))

	// incremental update redefining object 2
	off2 := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [] /Count 0 /Updated true >>\nendobj\n")
	xrefOff := buf.Len()
	buf.WriteString(fmt.Sprintf("xref\n2 1\n%010d 00000 n \n", off2))
	buf.WriteString(fmt.Sprintf("trailer\n<< /Size 3 /Prev %d >>\nstartxref\n%d\n%%%%EOF\n", firstXRef, xrefOff))

	table, err := xref.NewResolver(xref.ResolverConfig{}).Resolve(context.Background(), buf.Bytes())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if table.Sections != 2 {
		t.Fatalf("expected 2 sections, got %d", table.Sections)
	}
	e, _ := table.Lookup(2)
	if e.Offset != int64(off2) {
		t.Fatalf("newest definition must win: got offset %d want %d", e.Offset, off2)
	}
	if _, ok := table.Trailer.Lookup("Root"); !ok {
		t.Fatalf("/Root from the older trailer must be merged")
	}
}

func TestResolverDetectsPrevLoop(t *testing.T) {
	pdf, _ := buildSimplePDF()
	xrefOff := bytes.LastIndex(pdf, []byte("xref\n0 3"))
	looped := bytes.Replace(pdf, []byte("/Size 3 /Root 1 0 R"), []byte(fmt.Sprintf("/Size 3 /Root 1 0 R /Prev %d", xrefOff)), 1)
	_, err := xref.NewResolver(xref.ResolverConfig{}).Resolve(context.Background(), looped)
	if !errors.Is(err, xref.ErrBadSection) {
		t.Fatalf("expected ErrBadSection for /Prev loop, got %v", err)
	}
}

func TestResolverHybridFile(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.5\n")
	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	off2 := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [] /Count 0 >>\nendobj\n")

	stmOff := buf.Len()
	rows := append(xrefRow(1, uint32(off2), 0), xrefRow(1, uint32(stmOff), 0)...)
	buf.WriteString(fmt.Sprintf("3 0 obj\n<< /Type /XRef /Size 4 /Index [2 2] /W [1 4 2] /Length %d >>\nstream\n", len(rows)))
	buf.Write(rows)
	buf.WriteString("\nendstream\nendobj\n")

	xrefOff := buf.Len()
	buf.WriteString(fmt.Sprintf("xref\n0 2\n0000000000 65535 f \n%010d 00000 n \n", off1))
	buf.WriteString(fmt.Sprintf("trailer\n<< /Size 4 /Root 1 0 R /XRefStm %d >>\nstartxref\n%d\n%%%%EOF\n", stmOff, xrefOff))

	table, err := xref.NewResolver(xref.ResolverConfig{}).Resolve(context.Background(), buf.Bytes())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if e, ok := table.Lookup(2); !ok || e.Offset != int64(off2) {
		t.Fatalf("object 2 must come from the /XRefStm section, got %+v", e)
	}
	if got := len(table.Objects()); got != 3 {
		t.Fatalf("expected 3 objects, got %d", got)
	}
}

func TestResolverStrictRejectsBadOffsets(t *testing.T) {
	pdf, offsets := buildSimplePDF()
	wrong := bytes.Replace(pdf, []byte(fmt.Sprintf("%010d 00000 n", offsets[2])), []byte(fmt.Sprintf("%010d 00000 n", offsets[2]+3)), 1)
	_, err := xref.NewResolver(xref.ResolverConfig{}).Resolve(context.Background(), wrong)
	if !errors.Is(err, xref.ErrBadOffset) {
		t.Fatalf("expected ErrBadOffset, got %v", err)
	}

	table, err := xref.NewResolver(xref.ResolverConfig{Recovery: recovery.NewLenientStrategy()}).Resolve(context.Background(), wrong)
	if err != nil {
		t.Fatalf("lenient resolve: %v", err)
	}
	if !table.Repaired {
		t.Fatalf("expected a repaired table")
	}
	if e, _ := table.Lookup(2); e.Offset != offsets[2] {
		t.Fatalf("repair should find object 2 at %d, got %d", offsets[2], e.Offset)
	}
}
