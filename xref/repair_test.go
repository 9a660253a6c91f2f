package xref_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/wudi/pdfmerge/recovery"
	"github.com/wudi/pdfmerge/xref"
)

func TestResolverRepairsCorruptXRef(t *testing.T) {
	// no xref table and no startxref
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n")

	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	off2 := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Count 0 >>\nendobj\n")

	buf.WriteString("trailer\n<< /Size 3 /Root 1 0 R >>\n")
	buf.WriteString("%%EOF\n")

	_, err := xref.NewResolver(xref.ResolverConfig{}).Resolve(context.Background(), buf.Bytes())
	if !errors.Is(err, xref.ErrNoStartXRef) {
		t.Fatalf("expected ErrNoStartXRef with the strict strategy, got %v", err)
	}

	rec := recovery.NewLenientStrategy()
	table, err := xref.NewResolver(xref.ResolverConfig{Recovery: rec}).Resolve(context.Background(), buf.Bytes())
	if err != nil {
		t.Fatalf("repair failed: %v", err)
	}
	if len(rec.Reported()) != 1 {
		t.Fatalf("expected the broken section to be reported once, got %d", len(rec.Reported()))
	}
	if e, ok := table.Lookup(1); !ok || e.Offset != int64(off1) {
		t.Fatalf("object 1: got %+v", e)
	}
	if e, ok := table.Lookup(2); !ok || e.Offset != int64(off2) {
		t.Fatalf("object 2: got %+v", e)
	}
	if _, ok := table.Trailer.Lookup("Root"); !ok {
		t.Fatalf("repaired trailer should keep /Root")
	}
}

func TestRepairLaterDefinitionWins(t *testing.T) {
	data := []byte("%PDF-1.4\n1 0 obj\n(old)\nendobj\n1 0 obj\n(new)\nendobj\n11 0 obj\nnull\nendobj\n")
	table, err := xref.Repair(context.Background(), data)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	e, _ := table.Lookup(1)
	if want := int64(bytes.LastIndex(data, []byte("1 0 obj\n(new)"))); e.Offset != want {
		t.Fatalf("expected offset %d, got %d", want, e.Offset)
	}
	if _, ok := table.Lookup(11); !ok {
		t.Fatalf("object 11 missing")
	}
	size, _ := table.Trailer.Lookup("Size")
	if size == nil {
		t.Fatalf("repaired trailer needs /Size")
	}
}

func TestRepairNoObjects(t *testing.T) {
	if _, err := xref.Repair(context.Background(), []byte("not a pdf at all")); err == nil {
		t.Fatalf("expected failure on data without objects")
	}
}
