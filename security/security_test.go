package security

import (
	"errors"
	"testing"

	"github.com/wudi/pdfmerge/ir/raw"
)

func TestInspectStandardHandler(t *testing.T) {
	enc := raw.Dict()
	enc.Set(raw.NameObj{Val: "Filter"}, raw.NameObj{Val: "Standard"})
	enc.Set(raw.NameObj{Val: "V"}, raw.NumberInt(4))
	enc.Set(raw.NameObj{Val: "R"}, raw.NumberInt(4))
	enc.Set(raw.NameObj{Val: "Length"}, raw.NumberInt(128))

	objects := map[raw.ObjectRef]raw.Object{{Num: 9}: enc}
	trailer := raw.Dict()
	trailer.Set(raw.NameLiteral("Encrypt"), raw.Ref(9, 0))

	info, ok := Inspect(trailer, func(o raw.Object) raw.Object {
		if r, isRef := o.(raw.RefObj); isRef {
			return objects[r.R]
		}
		return o
	})
	if !ok {
		t.Fatalf("expected encryption to be detected")
	}
	if info.Filter != "Standard" || info.V != 4 || info.R != 4 || info.Length != 128 {
		t.Fatalf("unexpected info %+v", info)
	}
	if info.String() != "Standard V4 R4 128-bit" {
		t.Fatalf("unexpected description %q", info.String())
	}
}

func TestInspectUnencrypted(t *testing.T) {
	trailer := raw.Dict()
	trailer.Set(raw.NameLiteral("Size"), raw.NumberInt(4))
	if _, ok := Inspect(trailer, nil); ok {
		t.Fatalf("trailer without /Encrypt reported as encrypted")
	}
	trailer.Set(raw.NameLiteral("Encrypt"), raw.NullObj{})
	if _, ok := Inspect(trailer, nil); ok {
		t.Fatalf("null /Encrypt reported as encrypted")
	}
}

func TestInspectUnreadableDictionary(t *testing.T) {
	trailer := raw.Dict()
	trailer.Set(raw.NameLiteral("Encrypt"), raw.Ref(40, 0))
	info, ok := Inspect(trailer, func(raw.Object) raw.Object { return raw.NullObj{} })
	if !ok {
		t.Fatalf("dangling /Encrypt must still count as encrypted")
	}
	if info.String() != "unknown handler" {
		t.Fatalf("unexpected description %q", info.String())
	}
}

func TestCheckImage(t *testing.T) {
	l := DefaultLimits()
	if err := l.CheckImage(4000, 3000); err != nil {
		t.Fatalf("4000x3000 should pass: %v", err)
	}
	if err := l.CheckImage(40000, 10); !errors.Is(err, ErrPixelBomb) {
		t.Fatalf("expected pixel bomb for wide image, got %v", err)
	}
	if err := l.CheckImage(10000, 10000); !errors.Is(err, ErrPixelBomb) {
		t.Fatalf("expected pixel bomb for 100MP image, got %v", err)
	}
	if err := l.CheckImage(0, 10); !errors.Is(err, ErrEmptyImage) {
		t.Fatalf("expected empty image error, got %v", err)
	}
}
