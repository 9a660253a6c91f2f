package writer

import (
	"testing"

	"github.com/wudi/pdfmerge/ir/raw"
)

func TestAppendObject(t *testing.T) {
	dict := raw.Dict()
	dict.Set(raw.NameLiteral("Type"), raw.NameLiteral("Page"))
	dict.Set(raw.NameLiteral("A"), raw.NewArray(raw.NumberInt(1), raw.NumberFloat(0.5), raw.Bool(true), raw.NullObj{}))
	dict.Set(raw.NameLiteral("Ref"), raw.Ref(12, 0))

	cases := []struct {
		obj  raw.Object
		want string
	}{
		{raw.NameLiteral("A B#"), "/A#20B#23"},
		{raw.NameLiteral("Font(1)"), "/Font#281#29"},
		{raw.NumberFloat(-0.25), "-0.25"},
		{raw.NumberFloat(1e-7), "0.0000001"},
		{raw.Str([]byte("a(b)\\c\n")), `(a\(b\)\\c\n)`},
		{raw.HexStringObj{Bytes: []byte{0xAB, 0x01}}, "<AB01>"},
		{dict, "<</A [1 0.5 true null]/Ref 12 0 R/Type /Page>>"},
	}
	for _, tc := range cases {
		if got := string(appendObject(nil, tc.obj)); got != tc.want {
			t.Fatalf("appendObject(%#v) = %q, want %q", tc.obj, got, tc.want)
		}
	}
}
