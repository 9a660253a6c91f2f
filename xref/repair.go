package xref

import (
	"context"
	"errors"
	"regexp"
	"strconv"

	"github.com/wudi/pdfmerge/ir/raw"
	"github.com/wudi/pdfmerge/scanner"
)

var objHeader = regexp.MustCompile(`(\d+)[\x00\t\n\f\r ]+(\d+)[\x00\t\n\f\r ]+obj\b`)

var trailerKeyword = regexp.MustCompile(`trailer[\x00\t\n\f\r ]*<<`)

// Repair rebuilds a table by scanning the whole file for object headers.
// Later definitions win, as they would in an incremental update. The last
// readable trailer dictionary that names a /Root becomes the trailer; when
// there is none the trailer only carries /Size and the caller has to locate
// the catalog itself.
func Repair(ctx context.Context, data []byte) (*Table, error) {
	t := newTable()
	t.Repaired = true
	matches := objHeader.FindAllSubmatchIndex(data, -1)
	for i, m := range matches {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		// the number must not continue a longer token
		if m[0] > 0 && !isBoundary(data[m[0]-1]) {
			continue
		}
		num, err1 := strconv.Atoi(string(data[m[2]:m[3]]))
		gen, err2 := strconv.Atoi(string(data[m[4]:m[5]]))
		if err1 != nil || err2 != nil {
			continue
		}
		t.entries[num] = Entry{Kind: EntryInUse, Offset: int64(m[0]), Gen: gen}
	}
	if len(t.entries) == 0 {
		return nil, errors.New("repair failed: no objects found")
	}

	for _, m := range trailerKeyword.FindAllIndex(data, -1) {
		s := scanner.New(data, scanner.Config{})
		if err := s.Seek(int64(m[1] - 2)); err != nil {
			continue
		}
		obj, err := raw.NewReader(s, raw.ReaderLimits{}).ReadObject()
		if err != nil {
			continue
		}
		dict, ok := obj.(*raw.DictObj)
		if !ok {
			continue
		}
		if _, hasRoot := dict.Lookup("Root"); hasRoot {
			t.Trailer = dict
		}
	}
	if t.Trailer == nil {
		t.Trailer = raw.Dict()
	}
	max := 0
	for n := range t.entries {
		if n > max {
			max = n
		}
	}
	t.Trailer.Set(raw.NameLiteral("Size"), raw.NumberInt(int64(max+1)))
	t.Trailer.Delete("Prev")
	t.Trailer.Delete("XRefStm")
	t.Sections = 1
	return t, nil
}

func isBoundary(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ', '>', ']', ')', '}':
		return true
	}
	return false
}
