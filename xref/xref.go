package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/wudi/pdfmerge/filters"
	"github.com/wudi/pdfmerge/ir/raw"
	"github.com/wudi/pdfmerge/recovery"
	"github.com/wudi/pdfmerge/scanner"
)

var (
	ErrNoStartXRef = errors.New("startxref not found")
	ErrBadSection  = errors.New("malformed cross-reference section")
	ErrBadOffset   = errors.New("cross-reference offset does not point at an object")
)

type EntryKind int

const (
	EntryFree EntryKind = iota
	EntryInUse
	EntryCompressed
)

// Entry locates one object. In-use entries carry a byte offset and
// generation; compressed entries name the object stream and the index
// within it.
type Entry struct {
	Kind   EntryKind
	Offset int64
	Gen    int
	Stream int
	Index  int
}

// Table is the merged view of every cross-reference section of a file,
// newest section first.
type Table struct {
	entries  map[int]Entry
	Trailer  *raw.DictObj
	Sections int
	Repaired bool
}

func newTable() *Table { return &Table{entries: make(map[int]Entry)} }

func (t *Table) Lookup(objNum int) (Entry, bool) {
	e, ok := t.entries[objNum]
	if !ok || e.Kind == EntryFree {
		return Entry{}, false
	}
	return e, true
}

// Objects returns the numbers of every object that is not free.
func (t *Table) Objects() []int {
	out := make([]int, 0, len(t.entries))
	for k, e := range t.entries {
		if e.Kind != EntryFree {
			out = append(out, k)
		}
	}
	sort.Ints(out)
	return out
}

// add keeps the entry from the newest section; older sections only fill gaps.
func (t *Table) add(num int, e Entry) {
	if _, seen := t.entries[num]; seen {
		return
	}
	t.entries[num] = e
}

func (t *Table) mergeTrailer(d *raw.DictObj) {
	if d == nil {
		return
	}
	if t.Trailer == nil {
		t.Trailer = raw.Dict()
	}
	for _, k := range d.SortedKeys() {
		if sectionKeys[k] {
			continue
		}
		if _, ok := t.Trailer.Lookup(k); !ok {
			v, _ := d.Lookup(k)
			t.Trailer.Set(raw.NameLiteral(k), v)
		}
	}
}

// sectionKeys describe a section rather than the document.
var sectionKeys = map[string]bool{
	"Prev": true, "XRefStm": true, "Type": true, "W": true, "Index": true,
	"Filter": true, "DecodeParms": true, "Length": true,
}

type ResolverConfig struct {
	MaxXRefDepth int
	Recovery     recovery.Strategy
	Filters      filters.Limits
}

// Resolver locates and parses the cross-reference data of a PDF.
type Resolver struct {
	cfg      ResolverConfig
	pipeline *filters.Pipeline
}

func NewResolver(cfg ResolverConfig) *Resolver {
	if cfg.MaxXRefDepth <= 0 {
		cfg.MaxXRefDepth = 50
	}
	if cfg.Recovery == nil {
		cfg.Recovery = recovery.NewStrictStrategy()
	}
	return &Resolver{cfg: cfg, pipeline: filters.NewDefaultPipeline(cfg.Filters)}
}

// Resolve follows startxref and the /Prev chain. When the chain is broken, or
// an in-use entry points somewhere other than its object, the recovery
// strategy decides whether the file is rebuilt by a full scan.
func (r *Resolver) Resolve(ctx context.Context, data []byte) (*Table, error) {
	t, err := r.resolveChain(ctx, data)
	if err == nil {
		if bad := badOffsets(data, t); bad > 0 {
			err = fmt.Errorf("%w: %d entries", ErrBadOffset, bad)
		} else if t.Trailer == nil {
			err = fmt.Errorf("%w: no trailer", ErrBadSection)
		}
	}
	if err == nil {
		return t, nil
	}
	loc := recovery.Location{Component: recovery.ComponentXRef}
	if act := r.cfg.Recovery.OnError(ctx, err, loc); act != recovery.ActionFix {
		return nil, err
	}
	repaired, rerr := Repair(ctx, data)
	if rerr != nil {
		return nil, fmt.Errorf("%w (repair: %v)", err, rerr)
	}
	// keep what the damaged chain still knew about the trailer
	if t != nil {
		repaired.mergeTrailer(t.Trailer)
	}
	return repaired, nil
}

func (r *Resolver) resolveChain(ctx context.Context, data []byte) (*Table, error) {
	start, err := findStartXRef(data)
	if err != nil {
		return nil, err
	}
	t := newTable()
	visited := make(map[int64]bool)
	offset := start
	for depth := 0; offset >= 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if depth >= r.cfg.MaxXRefDepth {
			return nil, fmt.Errorf("%w: /Prev chain deeper than %d", ErrBadSection, r.cfg.MaxXRefDepth)
		}
		if visited[offset] {
			return nil, fmt.Errorf("%w: /Prev loop at %d", ErrBadSection, offset)
		}
		visited[offset] = true
		trailer, err := r.readSection(ctx, data, offset, t)
		if err != nil {
			return nil, err
		}
		t.Sections++
		t.mergeTrailer(trailer)
		offset = -1
		if prev, ok := trailer.Lookup("Prev"); ok {
			if v, ok := raw.ToInt64(prev); ok {
				offset = v
			}
		}
	}
	return t, nil
}

// readSection loads one section, classic or stream, and returns its trailer.
func (r *Resolver) readSection(ctx context.Context, data []byte, offset int64, t *Table) (*raw.DictObj, error) {
	if offset < 0 || offset >= int64(len(data)) {
		return nil, fmt.Errorf("%w: offset %d out of range", ErrBadSection, offset)
	}
	s := scanner.New(data, scanner.Config{})
	if err := s.Seek(offset); err != nil {
		return nil, err
	}
	rd := raw.NewReader(s, raw.ReaderLimits{})
	tok, err := rd.Next()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSection, err)
	}
	if tok.IsKeyword("xref") {
		trailer, err := readTable(rd, t)
		if err != nil {
			return nil, err
		}
		// hybrid files point at an additional stream section
		if stm, ok := trailer.Lookup("XRefStm"); ok {
			if off, ok := raw.ToInt64(stm); ok {
				if _, err := r.readStreamSection(ctx, data, off, t); err != nil {
					return nil, err
				}
			}
		}
		return trailer, nil
	}
	return r.readStreamSection(ctx, data, offset, t)
}

func readTable(rd *raw.Reader, t *Table) (*raw.DictObj, error) {
	for {
		tok, err := rd.Next()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadSection, err)
		}
		if tok.IsKeyword("trailer") {
			break
		}
		count, err := rd.Next()
		if err != nil || tok.Type != scanner.TokenNumber || count.Type != scanner.TokenNumber {
			return nil, fmt.Errorf("%w: bad subsection header at %d", ErrBadSection, tok.Pos)
		}
		first := int(tok.Int)
		for i := 0; i < int(count.Int); i++ {
			off, err1 := rd.Next()
			gen, err2 := rd.Next()
			kind, err3 := rd.Next()
			if err := errors.Join(err1, err2, err3); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrBadSection, err)
			}
			if off.Type != scanner.TokenNumber || gen.Type != scanner.TokenNumber || kind.Type != scanner.TokenKeyword {
				return nil, fmt.Errorf("%w: bad entry at %d", ErrBadSection, off.Pos)
			}
			switch kind.Str {
			case "n":
				t.add(first+i, Entry{Kind: EntryInUse, Offset: off.Int, Gen: int(gen.Int)})
			case "f":
				t.add(first+i, Entry{Kind: EntryFree, Gen: int(gen.Int)})
			default:
				return nil, fmt.Errorf("%w: entry type %q", ErrBadSection, kind.Str)
			}
		}
	}
	obj, err := rd.ReadObject()
	if err != nil {
		return nil, fmt.Errorf("%w: trailer: %v", ErrBadSection, err)
	}
	dict, ok := obj.(*raw.DictObj)
	if !ok {
		return nil, fmt.Errorf("%w: trailer is not a dictionary", ErrBadSection)
	}
	return dict, nil
}

func (r *Resolver) readStreamSection(ctx context.Context, data []byte, offset int64, t *Table) (*raw.DictObj, error) {
	s := scanner.New(data, scanner.Config{})
	if err := s.Seek(offset); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSection, err)
	}
	rd := raw.NewReader(s, raw.ReaderLimits{})
	_, obj, err := ReadIndirect(rd, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSection, err)
	}
	stm, ok := obj.(*raw.StreamObj)
	if !ok || raw.NameValue(mustGet(stm.Dict, "Type")) != "XRef" {
		return nil, fmt.Errorf("%w: no xref stream at %d", ErrBadSection, offset)
	}
	names, params := filters.ExtractFilters(stm.Dict)
	payload, err := r.pipeline.Decode(ctx, stm.Data, names, params)
	if err != nil {
		return nil, fmt.Errorf("%w: xref stream: %v", ErrBadSection, err)
	}
	if err := decodeStreamEntries(stm.Dict, payload, t); err != nil {
		return nil, err
	}
	return stm.Dict, nil
}

func decodeStreamEntries(dict *raw.DictObj, payload []byte, t *Table) error {
	wObj, _ := dict.Lookup("W")
	wArr, ok := wObj.(*raw.ArrayObj)
	if !ok || wArr.Len() != 3 {
		return fmt.Errorf("%w: /W must have three widths", ErrBadSection)
	}
	var w [3]int
	for i := range w {
		v, _ := raw.ToInt64(wArr.Items[i])
		if v < 0 || v > 8 {
			return fmt.Errorf("%w: /W width %d", ErrBadSection, v)
		}
		w[i] = int(v)
	}
	size, _ := raw.ToInt64(mustGet(dict, "Size"))
	index := []int64{0, size}
	if idx, ok := mustGet(dict, "Index").(*raw.ArrayObj); ok && idx.Len()%2 == 0 {
		index = index[:0]
		for _, it := range idx.Items {
			v, _ := raw.ToInt64(it)
			index = append(index, v)
		}
	}
	rowLen := w[0] + w[1] + w[2]
	if rowLen == 0 {
		return fmt.Errorf("%w: zero row width", ErrBadSection)
	}
	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		first, count := int(index[i]), int(index[i+1])
		for j := 0; j < count; j++ {
			if pos+rowLen > len(payload) {
				return fmt.Errorf("%w: xref stream truncated", ErrBadSection)
			}
			row := payload[pos : pos+rowLen]
			pos += rowLen
			typ := int64(1)
			if w[0] > 0 {
				typ = field(row[:w[0]])
			}
			f2 := field(row[w[0] : w[0]+w[1]])
			f3 := field(row[w[0]+w[1]:])
			switch typ {
			case 0:
				t.add(first+j, Entry{Kind: EntryFree, Gen: int(f3)})
			case 1:
				t.add(first+j, Entry{Kind: EntryInUse, Offset: f2, Gen: int(f3)})
			case 2:
				t.add(first+j, Entry{Kind: EntryCompressed, Stream: int(f2), Index: int(f3)})
			}
			// unknown types are references to the null object
		}
	}
	return nil
}

func field(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

func mustGet(d *raw.DictObj, key string) raw.Object {
	v, _ := d.Lookup(key)
	return v
}

// ReadIndirect reads "<num> <gen> obj ... endobj" at the reader's position.
// Stream payloads use a direct /Length, or lengthOf for an indirect one;
// with neither, the payload runs to "endstream".
func ReadIndirect(rd *raw.Reader, lengthOf func(raw.Object) (int64, bool)) (raw.ObjectRef, raw.Object, error) {
	num, err := rd.Next()
	if err != nil {
		return raw.ObjectRef{}, nil, err
	}
	gen, err := rd.Next()
	if err != nil {
		return raw.ObjectRef{}, nil, err
	}
	kw, err := rd.Next()
	if err != nil {
		return raw.ObjectRef{}, nil, err
	}
	if num.Type != scanner.TokenNumber || gen.Type != scanner.TokenNumber || !kw.IsKeyword("obj") {
		return raw.ObjectRef{}, nil, fmt.Errorf("expected object header at offset %d", num.Pos)
	}
	ref := raw.ObjectRef{Num: int(num.Int), Gen: int(gen.Int)}
	obj, err := rd.ReadObject()
	if err != nil {
		return ref, nil, err
	}
	dict, isDict := obj.(*raw.DictObj)
	if !isDict {
		return ref, obj, nil
	}
	next, err := rd.Next()
	if err != nil || !next.IsKeyword("stream") {
		return ref, obj, nil
	}
	length := int64(-1)
	if l, ok := dict.Lookup("Length"); ok {
		if v, ok := raw.ToInt64(l); ok {
			length = v
		} else if lengthOf != nil {
			if v, ok := lengthOf(l); ok {
				length = v
			}
		}
	}
	payload, err := rd.Scanner().ReadStream(length)
	if err != nil {
		return ref, nil, err
	}
	return ref, raw.NewStream(dict, payload), nil
}

func findStartXRef(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, ErrNoStartXRef
	}
	rest := bytes.TrimLeft(data[idx+len("startxref"):], " \t\r\n\f\x00")
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	v, err := strconv.ParseInt(string(rest[:end]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoStartXRef, err)
	}
	return v, nil
}

// badOffsets counts in-use entries whose offset does not start the header of
// the object they describe. Leading whitespace is tolerated.
func badOffsets(data []byte, t *Table) int {
	bad := 0
	for num, e := range t.entries {
		if e.Kind != EntryInUse || num == 0 {
			continue
		}
		if !headerAt(data, e.Offset, num) {
			bad++
		}
	}
	return bad
}

func headerAt(data []byte, off int64, num int) bool {
	if off < 0 || off >= int64(len(data)) {
		return false
	}
	rest := bytes.TrimLeft(data[off:], " \t\r\n\f\x00")
	want := strconv.Itoa(num)
	if !bytes.HasPrefix(rest, []byte(want)) {
		return false
	}
	rest = rest[len(want):]
	return len(rest) > 0 && (rest[0] == ' ' || rest[0] == '\t' || rest[0] == '\r' || rest[0] == '\n' || rest[0] == '\f' || rest[0] == 0)
}
