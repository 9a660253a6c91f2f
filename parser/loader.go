package parser

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfmerge/filters"
	"github.com/wudi/pdfmerge/ir/raw"
	"github.com/wudi/pdfmerge/scanner"
	"github.com/wudi/pdfmerge/security"
	"github.com/wudi/pdfmerge/xref"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrObjectLoop     = errors.New("object references itself while loading")
)

// objectLoader materializes objects from a resolved xref table. Object
// streams are decoded once and their members cached.
type objectLoader struct {
	data     []byte
	table    *xref.Table
	limits   security.Limits
	pipeline *filters.Pipeline
	objStms  map[int][]raw.Object
	loading  map[int]bool
}

func newObjectLoader(data []byte, table *xref.Table, limits security.Limits) *objectLoader {
	return &objectLoader{
		data:   data,
		table:  table,
		limits: limits,
		pipeline: filters.NewDefaultPipeline(filters.Limits{
			MaxDecompressedSize: limits.MaxDecompressedSize,
			MaxDecodeTime:       limits.MaxDecodeTime,
		}),
		objStms: make(map[int][]raw.Object),
		loading: make(map[int]bool),
	}
}

func (l *objectLoader) readerAt(offset int64) (*raw.Reader, error) {
	s := scanner.New(l.data, scanner.Config{MaxStringLength: l.limits.MaxStringLength})
	if err := s.Seek(offset); err != nil {
		return nil, err
	}
	return raw.NewReader(s, raw.ReaderLimits{
		MaxDepth:     l.limits.MaxNestingDepth,
		MaxArraySize: l.limits.MaxArraySize,
		MaxDictSize:  l.limits.MaxDictSize,
	}), nil
}

// Load returns object num. Generation numbers are not compared: damaged
// files routinely disagree between table and header.
func (l *objectLoader) Load(ctx context.Context, num int) (raw.ObjectRef, raw.Object, error) {
	if err := ctx.Err(); err != nil {
		return raw.ObjectRef{}, nil, err
	}
	e, ok := l.table.Lookup(num)
	if !ok {
		return raw.ObjectRef{}, nil, fmt.Errorf("%w: %d", ErrObjectNotFound, num)
	}
	if l.loading[num] {
		return raw.ObjectRef{}, nil, fmt.Errorf("%w: %d", ErrObjectLoop, num)
	}
	l.loading[num] = true
	defer delete(l.loading, num)

	switch e.Kind {
	case xref.EntryCompressed:
		obj, err := l.loadCompressed(ctx, e.Stream, e.Index)
		return raw.ObjectRef{Num: num}, obj, err
	default:
		rd, err := l.readerAt(e.Offset)
		if err != nil {
			return raw.ObjectRef{}, nil, err
		}
		ref, obj, err := xref.ReadIndirect(rd, func(o raw.Object) (int64, bool) {
			return l.indirectLength(ctx, o)
		})
		if err != nil {
			return raw.ObjectRef{}, nil, fmt.Errorf("object %d at offset %d: %w", num, e.Offset, err)
		}
		if ref.Num != num {
			return raw.ObjectRef{}, nil, fmt.Errorf("object %d: header at offset %d names object %d", num, e.Offset, ref.Num)
		}
		return ref, obj, nil
	}
}

func (l *objectLoader) indirectLength(ctx context.Context, o raw.Object) (int64, bool) {
	ref, ok := o.(raw.RefObj)
	if !ok {
		return 0, false
	}
	_, obj, err := l.Load(ctx, ref.R.Num)
	if err != nil {
		return 0, false
	}
	return raw.ToInt64(obj)
}

func (l *objectLoader) loadCompressed(ctx context.Context, stmNum, index int) (raw.Object, error) {
	members, ok := l.objStms[stmNum]
	if !ok {
		var err error
		members, err = l.decodeObjStm(ctx, stmNum)
		if err != nil {
			return nil, err
		}
		l.objStms[stmNum] = members
	}
	if index < 0 || index >= len(members) {
		return nil, fmt.Errorf("object stream %d has no member %d", stmNum, index)
	}
	return members[index], nil
}

// objStmHeader is one "<num> <offset>" pair of an object stream.
type objStmHeader struct {
	num    int
	offset int64
}

func (l *objectLoader) decodeObjStm(ctx context.Context, stmNum int) ([]raw.Object, error) {
	_, obj, err := l.Load(ctx, stmNum)
	if err != nil {
		return nil, fmt.Errorf("object stream %d: %w", stmNum, err)
	}
	stm, ok := obj.(*raw.StreamObj)
	if !ok || raw.NameValue(get(stm.Dict, "Type")) != "ObjStm" {
		return nil, fmt.Errorf("object %d is not an object stream", stmNum)
	}
	headers, payload, err := l.readObjStm(ctx, stm)
	if err != nil {
		return nil, fmt.Errorf("object stream %d: %w", stmNum, err)
	}
	members := make([]raw.Object, len(headers))
	for i, h := range headers {
		members[i], err = readMember(payload, h.offset, l.limits)
		if err != nil {
			return nil, fmt.Errorf("object stream %d member %d: %w", stmNum, h.num, err)
		}
	}
	return members, nil
}

func (l *objectLoader) readObjStm(ctx context.Context, stm *raw.StreamObj) ([]objStmHeader, []byte, error) {
	names, params := filters.ExtractFilters(stm.Dict)
	payload, err := l.pipeline.Decode(ctx, stm.Data, names, params)
	if err != nil {
		return nil, nil, err
	}
	n, _ := raw.ToInt64(get(stm.Dict, "N"))
	first, _ := raw.ToInt64(get(stm.Dict, "First"))
	if n < 0 || first < 0 || first > int64(len(payload)) {
		return nil, nil, fmt.Errorf("bad /N %d or /First %d", n, first)
	}
	s := scanner.New(payload[:first], scanner.Config{})
	headers := make([]objStmHeader, 0, n)
	for i := int64(0); i < n; i++ {
		num, err1 := s.Next()
		off, err2 := s.Next()
		if err := errors.Join(err1, err2); err != nil {
			return nil, nil, fmt.Errorf("header pair %d: %w", i, err)
		}
		if num.Type != scanner.TokenNumber || off.Type != scanner.TokenNumber {
			return nil, nil, fmt.Errorf("header pair %d is not numeric", i)
		}
		headers = append(headers, objStmHeader{num: int(num.Int), offset: first + off.Int})
	}
	return headers, payload, nil
}

func readMember(payload []byte, offset int64, limits security.Limits) (raw.Object, error) {
	s := scanner.New(payload, scanner.Config{MaxStringLength: limits.MaxStringLength})
	if err := s.Seek(offset); err != nil {
		return nil, err
	}
	return raw.NewReader(s, raw.ReaderLimits{
		MaxDepth:     limits.MaxNestingDepth,
		MaxArraySize: limits.MaxArraySize,
		MaxDictSize:  limits.MaxDictSize,
	}).ReadObject()
}

func get(d *raw.DictObj, key string) raw.Object {
	v, _ := d.Lookup(key)
	return v
}
