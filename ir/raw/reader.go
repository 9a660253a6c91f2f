package raw

import (
	"fmt"

	"github.com/wudi/pdfmerge/scanner"
)

// ReaderLimits bounds nesting and container sizes while reading objects.
type ReaderLimits struct {
	MaxDepth     int
	MaxArraySize int
	MaxDictSize  int
}

// Reader turns scanner tokens into raw objects. It supports pushing tokens
// back, which reference detection and stream handling need.
type Reader struct {
	s      *scanner.Scanner
	buf    []scanner.Token
	limits ReaderLimits
}

func NewReader(s *scanner.Scanner, limits ReaderLimits) *Reader {
	if limits.MaxDepth <= 0 {
		limits.MaxDepth = 64
	}
	return &Reader{s: s, limits: limits}
}

// Scanner exposes the underlying scanner; callers must not hold unread
// tokens when they reposition it.
func (r *Reader) Scanner() *scanner.Scanner { return r.s }

func (r *Reader) Next() (scanner.Token, error) {
	if l := len(r.buf); l > 0 {
		t := r.buf[l-1]
		r.buf = r.buf[:l-1]
		return t, nil
	}
	return r.s.Next()
}

func (r *Reader) Unread(tok scanner.Token) {
	r.buf = append(r.buf, tok)
}

// Reset drops pushed-back tokens and repositions the scanner.
func (r *Reader) Reset(offset int64) error {
	r.buf = r.buf[:0]
	return r.s.Seek(offset)
}

// ReadObject reads one direct object.
func (r *Reader) ReadObject() (Object, error) {
	return r.readObject(0)
}

func (r *Reader) readObject(depth int) (Object, error) {
	if depth > r.limits.MaxDepth {
		return nil, fmt.Errorf("object nesting exceeds %d", r.limits.MaxDepth)
	}
	tok, err := r.Next()
	if err != nil {
		return nil, err
	}
	switch tok.Type {
	case scanner.TokenName:
		return NameObj{Val: tok.Str}, nil
	case scanner.TokenNumber:
		if tok.IsInt {
			return NumberObj{I: tok.Int, IsInt: true}, nil
		}
		return NumberObj{F: tok.Float}, nil
	case scanner.TokenBoolean:
		return BoolObj{V: tok.Bool}, nil
	case scanner.TokenNull:
		return NullObj{}, nil
	case scanner.TokenString:
		return StringObj{Bytes: tok.Bytes}, nil
	case scanner.TokenHexString:
		return HexStringObj{Bytes: tok.Bytes}, nil
	case scanner.TokenRef:
		return RefObj{R: ObjectRef{Num: int(tok.Int), Gen: tok.Gen}}, nil
	case scanner.TokenArray:
		return r.readArray(depth)
	case scanner.TokenDict:
		return r.readDict(depth)
	}
	return nil, fmt.Errorf("unexpected %s token %q at offset %d", tok.Type, tok.Str, tok.Pos)
}

func (r *Reader) readArray(depth int) (Object, error) {
	arr := &ArrayObj{}
	for {
		tok, err := r.Next()
		if err != nil {
			return nil, err
		}
		if tok.IsKeyword("]") {
			return arr, nil
		}
		r.Unread(tok)
		item, err := r.readObject(depth + 1)
		if err != nil {
			return nil, err
		}
		arr.Append(item)
		if r.limits.MaxArraySize > 0 && arr.Len() > r.limits.MaxArraySize {
			return nil, fmt.Errorf("array exceeds %d elements", r.limits.MaxArraySize)
		}
	}
}

func (r *Reader) readDict(depth int) (Object, error) {
	d := Dict()
	for {
		tok, err := r.Next()
		if err != nil {
			return nil, err
		}
		if tok.IsKeyword(">>") {
			return d, nil
		}
		if tok.Type != scanner.TokenName {
			return nil, fmt.Errorf("expected name in dict at offset %d, got %s", tok.Pos, tok.Type)
		}
		val, err := r.readObject(depth + 1)
		if err != nil {
			return nil, err
		}
		// a null value is equivalent to an absent entry
		if _, isNull := val.(NullObj); !isNull {
			d.Set(NameObj{Val: tok.Str}, val)
		}
		if r.limits.MaxDictSize > 0 && d.Len() > r.limits.MaxDictSize {
			return nil, fmt.Errorf("dictionary exceeds %d entries", r.limits.MaxDictSize)
		}
	}
}
