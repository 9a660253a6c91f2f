package scanner

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func nextToken(t *testing.T, s *Scanner) Token {
	t.Helper()
	tok, err := s.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return tok
}

func TestScanner_BasicTokens(t *testing.T) {
	s := New([]byte("%PDF-1.7\n1 0 obj\n<< /Name /Value /Nums [1 -2 3.5] /Flag true /Null null >>\nendobj"), Config{})

	tok := nextToken(t, s)
	if tok.Type != TokenNumber || !tok.IsInt || tok.Int != 1 {
		t.Fatalf("expected first token number 1, got %+v", tok)
	}
	tok = nextToken(t, s)
	if tok.Type != TokenNumber || !tok.IsInt || tok.Int != 0 {
		t.Fatalf("expected generation number 0, got %+v", tok)
	}
	if tok = nextToken(t, s); !tok.IsKeyword("obj") {
		t.Fatalf("expected obj keyword, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenDict {
		t.Fatalf("expected dict start, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenName || tok.Str != "Name" {
		t.Fatalf("expected Name key, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenName || tok.Str != "Value" {
		t.Fatalf("expected Name value, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenName || tok.Str != "Nums" {
		t.Fatalf("expected Nums key, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenArray {
		t.Fatalf("expected array start, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Int != 1 || !tok.IsInt {
		t.Fatalf("expected 1, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Int != -2 || !tok.IsInt {
		t.Fatalf("expected -2, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.IsInt || tok.Float != 3.5 {
		t.Fatalf("expected 3.5, got %+v", tok)
	}
	if tok = nextToken(t, s); !tok.IsKeyword("]") {
		t.Fatalf("expected array end, got %+v", tok)
	}
	nextToken(t, s) // /Flag
	if tok = nextToken(t, s); tok.Type != TokenBoolean || !tok.Bool {
		t.Fatalf("expected true, got %+v", tok)
	}
	nextToken(t, s) // /Null
	if tok = nextToken(t, s); tok.Type != TokenNull {
		t.Fatalf("expected null, got %+v", tok)
	}
	if tok = nextToken(t, s); !tok.IsKeyword(">>") {
		t.Fatalf("expected dict end, got %+v", tok)
	}
	if tok = nextToken(t, s); !tok.IsKeyword("endobj") {
		t.Fatalf("expected endobj, got %+v", tok)
	}
	if _, err := s.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestScanner_References(t *testing.T) {
	s := New([]byte("[12 0 R 7 3 R 5 6]"), Config{})
	nextToken(t, s)
	tok := nextToken(t, s)
	if tok.Type != TokenRef || tok.Int != 12 || tok.Gen != 0 {
		t.Fatalf("expected 12 0 R, got %+v", tok)
	}
	tok = nextToken(t, s)
	if tok.Type != TokenRef || tok.Int != 7 || tok.Gen != 3 {
		t.Fatalf("expected 7 3 R, got %+v", tok)
	}
	// "5 6" without R stays two numbers
	if tok = nextToken(t, s); tok.Type != TokenNumber || tok.Int != 5 {
		t.Fatalf("expected 5, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenNumber || tok.Int != 6 {
		t.Fatalf("expected 6, got %+v", tok)
	}
}

func TestScanner_Strings(t *testing.T) {
	cases := []struct {
		in   string
		want []byte
	}{
		{`(Hello)`, []byte("Hello")},
		{`(a (nested) b)`, []byte("a (nested) b")},
		{`(esc \( \) \\ \n)`, []byte("esc ( ) \\ \n")},
		{`(\101\102)`, []byte("AB")},
		{"(line\\\ncontinued)", []byte("linecontinued")},
		{`<48656C6C6F>`, []byte("Hello")},
		{`<4 8 6>`, []byte{0x48, 0x60}},
	}
	for _, tc := range cases {
		s := New([]byte(tc.in), Config{})
		tok := nextToken(t, s)
		if tok.Type != TokenString && tok.Type != TokenHexString {
			t.Fatalf("%s: expected string token, got %v", tc.in, tok.Type)
		}
		if !bytes.Equal(tok.Bytes, tc.want) {
			t.Fatalf("%s: got %q want %q", tc.in, tok.Bytes, tc.want)
		}
	}
}

func TestScanner_NameEscapes(t *testing.T) {
	s := New([]byte("/A#20B/Next"), Config{})
	if tok := nextToken(t, s); tok.Str != "A B" {
		t.Fatalf("expected decoded name, got %q", tok.Str)
	}
	if tok := nextToken(t, s); tok.Str != "Next" {
		t.Fatalf("expected adjacent name, got %q", tok.Str)
	}
}

func TestScanner_UnterminatedString(t *testing.T) {
	s := New([]byte("(never closed"), Config{})
	if _, err := s.Next(); !errors.Is(err, ErrUnterminatedString) {
		t.Fatalf("expected ErrUnterminatedString, got %v", err)
	}
}

func TestScanner_ReadStreamWithLength(t *testing.T) {
	s := New([]byte("stream\r\nabcdef\nendstream endobj"), Config{})
	if tok := nextToken(t, s); !tok.IsKeyword("stream") {
		t.Fatalf("expected stream keyword, got %+v", tok)
	}
	data, err := s.ReadStream(6)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if string(data) != "abcdef" {
		t.Fatalf("unexpected data %q", data)
	}
	if tok := nextToken(t, s); !tok.IsKeyword("endobj") {
		t.Fatalf("expected endobj after stream, got %+v", tok)
	}
}

func TestScanner_ReadStreamWrongLengthFallsBack(t *testing.T) {
	s := New([]byte("stream\nabcdef\nendstream"), Config{})
	nextToken(t, s)
	data, err := s.ReadStream(3)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if string(data) != "abcdef" {
		t.Fatalf("unexpected data %q", data)
	}
}

func TestScanner_ReadStreamUnterminated(t *testing.T) {
	s := New([]byte("stream\nabcdef"), Config{})
	nextToken(t, s)
	if _, err := s.ReadStream(-1); !errors.Is(err, ErrStreamNotTerminated) {
		t.Fatalf("expected ErrStreamNotTerminated, got %v", err)
	}
}
