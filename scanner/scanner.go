package scanner

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

type TokenType int

const (
	TokenDict      TokenType = iota // '<<'
	TokenArray                      // '['
	TokenName                       // '/Name'
	TokenString                     // literal string
	TokenHexString                  // hex string
	TokenNumber                     // numeric value
	TokenBoolean                    // true/false
	TokenNull                       // null
	TokenRef                        // indirect ref '5 0 R'
	TokenKeyword                    // other keywords (obj, endobj, stream, >>, ], etc.)
)

func (t TokenType) String() string {
	switch t {
	case TokenDict:
		return "dict"
	case TokenArray:
		return "array"
	case TokenName:
		return "name"
	case TokenString:
		return "string"
	case TokenHexString:
		return "hexstring"
	case TokenNumber:
		return "number"
	case TokenBoolean:
		return "boolean"
	case TokenNull:
		return "null"
	case TokenRef:
		return "ref"
	case TokenKeyword:
		return "keyword"
	}
	return "unknown"
}

// Token is one lexical element. Str holds names and keywords, Bytes holds
// string payloads. For references Int is the object number and Gen the
// generation.
type Token struct {
	Type  TokenType
	Str   string
	Bytes []byte
	Int   int64
	Float float64
	IsInt bool
	Bool  bool
	Gen   int
	Pos   int64
}

// IsKeyword reports whether the token is the given keyword.
func (t Token) IsKeyword(kw string) bool {
	return t.Type == TokenKeyword && t.Str == kw
}

type Config struct {
	MaxStringLength int64
}

var (
	ErrUnterminatedString  = errors.New("unterminated string")
	ErrStreamNotTerminated = errors.New("stream not terminated by endstream")
)

// Scanner tokenizes a PDF held entirely in memory. Input files are bounded in
// size, so random access over a byte slice is simpler than windowed reads.
type Scanner struct {
	data []byte
	pos  int64
	cfg  Config
}

func New(data []byte, cfg Config) *Scanner {
	return &Scanner{data: data, cfg: cfg}
}

func (s *Scanner) Position() int64 { return s.pos }
func (s *Scanner) Len() int64      { return int64(len(s.data)) }

func (s *Scanner) Seek(offset int64) error {
	if offset < 0 || offset > int64(len(s.data)) {
		return fmt.Errorf("seek %d out of range", offset)
	}
	s.pos = offset
	return nil
}

func (s *Scanner) Next() (Token, error) {
	s.skipWSAndComments()
	if s.pos >= int64(len(s.data)) {
		return Token{}, io.EOF
	}
	start := s.pos
	c := s.data[s.pos]
	switch c {
	case '<':
		if s.peek(1) == '<' {
			s.pos += 2
			return Token{Type: TokenDict, Str: "<<", Pos: start}, nil
		}
		return s.scanHexString()
	case '>':
		if s.peek(1) == '>' {
			s.pos += 2
			return Token{Type: TokenKeyword, Str: ">>", Pos: start}, nil
		}
		s.pos++
		return Token{Type: TokenKeyword, Str: ">", Pos: start}, nil
	case '[':
		s.pos++
		return Token{Type: TokenArray, Str: "[", Pos: start}, nil
	case ']', '{', '}', ')':
		s.pos++
		return Token{Type: TokenKeyword, Str: string(c), Pos: start}, nil
	case '(':
		return s.scanLiteralString()
	case '/':
		return s.scanName()
	}
	if isDigitStart(c) {
		return s.scanNumberOrRef()
	}
	return s.scanKeyword()
}

// ReadStream returns the payload following a "stream" keyword that Next has
// just returned. A non-negative length is trusted when "endstream" follows
// it; otherwise the payload is delimited by searching for "endstream".
func (s *Scanner) ReadStream(length int64) ([]byte, error) {
	// the keyword is followed by CRLF or LF; a lone CR is tolerated
	if s.pos < int64(len(s.data)) && s.data[s.pos] == '\r' {
		s.pos++
	}
	if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
		s.pos++
	}
	start := s.pos
	if length >= 0 && start+length <= int64(len(s.data)) {
		end := start + length
		if s.endstreamAt(end) {
			s.pos = end
			s.skipWSAndComments()
			s.pos += int64(len("endstream"))
			return s.data[start:end], nil
		}
	}
	idx := bytes.Index(s.data[start:], []byte("endstream"))
	if idx < 0 {
		return nil, ErrStreamNotTerminated
	}
	end := start + int64(idx)
	s.pos = end + int64(len("endstream"))
	// the EOL before endstream is not part of the data
	if end > start && s.data[end-1] == '\n' {
		end--
	}
	if end > start && s.data[end-1] == '\r' {
		end--
	}
	return s.data[start:end], nil
}

func (s *Scanner) endstreamAt(off int64) bool {
	for off < int64(len(s.data)) && isWhitespace(s.data[off]) {
		off++
	}
	return bytes.HasPrefix(s.data[off:], []byte("endstream"))
}

func (s *Scanner) peek(n int64) byte {
	if s.pos+n >= int64(len(s.data)) {
		return 0
	}
	return s.data[s.pos+n]
}

func (s *Scanner) skipWSAndComments() {
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for s.pos < int64(len(s.data)) && !isEOL(s.data[s.pos]) {
				s.pos++
			}
			continue
		}
		return
	}
}

func (s *Scanner) scanName() (Token, error) {
	start := s.pos
	s.pos++ // '/'
	var name []byte
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		if c == '#' && s.pos+2 < int64(len(s.data)) {
			hi, lo := fromHex(s.data[s.pos+1]), fromHex(s.data[s.pos+2])
			if hi != 0xFF && lo != 0xFF {
				name = append(name, hi<<4|lo)
				s.pos += 3
				continue
			}
		}
		name = append(name, c)
		s.pos++
	}
	return Token{Type: TokenName, Str: string(name), Pos: start}, nil
}

func (s *Scanner) scanLiteralString() (Token, error) {
	start := s.pos
	s.pos++ // '('
	depth := 1
	var out []byte
	for s.pos < int64(len(s.data)) {
		if s.cfg.MaxStringLength > 0 && int64(len(out)) > s.cfg.MaxStringLength {
			return Token{}, fmt.Errorf("string at %d exceeds %d bytes", start, s.cfg.MaxStringLength)
		}
		c := s.data[s.pos]
		s.pos++
		switch c {
		case '\\':
			if s.pos >= int64(len(s.data)) {
				return Token{}, ErrUnterminatedString
			}
			e := s.data[s.pos]
			s.pos++
			switch {
			case e >= '0' && e <= '7':
				v := int(e - '0')
				for i := 0; i < 2 && s.pos < int64(len(s.data)); i++ {
					d := s.data[s.pos]
					if d < '0' || d > '7' {
						break
					}
					v = v*8 + int(d-'0')
					s.pos++
				}
				out = append(out, byte(v))
			case e == '\r':
				// line continuation
				if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
					s.pos++
				}
			case e == '\n':
			default:
				out = append(out, translateEscape(e))
			}
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return Token{Type: TokenString, Bytes: out, Pos: start}, nil
			}
			out = append(out, c)
		case '\r':
			if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
				s.pos++
			}
			out = append(out, '\n')
		default:
			out = append(out, c)
		}
	}
	return Token{}, ErrUnterminatedString
}

func (s *Scanner) scanHexString() (Token, error) {
	start := s.pos
	s.pos++ // '<'
	var out []byte
	var hi byte
	half := false
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			if half {
				out = append(out, hi<<4)
			}
			return Token{Type: TokenHexString, Bytes: out, Pos: start}, nil
		}
		if isWhitespace(c) {
			continue
		}
		v := fromHex(c)
		if v == 0xFF {
			return Token{}, fmt.Errorf("invalid hex digit %q at %d", c, s.pos-1)
		}
		if half {
			out = append(out, hi<<4|v)
			half = false
		} else {
			hi = v
			half = true
		}
	}
	return Token{}, ErrUnterminatedString
}

func (s *Scanner) scanNumberOrRef() (Token, error) {
	start := s.pos
	text := s.scanNumberString()
	tok, ok := parseNumber(text)
	if !ok {
		return Token{Type: TokenKeyword, Str: text, Pos: start}, nil
	}
	tok.Pos = start
	if !tok.IsInt || tok.Int < 0 {
		return tok, nil
	}
	// "<num> <gen> R"
	save := s.pos
	s.skipWSAndComments()
	if s.pos < int64(len(s.data)) && isDigit(s.data[s.pos]) {
		genText := s.scanNumberString()
		gen, err := strconv.Atoi(genText)
		if err == nil && gen >= 0 {
			s.skipWSAndComments()
			if s.pos < int64(len(s.data)) && s.data[s.pos] == 'R' &&
				(s.pos+1 == int64(len(s.data)) || isWhitespace(s.data[s.pos+1]) || isDelimiter(s.data[s.pos+1])) {
				s.pos++
				return Token{Type: TokenRef, Int: tok.Int, Gen: gen, IsInt: true, Pos: start}, nil
			}
		}
	}
	s.pos = save
	return tok, nil
}

func (s *Scanner) scanNumberString() string {
	start := s.pos
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		s.pos++
	}
	return string(s.data[start:s.pos])
}

func parseNumber(text string) (Token, bool) {
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return Token{Type: TokenNumber, Int: i, IsInt: true, Str: text}, true
	}
	// writers emit things like "--1" or "1.2.3"; keep what parses
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return Token{Type: TokenNumber, Float: f, Str: text}, true
	}
	return Token{}, false
}

func (s *Scanner) scanKeyword() (Token, error) {
	start := s.pos
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		s.pos++
	}
	if s.pos == start {
		// stray delimiter not handled above
		s.pos++
	}
	word := string(s.data[start:s.pos])
	switch word {
	case "true":
		return Token{Type: TokenBoolean, Bool: true, Str: word, Pos: start}, nil
	case "false":
		return Token{Type: TokenBoolean, Bool: false, Str: word, Pos: start}, nil
	case "null":
		return Token{Type: TokenNull, Str: word, Pos: start}, nil
	}
	return Token{Type: TokenKeyword, Str: word, Pos: start}, nil
}

func isWhitespace(c byte) bool {
	return c == 0 || c == '\t' || c == '\n' || c == '\f' || c == '\r' || c == ' '
}
func isEOL(c byte) bool   { return c == '\r' || c == '\n' }
func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isDigitStart(c byte) bool {
	return c == '+' || c == '-' || c == '.' || isDigit(c)
}
func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func fromHex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0xFF
}

func translateEscape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	}
	return c
}
