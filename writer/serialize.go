package writer

import (
	"io"
	"math"
	"strconv"

	"github.com/wudi/pdfmerge/ir/raw"
)

func writeObject(w io.Writer, obj raw.Object) {
	if stm, ok := obj.(*raw.StreamObj); ok {
		// stream payloads are written directly instead of being copied
		w.Write(appendObject(nil, stm.Dict))
		io.WriteString(w, "\nstream\n")
		w.Write(stm.Data)
		io.WriteString(w, "\nendstream")
		return
	}
	w.Write(appendObject(nil, obj))
}

// appendObject serializes a direct object. Dictionary keys are written in
// sorted order so output is reproducible.
func appendObject(b []byte, obj raw.Object) []byte {
	switch v := obj.(type) {
	case raw.NameObj:
		return appendName(b, v.Val)
	case raw.NumberObj:
		if v.IsInt {
			return strconv.AppendInt(b, v.I, 10)
		}
		return appendReal(b, v.F)
	case raw.BoolObj:
		return strconv.AppendBool(b, v.V)
	case raw.NullObj:
		return append(b, "null"...)
	case raw.StringObj:
		return appendLiteral(b, v.Bytes)
	case raw.HexStringObj:
		return appendHex(b, v.Bytes)
	case raw.RefObj:
		b = strconv.AppendInt(b, int64(v.R.Num), 10)
		b = append(b, ' ')
		b = strconv.AppendInt(b, int64(v.R.Gen), 10)
		return append(b, " R"...)
	case *raw.ArrayObj:
		b = append(b, '[')
		for i, it := range v.Items {
			if i > 0 {
				b = append(b, ' ')
			}
			b = appendObject(b, it)
		}
		return append(b, ']')
	case *raw.DictObj:
		b = append(b, "<<"...)
		if v != nil {
			for _, k := range v.SortedKeys() {
				b = appendName(b, k)
				b = append(b, ' ')
				b = appendObject(b, v.KV[k])
			}
		}
		return append(b, ">>"...)
	case *raw.StreamObj:
		b = appendObject(b, v.Dict)
		b = append(b, "\nstream\n"...)
		b = append(b, v.Data...)
		return append(b, "\nendstream"...)
	}
	return append(b, "null"...)
}

// appendReal avoids exponent notation, which PDF does not allow.
func appendReal(b []byte, f float64) []byte {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return append(b, '0')
	}
	if f == 0 {
		return append(b, '0')
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	return append(b, s...)
}

func appendName(b []byte, name string) []byte {
	b = append(b, '/')
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < '!' || c > '~' || c == '#' || isDelimiter(c) {
			b = append(b, '#', hexDigits[c>>4], hexDigits[c&0x0f])
			continue
		}
		b = append(b, c)
	}
	return b
}

func appendLiteral(b []byte, s []byte) []byte {
	b = append(b, '(')
	for _, c := range s {
		switch c {
		case '\\', '(', ')':
			b = append(b, '\\', c)
		case '\n':
			b = append(b, '\\', 'n')
		case '\r':
			b = append(b, '\\', 'r')
		default:
			b = append(b, c)
		}
	}
	return append(b, ')')
}

func appendHex(b []byte, s []byte) []byte {
	b = append(b, '<')
	for _, c := range s {
		b = append(b, hexDigits[c>>4], hexDigits[c&0x0f])
	}
	return append(b, '>')
}

const hexDigits = "0123456789ABCDEF"

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}
