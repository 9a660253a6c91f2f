package builder

import (
	"github.com/wudi/pdfmerge/ir/raw"
	"golang.org/x/text/encoding/unicode"
)

var utf16BE = unicode.UTF16(unicode.BigEndian, unicode.UseBOM)

// TextString encodes s as a PDF text string. ASCII stays a plain literal;
// anything else becomes UTF-16BE with a byte order mark.
func TextString(s string) raw.StringObj {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return raw.Str([]byte(s))
	}
	out, err := utf16BE.NewEncoder().Bytes([]byte(s))
	if err != nil {
		// invalid UTF-8 is stored as is rather than dropped
		return raw.Str([]byte(s))
	}
	return raw.Str(out)
}
