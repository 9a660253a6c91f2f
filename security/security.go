package security

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfmerge/ir/raw"
)

var (
	ErrPixelBomb  = errors.New("image dimensions exceed limits")
	ErrEmptyImage = errors.New("image has no pixels")
)

// EncryptionInfo summarizes an /Encrypt dictionary. Nothing here is used to
// decrypt; encrypted sources are refused before their objects are read.
type EncryptionInfo struct {
	Filter    string
	SubFilter string
	V         int
	R         int
	Length    int
}

func (e EncryptionInfo) String() string {
	if e.Filter == "" {
		return "unknown handler"
	}
	s := fmt.Sprintf("%s V%d R%d", e.Filter, e.V, e.R)
	if e.Length > 0 {
		s += fmt.Sprintf(" %d-bit", e.Length)
	}
	return s
}

// Inspect reads the /Encrypt entry of a trailer. resolve dereferences
// indirect objects and may be nil for direct dictionaries. The boolean is
// false when the trailer carries no /Encrypt entry.
func Inspect(trailer raw.Dictionary, resolve func(raw.Object) raw.Object) (EncryptionInfo, bool) {
	if trailer == nil {
		return EncryptionInfo{}, false
	}
	obj, ok := trailer.Get(raw.NameLiteral("Encrypt"))
	if !ok {
		return EncryptionInfo{}, false
	}
	if _, isNull := obj.(raw.NullObj); isNull {
		return EncryptionInfo{}, false
	}
	if resolve != nil {
		obj = resolve(obj)
	}
	info := EncryptionInfo{}
	dict, ok := obj.(raw.Dictionary)
	if !ok {
		// the entry exists but cannot be read; still treated as encrypted
		return info, true
	}
	info.Filter = nameVal(dict, "Filter")
	info.SubFilter = nameVal(dict, "SubFilter")
	info.V = intVal(dict, "V")
	info.R = intVal(dict, "R")
	info.Length = intVal(dict, "Length")
	if info.Length == 0 && info.V == 1 {
		info.Length = 40
	}
	return info, true
}

func nameVal(d raw.Dictionary, key string) string {
	obj, ok := d.Get(raw.NameLiteral(key))
	if !ok {
		return ""
	}
	return raw.NameValue(obj)
}

func intVal(d raw.Dictionary, key string) int {
	obj, ok := d.Get(raw.NameLiteral(key))
	if !ok {
		return 0
	}
	v, _ := raw.ToInt64(obj)
	return int(v)
}
