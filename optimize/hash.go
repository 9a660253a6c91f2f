package optimize

import (
	"crypto/sha256"
	"encoding/binary"
	"hash"
	"math"

	"github.com/wudi/pdfmerge/ir/raw"
)

type digest [sha256.Size]byte

func hashObject(obj raw.Object) digest {
	h := sha256.New()
	writeHash(h, obj)
	var d digest
	copy(d[:], h.Sum(nil))
	return d
}

// writeHash feeds a canonical encoding of obj to h. Every variable-length
// part is length prefixed so distinct objects never share an encoding.
func writeHash(h hash.Hash, obj raw.Object) {
	var scratch [8]byte
	putInt := func(v uint64) {
		binary.BigEndian.PutUint64(scratch[:], v)
		h.Write(scratch[:])
	}
	putBytes := func(b []byte) {
		putInt(uint64(len(b)))
		h.Write(b)
	}

	switch t := obj.(type) {
	case nil, raw.NullObj:
		h.Write([]byte{'z'})
	case raw.NameObj:
		h.Write([]byte{'n'})
		putBytes([]byte(t.Val))
	case raw.NumberObj:
		if t.IsInt {
			h.Write([]byte{'i'})
			putInt(uint64(t.I))
		} else {
			h.Write([]byte{'f'})
			putInt(math.Float64bits(t.F))
		}
	case raw.BoolObj:
		if t.V {
			h.Write([]byte{'T'})
		} else {
			h.Write([]byte{'F'})
		}
	case raw.StringObj:
		h.Write([]byte{'s'})
		putBytes(t.Bytes)
	case raw.HexStringObj:
		// Same string value as a literal.
		h.Write([]byte{'s'})
		putBytes(t.Bytes)
	case raw.RefObj:
		h.Write([]byte{'r'})
		putInt(uint64(t.R.Num))
		putInt(uint64(t.R.Gen))
	case *raw.ArrayObj:
		h.Write([]byte{'a'})
		putInt(uint64(len(t.Items)))
		for _, v := range t.Items {
			writeHash(h, v)
		}
	case *raw.DictObj:
		h.Write([]byte{'d'})
		keys := t.SortedKeys()
		putInt(uint64(len(keys)))
		for _, k := range keys {
			putBytes([]byte(k))
			writeHash(h, t.KV[k])
		}
	case *raw.StreamObj:
		h.Write([]byte{'S'})
		writeHash(h, t.Dict)
		putBytes(t.Data)
	default:
		h.Write([]byte{'?'})
		putBytes([]byte(obj.Type()))
	}
}
