package raw

import "fmt"

// ObjectRef uniquely identifies an indirect PDF object.
type ObjectRef struct {
	Num int
	Gen int
}

func (r ObjectRef) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// Object is the base interface for all raw PDF objects.
type Object interface {
	Type() string
	IsIndirect() bool
}

// Dictionary represents a PDF dictionary object.
type Dictionary interface {
	Object
	Get(key Name) (Object, bool)
	Set(key Name, value Object)
	Keys() []Name
	Len() int
}

// Array represents a PDF array object.
type Array interface {
	Object
	Get(index int) (Object, bool)
	Len() int
	Append(obj Object)
}

// Stream represents a raw (undecoded) PDF stream.
type Stream interface {
	Object
	Dictionary() Dictionary
	RawData() []byte
	Length() int64
}

// Name represents a PDF name object.
type Name interface {
	Object
	Value() string
}

// String represents a PDF string (literal or hex).
type String interface {
	Object
	Value() []byte
	IsHex() bool
}

// Number represents a PDF numeric value.
type Number interface {
	Object
	Int() int64
	Float() float64
	IsInteger() bool
}

// Reference represents an indirect object reference.
type Reference interface {
	Object
	Ref() ObjectRef
}

// Document is the root container for the objects of one parsed PDF.
type Document struct {
	Objects   map[ObjectRef]Object
	Trailer   *DictObj
	Version   string // e.g., "1.7"
	Encrypted bool
	Repaired  bool
}

// Resolve follows references until a direct object is reached. Missing
// objects resolve to null, as PDF readers are required to do.
func (d *Document) Resolve(obj Object) Object {
	for i := 0; i < 32; i++ {
		ref, ok := obj.(RefObj)
		if !ok {
			return obj
		}
		target, ok := d.Objects[ref.R]
		if !ok {
			return NullObj{}
		}
		obj = target
	}
	return NullObj{}
}

// Lookup returns the object stored under ref.
func (d *Document) Lookup(ref ObjectRef) (Object, bool) {
	obj, ok := d.Objects[ref]
	return obj, ok
}

// Root returns the document catalog.
func (d *Document) Root() (*DictObj, bool) {
	if d.Trailer == nil {
		return nil, false
	}
	root, ok := d.Trailer.Get(NameLiteral("Root"))
	if !ok {
		return nil, false
	}
	dict, ok := d.Resolve(root).(*DictObj)
	return dict, ok
}
