package builder

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/wudi/pdfmerge/ir/raw"
)

var ErrNoPages = errors.New("document has no pages")

// PageHandle is a page ready to be appended to an output document.
// Importers return one per source page; raster inputs produce one each.
type PageHandle interface {
	AppendTo(b *Builder) error
}

// Info is the document information dictionary of the output.
type Info struct {
	Title        string
	Author       string
	Subject      string
	Creator      string
	Producer     string
	CreationDate time.Time
}

// Builder allocates objects for one output document and keeps its page list.
// It is not safe for concurrent use.
type Builder struct {
	next     int
	objects  map[raw.ObjectRef]raw.Object
	pagesRef raw.ObjectRef
	pages    []raw.ObjectRef
	info     Info
}

func New() *Builder {
	b := &Builder{next: 1, objects: make(map[raw.ObjectRef]raw.Object)}
	b.pagesRef = b.Alloc()
	return b
}

// Alloc reserves an object number. The object must be stored with Set
// before Build, or it is written as null.
func (b *Builder) Alloc() raw.ObjectRef {
	ref := raw.ObjectRef{Num: b.next}
	b.next++
	return ref
}

func (b *Builder) Set(ref raw.ObjectRef, obj raw.Object) {
	b.objects[ref] = obj
}

// Add stores obj under a new object number.
func (b *Builder) Add(obj raw.Object) raw.ObjectRef {
	ref := b.Alloc()
	b.Set(ref, obj)
	return ref
}

// AppendPage adds a page dictionary at the end of the page list.
func (b *Builder) AppendPage(page *raw.DictObj) raw.ObjectRef {
	page.Set(raw.NameLiteral("Type"), raw.NameLiteral("Page"))
	page.Set(raw.NameLiteral("Parent"), raw.RefObj{R: b.pagesRef})
	ref := b.Add(page)
	b.pages = append(b.pages, ref)
	return ref
}

// Append appends every handle in order.
func (b *Builder) Append(handles ...PageHandle) error {
	for i, h := range handles {
		if err := h.AppendTo(b); err != nil {
			return fmt.Errorf("page %d: %w", i+1, err)
		}
	}
	return nil
}

func (b *Builder) PageCount() int { return len(b.pages) }

func (b *Builder) SetInfo(info Info) { b.info = info }

// Document is a finished object graph ready for serialization.
type Document struct {
	Objects map[raw.ObjectRef]raw.Object
	Root    raw.ObjectRef
	Info    *raw.ObjectRef
	Pages   int
}

// Size is one more than the highest object number, as /Size requires.
func (d *Document) Size() int {
	max := 0
	for ref := range d.Objects {
		if ref.Num > max {
			max = ref.Num
		}
	}
	return max + 1
}

// Build writes the page tree, catalog and info dictionary. The builder must
// not be used afterwards.
func (b *Builder) Build() (*Document, error) {
	if len(b.pages) == 0 {
		return nil, ErrNoPages
	}
	kids := raw.NewArray()
	for _, ref := range b.pages {
		kids.Append(raw.RefObj{R: ref})
	}
	pages := raw.Dict()
	pages.Set(raw.NameLiteral("Type"), raw.NameLiteral("Pages"))
	pages.Set(raw.NameLiteral("Kids"), kids)
	pages.Set(raw.NameLiteral("Count"), raw.NumberInt(int64(len(b.pages))))
	b.Set(b.pagesRef, pages)

	catalog := raw.Dict()
	catalog.Set(raw.NameLiteral("Type"), raw.NameLiteral("Catalog"))
	catalog.Set(raw.NameLiteral("Pages"), raw.RefObj{R: b.pagesRef})
	root := b.Add(catalog)

	doc := &Document{Objects: b.objects, Root: root, Pages: len(b.pages)}
	if dict := b.infoDict(); dict.Len() > 0 {
		ref := b.Add(dict)
		doc.Info = &ref
	}
	// reserved numbers that were never filled become null objects
	for n := 1; n < b.next; n++ {
		ref := raw.ObjectRef{Num: n}
		if _, ok := b.objects[ref]; !ok {
			b.objects[ref] = raw.NullObj{}
		}
	}
	return doc, nil
}

func (b *Builder) infoDict() *raw.DictObj {
	d := raw.Dict()
	set := func(key, val string) {
		if val != "" {
			d.Set(raw.NameLiteral(key), TextString(val))
		}
	}
	set("Title", b.info.Title)
	set("Author", b.info.Author)
	set("Subject", b.info.Subject)
	set("Creator", b.info.Creator)
	set("Producer", b.info.Producer)
	if !b.info.CreationDate.IsZero() {
		d.Set(raw.NameLiteral("CreationDate"), raw.Str([]byte(FormatDate(b.info.CreationDate))))
	}
	return d
}

// FormatDate renders t as a PDF date string, e.g. D:20240131120000Z.
func FormatDate(t time.Time) string {
	t = t.UTC()
	return "D:" + t.Format("20060102150405") + "Z"
}

// Rect is a rectangle in default user space units.
type Rect struct {
	LLX, LLY, URX, URY float64
}

func (r Rect) Width() float64  { return r.URX - r.LLX }
func (r Rect) Height() float64 { return r.URY - r.LLY }
func (r Rect) IsZero() bool    { return r == Rect{} }

func (r Rect) Array() *raw.ArrayObj {
	return raw.NewArray(Number(r.LLX), Number(r.LLY), Number(r.URX), Number(r.URY))
}

// RectFromArray reads a four-number array, normalizing the corners.
func RectFromArray(obj raw.Object) (Rect, bool) {
	arr, ok := obj.(*raw.ArrayObj)
	if !ok || arr.Len() != 4 {
		return Rect{}, false
	}
	var v [4]float64
	for i, it := range arr.Items {
		f, ok := raw.ToFloat(it)
		if !ok {
			return Rect{}, false
		}
		v[i] = f
	}
	r := Rect{LLX: min(v[0], v[2]), LLY: min(v[1], v[3]), URX: max(v[0], v[2]), URY: max(v[1], v[3])}
	return r, true
}

// Number keeps whole values as integers so output stays compact.
func Number(f float64) raw.NumberObj {
	if f == float64(int64(f)) {
		return raw.NumberInt(int64(f))
	}
	return raw.NumberFloat(f)
}

// formatNumber renders a coordinate for a content stream.
func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', 4, 64)
}
