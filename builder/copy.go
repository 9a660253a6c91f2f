package builder

import "github.com/wudi/pdfmerge/ir/raw"

// Copier moves objects of one source document into the builder. Every
// source object is copied at most once, so resources shared by several
// pages are shared in the output too.
type Copier struct {
	b     *Builder
	src   *raw.Document
	memo  map[raw.ObjectRef]raw.ObjectRef
	queue []raw.ObjectRef
}

func (b *Builder) NewCopier(src *raw.Document) *Copier {
	return &Copier{b: b, src: src, memo: make(map[raw.ObjectRef]raw.ObjectRef)}
}

// Copy returns obj rewritten for the output document. References are
// renumbered and their targets copied. Page and page tree dictionaries
// reached through references become null: a page is only ever emitted by
// its own handle, never pulled in through /Parent or an annotation's /P.
func (c *Copier) Copy(obj raw.Object) raw.Object {
	out := c.copyDirect(obj)
	c.drain()
	return out
}

// Objects reports how many source objects have been copied so far.
func (c *Copier) Objects() int { return len(c.memo) }

func (c *Copier) drain() {
	for len(c.queue) > 0 {
		src := c.queue[0]
		c.queue = c.queue[1:]
		dst := c.memo[src]
		target, ok := c.src.Lookup(src)
		if !ok || isPageNode(target) {
			c.b.Set(dst, raw.NullObj{})
			continue
		}
		c.b.Set(dst, c.copyDirect(target))
	}
}

func (c *Copier) copyDirect(obj raw.Object) raw.Object {
	switch v := obj.(type) {
	case raw.RefObj:
		return raw.RefObj{R: c.mapRef(v.R)}
	case *raw.ArrayObj:
		out := &raw.ArrayObj{Items: make([]raw.Object, len(v.Items))}
		for i, it := range v.Items {
			out.Items[i] = c.copyDirect(it)
		}
		return out
	case *raw.DictObj:
		return c.copyDict(v)
	case *raw.StreamObj:
		return raw.NewStream(c.copyDict(v.Dict), v.Data)
	case nil:
		return raw.NullObj{}
	}
	// names, numbers, strings, booleans and null are immutable values
	return obj
}

func (c *Copier) copyDict(d *raw.DictObj) *raw.DictObj {
	out := raw.Dict()
	if d == nil {
		return out
	}
	for k, v := range d.KV {
		out.KV[k] = c.copyDirect(v)
	}
	return out
}

func (c *Copier) mapRef(src raw.ObjectRef) raw.ObjectRef {
	if dst, ok := c.memo[src]; ok {
		return dst
	}
	dst := c.b.Alloc()
	c.memo[src] = dst
	c.queue = append(c.queue, src)
	return dst
}

func isPageNode(obj raw.Object) bool {
	d, ok := obj.(*raw.DictObj)
	if !ok {
		return false
	}
	switch raw.NameValue(get(d, "Type")) {
	case "Page", "Pages":
		return true
	}
	return false
}

func get(d *raw.DictObj, key string) raw.Object {
	v, _ := d.Lookup(key)
	return v
}
