package optimize

import (
	"context"
	"sort"

	"github.com/wudi/pdfmerge/builder"
	"github.com/wudi/pdfmerge/ir/raw"
)

func (o *Optimizer) combineIdenticalIndirectObjects(ctx context.Context, doc *builder.Document, stats *Stats) error {
	return o.combineObjects(ctx, doc, true, true, stats)
}

func (o *Optimizer) combineDuplicateStreams(ctx context.Context, doc *builder.Document, stats *Stats) error {
	return o.combineObjects(ctx, doc, true, false, stats)
}

// combineObjects repeatedly folds identical objects onto the lowest
// numbered copy until nothing changes; folding one pair can make the
// objects that reference it identical in turn. Page tree nodes, the
// catalog and the info dictionary are never folded.
func (o *Optimizer) combineObjects(ctx context.Context, doc *builder.Document, includeStreams, includeOthers bool, stats *Stats) error {
	pinned := map[raw.ObjectRef]bool{doc.Root: true}
	if doc.Info != nil {
		pinned[*doc.Info] = true
	}

	changed := true
	for changed {
		if err := ctx.Err(); err != nil {
			return err
		}
		changed = false
		seen := make(map[digest]raw.ObjectRef)
		replacements := make(map[raw.ObjectRef]raw.ObjectRef)

		for _, ref := range sortedRefs(doc.Objects) {
			obj := doc.Objects[ref]
			if pinned[ref] || structural(obj) {
				continue
			}
			_, isStream := obj.(*raw.StreamObj)
			if isStream && !includeStreams {
				continue
			}
			if !isStream && !includeOthers {
				continue
			}
			if _, ok := obj.(raw.NullObj); ok {
				continue
			}

			h := hashObject(obj)
			if original, ok := seen[h]; ok {
				replacements[ref] = original
				changed = true
				if isStream {
					stats.Streams++
				} else {
					stats.Objects++
				}
			} else {
				seen[h] = ref
			}
		}

		if len(replacements) > 0 {
			for _, obj := range doc.Objects {
				replaceRefs(obj, replacements)
			}
			for dup := range replacements {
				delete(doc.Objects, dup)
			}
		}
	}
	return nil
}

// structural reports page tree nodes, whose identity matters even when
// their contents match.
func structural(obj raw.Object) bool {
	d, ok := obj.(*raw.DictObj)
	if !ok {
		return false
	}
	t, _ := d.Lookup("Type")
	switch raw.NameValue(t) {
	case "Page", "Pages", "Catalog":
		return true
	}
	return false
}

func sortedRefs(objects map[raw.ObjectRef]raw.Object) []raw.ObjectRef {
	refs := make([]raw.ObjectRef, 0, len(objects))
	for ref := range objects {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Num != refs[j].Num {
			return refs[i].Num < refs[j].Num
		}
		return refs[i].Gen < refs[j].Gen
	})
	return refs
}

func replaceRefs(obj raw.Object, replacements map[raw.ObjectRef]raw.ObjectRef) {
	switch t := obj.(type) {
	case *raw.ArrayObj:
		for i, val := range t.Items {
			if ref, ok := val.(raw.RefObj); ok {
				if newRef, found := replacements[ref.R]; found {
					t.Items[i] = raw.RefObj{R: newRef}
				}
				continue
			}
			replaceRefs(val, replacements)
		}
	case *raw.DictObj:
		for key, val := range t.KV {
			if ref, ok := val.(raw.RefObj); ok {
				if newRef, found := replacements[ref.R]; found {
					t.KV[key] = raw.RefObj{R: newRef}
				}
				continue
			}
			replaceRefs(val, replacements)
		}
	case *raw.StreamObj:
		replaceRefs(t.Dict, replacements)
	}
}
