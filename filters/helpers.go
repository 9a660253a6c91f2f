package filters

import "github.com/wudi/pdfmerge/ir/raw"

// ExtractFilters reads Filter and DecodeParms entries from a stream dictionary.
func ExtractFilters(dict raw.Dictionary) ([]string, []raw.Dictionary) {
	var names []string
	var params []raw.Dictionary

	filterObj, ok := dict.Get(raw.NameObj{Val: "Filter"})
	if !ok {
		return names, params
	}

	switch f := filterObj.(type) {
	case raw.NameObj:
		names = append(names, f.Value())
	case *raw.ArrayObj:
		for _, item := range f.Items {
			if n, ok := item.(raw.NameObj); ok {
				names = append(names, n.Value())
			}
		}
	}

	if len(names) > 0 {
		if pObj, ok := dict.Get(raw.NameObj{Val: "DecodeParms"}); ok {
			switch p := pObj.(type) {
			case *raw.DictObj:
				params = append(params, p)
			case *raw.ArrayObj:
				for _, item := range p.Items {
					d, _ := item.(*raw.DictObj)
					params = append(params, d)
				}
			}
		}
	}

	return names, params
}
