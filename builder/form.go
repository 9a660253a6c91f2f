package builder

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/wudi/pdfmerge/ir/raw"
)

var ErrNoContent = errors.New("page content stream missing")

// DefaultMediaBox is US Letter, the value readers assume when a page tree
// declares no /MediaBox at all.
var DefaultMediaBox = Rect{URX: 612, URY: 792}

// FormPage re-creates a source page in the output. The page's content is
// wrapped in a Form XObject and drawn once, so the stream bytes are carried
// over without being interpreted.
type FormPage struct {
	Copier   *Copier
	MediaBox Rect
	CropBox  Rect
	Rotate   int
	// Resources is the inherited resource dictionary of the source page.
	Resources raw.Object
	// Content is the single content stream of the page. Its data and
	// filters are kept as they are.
	Content *raw.StreamObj
}

func (p *FormPage) AppendTo(b *Builder) error {
	if p.Copier == nil {
		return errors.New("form page without copier")
	}
	media := p.MediaBox
	if media.IsZero() {
		media = DefaultMediaBox
	}

	formDict := raw.Dict()
	formDict.Set(raw.NameLiteral("Type"), raw.NameLiteral("XObject"))
	formDict.Set(raw.NameLiteral("Subtype"), raw.NameLiteral("Form"))
	formDict.Set(raw.NameLiteral("FormType"), raw.NumberInt(1))
	formDict.Set(raw.NameLiteral("BBox"), media.Array())
	if p.Resources != nil {
		formDict.Set(raw.NameLiteral("Resources"), p.Copier.Copy(p.Resources))
	} else {
		formDict.Set(raw.NameLiteral("Resources"), raw.Dict())
	}
	var data []byte
	if p.Content != nil {
		data = p.Content.Data
		for _, key := range []string{"Filter", "DecodeParms"} {
			if v, ok := p.Content.Dict.Lookup(key); ok {
				formDict.Set(raw.NameLiteral(key), p.Copier.Copy(v))
			}
		}
	}
	formRef := b.Add(raw.NewStream(formDict, data))

	xobjects := raw.Dict()
	xobjects.Set(raw.NameLiteral("Fm1"), raw.RefObj{R: formRef})
	resources := raw.Dict()
	resources.Set(raw.NameLiteral("XObject"), xobjects)

	content := b.Add(raw.NewStream(raw.Dict(), []byte("q /Fm1 Do Q")))

	page := raw.Dict()
	page.Set(raw.NameLiteral("MediaBox"), media.Array())
	if !p.CropBox.IsZero() && p.CropBox != media {
		page.Set(raw.NameLiteral("CropBox"), p.CropBox.Array())
	}
	if rot := NormalizeRotation(p.Rotate); rot != 0 {
		page.Set(raw.NameLiteral("Rotate"), raw.NumberInt(int64(rot)))
	}
	page.Set(raw.NameLiteral("Resources"), resources)
	page.Set(raw.NameLiteral("Contents"), raw.RefObj{R: content})
	b.AppendPage(page)
	return nil
}

// NormalizeRotation maps any multiple of 90 into 0, 90, 180 or 270.
// Other values are invalid and treated as 0.
func NormalizeRotation(rot int) int {
	if rot%90 != 0 {
		return 0
	}
	rot %= 360
	if rot < 0 {
		rot += 360
	}
	return rot
}

// JoinContents concatenates decoded content streams. A newline separates
// them so an operator at the end of one stream never fuses with the first
// token of the next.
func JoinContents(decoded [][]byte) []byte {
	return bytes.Join(decoded, []byte("\n"))
}

// ContentFromDecoded wraps already decoded content in an unfiltered stream;
// the writer compresses it.
func ContentFromDecoded(decoded [][]byte) *raw.StreamObj {
	data := JoinContents(decoded)
	d := raw.Dict()
	d.Set(raw.NameLiteral("Length"), raw.NumberInt(int64(len(data))))
	return raw.NewStream(d, data)
}

func (p *FormPage) String() string {
	return fmt.Sprintf("form page %gx%g", p.MediaBox.Width(), p.MediaBox.Height())
}
