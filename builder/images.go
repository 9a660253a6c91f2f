package builder

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfmerge/ir/raw"
)

// A4 in points, the page size of every raster input.
var A4 = Rect{URX: 595, URY: 842}

// DefaultMargin is half an inch on every side.
const DefaultMargin = 36.0

// ImagePage places one baseline JPEG on its own page. The image is scaled to
// fit the area inside the margins keeping its aspect ratio, centered
// horizontally and aligned with the top margin.
type ImagePage struct {
	JPEG   []byte
	Width  int
	Height int
	Gray   bool
	// Page defaults to A4, Margin to DefaultMargin.
	Page   Rect
	Margin *float64
}

// Placement is the image rectangle on the page.
type Placement struct {
	X, Y, Width, Height float64
}

// Place computes where a w x h pixel image lands on page. One pixel is one
// point before scaling; the scale factor may exceed 1.
func Place(page Rect, margin float64, w, h int) (Placement, error) {
	if w <= 0 || h <= 0 {
		return Placement{}, fmt.Errorf("invalid image size %dx%d", w, h)
	}
	availW := page.Width() - 2*margin
	availH := page.Height() - 2*margin
	if availW <= 0 || availH <= 0 {
		return Placement{}, errors.New("margins leave no printable area")
	}
	scale := min(availW/float64(w), availH/float64(h))
	sw := float64(w) * scale
	sh := float64(h) * scale
	return Placement{
		X:      page.LLX + margin + (availW-sw)/2,
		Y:      page.URY - margin - sh,
		Width:  sw,
		Height: sh,
	}, nil
}

func (p *ImagePage) AppendTo(b *Builder) error {
	if len(p.JPEG) == 0 {
		return errors.New("image page without data")
	}
	page := p.Page
	if page.IsZero() {
		page = A4
	}
	margin := DefaultMargin
	if p.Margin != nil {
		margin = *p.Margin
	}
	pl, err := Place(page, margin, p.Width, p.Height)
	if err != nil {
		return err
	}

	cs := "DeviceRGB"
	if p.Gray {
		cs = "DeviceGray"
	}
	img := raw.Dict()
	img.Set(raw.NameLiteral("Type"), raw.NameLiteral("XObject"))
	img.Set(raw.NameLiteral("Subtype"), raw.NameLiteral("Image"))
	img.Set(raw.NameLiteral("Width"), raw.NumberInt(int64(p.Width)))
	img.Set(raw.NameLiteral("Height"), raw.NumberInt(int64(p.Height)))
	img.Set(raw.NameLiteral("ColorSpace"), raw.NameLiteral(cs))
	img.Set(raw.NameLiteral("BitsPerComponent"), raw.NumberInt(8))
	img.Set(raw.NameLiteral("Filter"), raw.NameLiteral("DCTDecode"))
	imgRef := b.Add(raw.NewStream(img, p.JPEG))

	xobjects := raw.Dict()
	xobjects.Set(raw.NameLiteral("Im1"), raw.RefObj{R: imgRef})
	resources := raw.Dict()
	resources.Set(raw.NameLiteral("XObject"), xobjects)

	ops := fmt.Sprintf("q %s 0 0 %s %s %s cm /Im1 Do Q",
		formatNumber(pl.Width), formatNumber(pl.Height), formatNumber(pl.X), formatNumber(pl.Y))
	content := b.Add(raw.NewStream(raw.Dict(), []byte(ops)))

	dict := raw.Dict()
	dict.Set(raw.NameLiteral("MediaBox"), page.Array())
	dict.Set(raw.NameLiteral("Resources"), resources)
	dict.Set(raw.NameLiteral("Contents"), raw.RefObj{R: content})
	b.AppendPage(dict)
	return nil
}
