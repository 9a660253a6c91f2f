// Package transcode turns PNG and JPEG inputs into bounded-size baseline
// JPEGs that can be placed on an output page.
package transcode

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"
	"io"
	"os"

	"golang.org/x/image/draw"

	"github.com/wudi/pdfmerge/builder"
	"github.com/wudi/pdfmerge/security"
)

// ErrDecode reports an input that is not a decodable raster image.
var ErrDecode = errors.New("image decode failed")

const (
	DefaultMaxSide = 1024
	DefaultQuality = 60
)

type Options struct {
	// MaxSide bounds the longer side in pixels. Smaller images are kept as is.
	MaxSide int
	// Quality is the JPEG quality, 1..100.
	Quality int
	Limits  security.Limits
}

func DefaultOptions() Options {
	return Options{
		MaxSide: DefaultMaxSide,
		Quality: DefaultQuality,
		Limits:  security.DefaultLimits(),
	}
}

func (o Options) withDefaults() Options {
	if o.MaxSide <= 0 {
		o.MaxSide = DefaultMaxSide
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = DefaultQuality
	}
	return o
}

// Image is a transcoded raster. When produced by ToFile the encoded bytes
// live at Path and JPEG is nil.
type Image struct {
	JPEG   []byte
	Path   string
	Width  int
	Height int
	Gray   bool

	Format       string
	SourceWidth  int
	SourceHeight int
}

// Resized reports whether the source was scaled down.
func (im *Image) Resized() bool {
	return im.Width != im.SourceWidth || im.Height != im.SourceHeight
}

// Page returns the output page for the image, reading the staged file when
// the bytes are not held in memory.
func (im *Image) Page() (*builder.ImagePage, error) {
	data := im.JPEG
	if data == nil {
		if im.Path == "" {
			return nil, errors.New("transcoded image has no data")
		}
		var err error
		data, err = os.ReadFile(im.Path)
		if err != nil {
			return nil, err
		}
	}
	return &builder.ImagePage{
		JPEG:   data,
		Width:  im.Width,
		Height: im.Height,
		Gray:   im.Gray,
	}, nil
}

// Transcode decodes r by content, shrinks it so the longer side fits
// MaxSide, flattens transparency onto white and re-encodes it as JPEG.
// Grayscale sources stay grayscale.
func Transcode(r io.Reader, opts Options) (*Image, error) {
	opts = opts.withDefaults()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if err := opts.Limits.CheckImage(cfg.Width, cfg.Height); err != nil {
		return nil, fmt.Errorf("%w: %dx%d: %w", ErrDecode, cfg.Width, cfg.Height, err)
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	sb := src.Bounds()
	w, h := fitWithin(sb.Dx(), sb.Dy(), opts.MaxSide)
	gray := isGray(src)
	dst := canvas(image.Rect(0, 0, w, h), gray)
	if w == sb.Dx() && h == sb.Dy() {
		draw.Draw(dst, dst.Bounds(), src, sb.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, sb, draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return &Image{
		JPEG:         buf.Bytes(),
		Width:        w,
		Height:       h,
		Gray:         gray,
		Format:       format,
		SourceWidth:  sb.Dx(),
		SourceHeight: sb.Dy(),
	}, nil
}

// ToFile transcodes r and writes the JPEG to w, typically a file in the
// staging area named path.
func ToFile(r io.Reader, w io.Writer, path string, opts Options) (*Image, error) {
	im, err := Transcode(r, opts)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(im.JPEG); err != nil {
		return nil, fmt.Errorf("write %s: %w", path, err)
	}
	im.JPEG = nil
	im.Path = path
	return im, nil
}

// fitWithin scales w x h down so neither side exceeds limit. It never
// enlarges.
func fitWithin(w, h, limit int) (int, int) {
	long := w
	if h > long {
		long = h
	}
	if long <= limit {
		return w, h
	}
	scale := float64(limit) / float64(long)
	nw := int(float64(w)*scale + 0.5)
	nh := int(float64(h)*scale + 0.5)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}

// canvas returns a white image of the requested kind.
func canvas(r image.Rectangle, gray bool) draw.Image {
	var dst draw.Image
	if gray {
		dst = image.NewGray(r)
	} else {
		dst = image.NewRGBA(r)
	}
	draw.Draw(dst, r, image.White, image.Point{}, draw.Src)
	return dst
}

func isGray(img image.Image) bool {
	switch img.ColorModel() {
	case color.GrayModel, color.Gray16Model:
		return true
	}
	return false
}
