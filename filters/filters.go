package filters

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"context"
	stdascii85 "encoding/ascii85"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/image/tiff/lzw"

	"github.com/wudi/pdfmerge/ir/raw"
)

var (
	ErrUnknownFilter = errors.New("unknown filter")
	ErrSizeLimit     = errors.New("decompressed size exceeds limit")
)

type Decoder interface {
	Name() string
	Decode(ctx context.Context, input []byte, params raw.Dictionary) ([]byte, error)
}

type Pipeline struct {
	decoders []Decoder
	limits   Limits
}

// NewPipeline constructs a pipeline with provided decoders and limits.
func NewPipeline(decoders []Decoder, limits Limits) *Pipeline {
	return &Pipeline{decoders: decoders, limits: limits}
}

// NewDefaultPipeline registers every decoder this package implements.
func NewDefaultPipeline(limits Limits) *Pipeline {
	return NewPipeline([]Decoder{
		NewFlateDecoder(limits),
		NewLZWDecoder(limits),
		NewASCII85Decoder(),
		NewASCIIHexDecoder(),
		NewRunLengthDecoder(),
	}, limits)
}

type Limits struct {
	MaxDecompressedSize int64
	MaxDecodeTime       time.Duration
}

func (p *Pipeline) findDecoder(name string) Decoder {
	for _, d := range p.decoders {
		if d.Name() == name {
			return d
		}
	}
	return nil
}

// Supports reports whether every filter in names can be decoded.
func (p *Pipeline) Supports(names []string) bool {
	for _, n := range names {
		if p.findDecoder(canonicalName(n)) == nil {
			return false
		}
	}
	return true
}

func (p *Pipeline) Decode(ctx context.Context, input []byte, filterNames []string, params []raw.Dictionary) ([]byte, error) {
	if p.limits.MaxDecodeTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.limits.MaxDecodeTime)
		defer cancel()
	}
	data := input
	for i, name := range filterNames {
		dec := p.findDecoder(canonicalName(name))
		if dec == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFilter, name)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var param raw.Dictionary
		if i < len(params) && params[i] != nil {
			param = params[i]
		}
		out, err := dec.Decode(ctx, data, param)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if p.limits.MaxDecompressedSize > 0 && int64(len(out)) > p.limits.MaxDecompressedSize {
			return nil, ErrSizeLimit
		}
		data = out
	}
	return data, nil
}

// canonicalName maps the abbreviated inline-image filter names.
func canonicalName(name string) string {
	switch name {
	case "Fl":
		return "FlateDecode"
	case "LZW":
		return "LZWDecode"
	case "A85":
		return "ASCII85Decode"
	case "AHx":
		return "ASCIIHexDecode"
	case "RL":
		return "RunLengthDecode"
	}
	return name
}

type flateDecoder struct{ limits Limits }

func (flateDecoder) Name() string           { return "FlateDecode" }
func NewFlateDecoder(limits Limits) Decoder { return flateDecoder{limits: limits} }

// Decode inflates zlib-framed data, falling back to a bare deflate stream.
// Truncated streams are common in the wild; whatever inflated cleanly before
// the truncation is kept.
func (d flateDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	var rc io.ReadCloser
	zr, err := zlib.NewReader(bytes.NewReader(in))
	if err == nil {
		rc = zr
	} else {
		rc = flate.NewReader(bytes.NewReader(in))
	}
	defer rc.Close()

	out, err := readLimited(rc, d.limits.MaxDecompressedSize)
	if err != nil && !recoverable(err, out) {
		return nil, err
	}
	return applyPredictor(out, params)
}

type lzwDecoder struct{ limits Limits }

func (lzwDecoder) Name() string           { return "LZWDecode" }
func NewLZWDecoder(limits Limits) Decoder { return lzwDecoder{limits: limits} }

// Decode uses the TIFF variant of LZW, which matches the PDF default of
// EarlyChange 1.
func (d lzwDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	r := lzw.NewReader(bytes.NewReader(in), lzw.MSB, 8)
	defer r.Close()
	out, err := readLimited(r, d.limits.MaxDecompressedSize)
	if err != nil && !recoverable(err, out) {
		return nil, err
	}
	return applyPredictor(out, params)
}

type ascii85Decoder struct{}

func (ascii85Decoder) Name() string { return "ASCII85Decode" }
func (ascii85Decoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	trimmed := bytes.TrimSpace(in)
	trimmed = bytes.TrimPrefix(trimmed, []byte("<~"))
	if i := bytes.Index(trimmed, []byte("~>")); i >= 0 {
		trimmed = trimmed[:i]
	}
	out := make([]byte, len(trimmed)*4+4)
	n, _, err := stdascii85.Decode(out, trimmed, true)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}
func NewASCII85Decoder() Decoder { return ascii85Decoder{} }

type asciiHexDecoder struct{}

func (asciiHexDecoder) Name() string { return "ASCIIHexDecode" }
func (asciiHexDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	if i := bytes.IndexByte(in, '>'); i >= 0 {
		in = in[:i]
	}
	digits := make([]byte, 0, len(in))
	for _, c := range in {
		switch c {
		case ' ', '\t', '\r', '\n', '\f', 0:
			continue
		}
		digits = append(digits, c)
	}
	// if odd length, pad with 0 per spec
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	result := make([]byte, hex.DecodedLen(len(digits)))
	n, err := hex.Decode(result, digits)
	if err != nil {
		return nil, err
	}
	return result[:n], nil
}
func NewASCIIHexDecoder() Decoder { return asciiHexDecoder{} }

type runLengthDecoder struct{}

func (runLengthDecoder) Name() string { return "RunLengthDecode" }
func (runLengthDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	var out bytes.Buffer
	for i := 0; i < len(in); {
		n := int(in[i])
		i++
		switch {
		case n == 128:
			return out.Bytes(), nil
		case n < 128:
			end := i + n + 1
			if end > len(in) {
				return nil, errors.New("run length literal overruns input")
			}
			out.Write(in[i:end])
			i = end
		default:
			if i >= len(in) {
				return nil, errors.New("run length repeat missing byte")
			}
			out.Write(bytes.Repeat(in[i:i+1], 257-n))
			i++
		}
	}
	return out.Bytes(), nil
}
func NewRunLengthDecoder() Decoder { return runLengthDecoder{} }

// recoverable reports whether a decode error still left usable output.
func recoverable(err error, out []byte) bool {
	if len(out) == 0 {
		return false
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, zlib.ErrChecksum)
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	var out bytes.Buffer
	if limit <= 0 {
		_, err := io.Copy(&out, r)
		return out.Bytes(), err
	}
	n, err := io.Copy(&out, io.LimitReader(r, limit+1))
	if n > limit {
		return nil, ErrSizeLimit
	}
	return out.Bytes(), err
}

// FlateEncode compresses data into a zlib stream at the given level.
func FlateEncode(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
