package filters

import (
	"fmt"

	"github.com/wudi/pdfmerge/ir/raw"
)

type predictorParams struct {
	predictor int
	colors    int
	bpc       int
	columns   int
}

func readPredictorParams(params raw.Dictionary) predictorParams {
	p := predictorParams{predictor: 1, colors: 1, bpc: 8, columns: 1}
	if params == nil {
		return p
	}
	get := func(key string, dst *int) {
		if obj, ok := params.Get(raw.NameLiteral(key)); ok {
			if v, ok := raw.ToInt64(obj); ok && v > 0 {
				*dst = int(v)
			}
		}
	}
	get("Predictor", &p.predictor)
	get("Colors", &p.colors)
	get("BitsPerComponent", &p.bpc)
	get("Columns", &p.columns)
	return p
}

// applyPredictor undoes TIFF (2) and PNG (>= 10) prediction.
func applyPredictor(data []byte, params raw.Dictionary) ([]byte, error) {
	p := readPredictorParams(params)
	switch {
	case p.predictor == 1:
		return data, nil
	case p.predictor == 2:
		return undoTIFF(data, p)
	case p.predictor >= 10:
		return undoPNG(data, p)
	}
	return nil, fmt.Errorf("unsupported predictor %d", p.predictor)
}

func rowGeometry(p predictorParams) (rowLen, bpp int) {
	bitsPerPixel := p.colors * p.bpc
	rowLen = (bitsPerPixel*p.columns + 7) / 8
	bpp = (bitsPerPixel + 7) / 8
	return rowLen, bpp
}

func undoPNG(data []byte, p predictorParams) ([]byte, error) {
	rowLen, bpp := rowGeometry(p)
	stride := rowLen + 1
	out := make([]byte, 0, len(data)/stride*rowLen)
	prev := make([]byte, rowLen)
	for off := 0; off < len(data); off += stride {
		end := off + stride
		if end > len(data) {
			// trailing partial row, keep what is there
			end = len(data)
		}
		filter := data[off]
		row := make([]byte, rowLen)
		copy(row, data[off+1:end])
		for i := 0; i < rowLen; i++ {
			var left, up, upLeft byte
			if i >= bpp {
				left = row[i-bpp]
				upLeft = prev[i-bpp]
			}
			up = prev[i]
			switch filter {
			case 0:
			case 1:
				row[i] += left
			case 2:
				row[i] += up
			case 3:
				row[i] += byte((int(left) + int(up)) / 2)
			case 4:
				row[i] += paeth(left, up, upLeft)
			default:
				return nil, fmt.Errorf("invalid png filter type %d", filter)
			}
		}
		out = append(out, row[:end-off-1]...)
		prev = row
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	switch {
	case pa <= pb && pa <= pc:
		return a
	case pb <= pc:
		return b
	}
	return c
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func undoTIFF(data []byte, p predictorParams) ([]byte, error) {
	if p.bpc != 8 {
		return nil, fmt.Errorf("tiff predictor with %d bits per component not supported", p.bpc)
	}
	rowLen, _ := rowGeometry(p)
	out := make([]byte, len(data))
	copy(out, data)
	for off := 0; off+rowLen <= len(out); off += rowLen {
		for i := p.colors; i < rowLen; i++ {
			out[off+i] += out[off+i-p.colors]
		}
	}
	return out, nil
}
