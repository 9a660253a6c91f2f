package security

import "time"

// Limits defines resource boundaries for parsing source documents and
// decoding raster inputs. They keep a single hostile input from exhausting
// memory or stack (zip bombs, deep nesting, pixel bombs).
type Limits struct {
	// Maximum decompressed stream size. Default: 100 MB.
	MaxDecompressedSize int64

	// Maximum indirect reference depth. Default: 100.
	MaxIndirectDepth int

	// Maximum XRef chain depth (Prev entries). Default: 50.
	MaxXRefDepth int

	// Maximum object nesting depth while reading. Default: 64.
	MaxNestingDepth int

	// Maximum page tree depth. Default: 64.
	MaxPageTreeDepth int

	// Maximum array size (number of elements). Default: 100,000.
	MaxArraySize int

	// Maximum dictionary size (number of entries). Default: 10,000.
	MaxDictSize int

	// Maximum string length (bytes). Default: 10 MB.
	MaxStringLength int64

	// Maximum decode time per stream. Default: 30s.
	MaxDecodeTime time.Duration

	// Maximum width or height of a raster input. Default: 32768.
	MaxImageDimension int

	// Maximum pixel count of a raster input. Default: 64 megapixels.
	MaxImagePixels int64
}

// DefaultLimits returns a Limits struct with safe default values.
func DefaultLimits() Limits {
	return Limits{
		MaxDecompressedSize: 100 * 1024 * 1024, // 100 MB
		MaxIndirectDepth:    100,
		MaxXRefDepth:        50,
		MaxNestingDepth:     64,
		MaxPageTreeDepth:    64,
		MaxArraySize:        100000,
		MaxDictSize:         10000,
		MaxStringLength:     10 * 1024 * 1024, // 10 MB
		MaxDecodeTime:       30 * time.Second,
		MaxImageDimension:   32768,
		MaxImagePixels:      64 * 1024 * 1024,
	}
}

// CheckImage reports ErrPixelBomb when a raster of the given size exceeds
// the configured bounds. Zero bounds are unlimited.
func (l Limits) CheckImage(width, height int) error {
	if width <= 0 || height <= 0 {
		return ErrEmptyImage
	}
	if l.MaxImageDimension > 0 && (width > l.MaxImageDimension || height > l.MaxImageDimension) {
		return ErrPixelBomb
	}
	if l.MaxImagePixels > 0 && int64(width)*int64(height) > l.MaxImagePixels {
		return ErrPixelBomb
	}
	return nil
}
