package camera

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"
	"strings"

	"golang.org/x/image/draw"

	"github.com/cjeanneret/SnapGo/internal/logic/geometry"
)

const defaultJPEGQuality = 92

// Encode scales, mirrors and encodes img, returning a data URI
// ("data:image/jpeg;base64,...").
func Encode(img image.Image, opts StillOptions) (string, error) {
	mime, data, err := EncodeBytes(img, opts)
	if err != nil {
		return "", err
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// EncodeBytes is Encode without the data URI wrapping. It returns the
// media type and the encoded image.
func EncodeBytes(img image.Image, opts StillOptions) (string, []byte, error) {
	if img == nil {
		return "", nil, ErrNoFrame
	}
	src := img.Bounds()
	size := geometry.Scale(geometry.Size{Width: src.Dx(), Height: src.Dy()}, opts.SizeFactor)

	dst := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	if size.Width == src.Dx() && size.Height == src.Dy() {
		draw.Draw(dst, dst.Bounds(), img, src.Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)
	}
	if opts.Mirror {
		mirror(dst)
	}

	var buf bytes.Buffer
	var mime string
	switch opts.Type {
	case PNG:
		mime = "image/png"
		if err := png.Encode(&buf, dst); err != nil {
			return "", nil, fmt.Errorf("encode png: %w", err)
		}
	case JPG, "":
		mime = "image/jpeg"
		if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality(opts.Compression)}); err != nil {
			return "", nil, fmt.Errorf("encode jpeg: %w", err)
		}
	default:
		return "", nil, fmt.Errorf("unsupported image type %q", opts.Type)
	}
	return mime, buf.Bytes(), nil
}

// DecodeDataURI splits a base64 data URI into its media type and payload.
func DecodeDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data URI")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data URI")
	}
	mime, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, fmt.Errorf("data URI is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data URI: %w", err)
	}
	return mime, data, nil
}

func jpegQuality(compression float64) int {
	if compression <= 0 || math.IsNaN(compression) {
		return defaultJPEGQuality
	}
	q := int(math.Round(compression * 100))
	if q < 1 {
		q = 1
	}
	if q > 100 {
		q = 100
	}
	return q
}

// mirror flips img horizontally in place.
func mirror(img *image.RGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X-1, y)+4]
		for l, r := 0, len(row)-4; l < r; l, r = l+4, r-4 {
			for k := 0; k < 4; k++ {
				row[l+k], row[r+k] = row[r+k], row[l+k]
			}
		}
	}
}
