// Package encoder renders text into a KD-Code raster.
package encoder

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/harrylevesque/kdcode/internal/geometry"
	"github.com/harrylevesque/kdcode/internal/payload"
	"github.com/harrylevesque/kdcode/internal/symbol"
)

// ErrRasterTooLarge is returned by CheckSide for rasters over the caller's limit.
var ErrRasterTooLarge = errors.New("encoder: raster exceeds the size limit")

// Encode renders text under spec. Failures come only from the payload codec
// and the geometric model.
func Encode(text string, spec symbol.Spec) (*image.NRGBA, error) {
	layout, err := geometry.BuildLayout(spec, len(text))
	if err != nil {
		return nil, err
	}
	bits, err := payload.EncodePayload(text, spec)
	if err != nil {
		return nil, err
	}
	return Render(bits, layout, spec), nil
}

// Render paints bits onto layout; missing trailing bits are painted as 0 and
// bits beyond the layout's slots are ignored.
func Render(bits []byte, layout geometry.Layout, spec symbol.Spec) *image.NRGBA {
	scale := float64(spec.ScaleFactor)
	side := RasterSide(layout, spec)
	img := image.NewNRGBA(image.Rect(0, 0, side, side))
	center := float64(side) / 2

	fg, bg := spec.Foreground, spec.Background
	for py := 0; py < side; py++ {
		dy := (float64(py) + 0.5 - center) / scale
		row := img.Pix[py*img.Stride : py*img.Stride+side*4]
		for px := 0; px < side; px++ {
			dx := (float64(px) + 0.5 - center) / scale
			c := bg
			switch region, ring, slot := layout.Locate(dx, dy); region {
			case geometry.Anchor, geometry.Tick:
				c = fg
			case geometry.Cell:
				if i := ring*layout.Segments + slot; i < len(bits) && bits[i] != 0 {
					c = fg
				}
			}
			row[px*4+0] = c.R
			row[px*4+1] = c.G
			row[px*4+2] = c.B
			row[px*4+3] = c.A
		}
	}
	return img
}

// RasterSide returns the square raster's side length in pixels.
func RasterSide(layout geometry.Layout, spec symbol.Spec) int {
	return 2 * int(math.Ceil(layout.ExtentRadius()*float64(spec.ScaleFactor)))
}

// EncodePNG renders text and serializes it losslessly.
func EncodePNG(text string, spec symbol.Spec) ([]byte, error) {
	img, err := Encode(text, spec)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeJPEG renders text as a JPEG of the given quality (1-100). JPEG has no
// alpha channel, so a transparent background is flattened onto white.
func EncodeJPEG(text string, spec symbol.Spec, quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("%w: jpeg quality must be in [1,100], got %d", symbol.ErrInvalidSpec, quality)
	}
	img, err := Encode(text, spec)
	if err != nil {
		return nil, err
	}
	flat := image.NewRGBA(img.Bounds())
	draw.Draw(flat, flat.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(flat, flat.Bounds(), img, image.Point{}, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Measure returns the raster side for a text of textLen bytes without
// rendering it.
func Measure(textLen int, spec symbol.Spec) (int, error) {
	layout, err := geometry.BuildLayout(spec, textLen)
	if err != nil {
		return 0, err
	}
	return RasterSide(layout, spec), nil
}

// CheckSide fails with ErrRasterTooLarge when the raster for a text of
// textLen bytes would be wider than maxSide pixels. maxSide <= 0 disables the
// check.
func CheckSide(textLen int, spec symbol.Spec, maxSide int) error {
	side, err := Measure(textLen, spec)
	if err != nil {
		return err
	}
	if maxSide > 0 && side > maxSide {
		return fmt.Errorf("%w: %d px, limit %d", ErrRasterTooLarge, side, maxSide)
	}
	return nil
}

// EncodeImage renders text as PNG, or as JPEG when 0 < quality < 100, and
// returns the bytes with their MIME type.
func EncodeImage(text string, spec symbol.Spec, quality int) ([]byte, string, error) {
	if quality == 0 || quality == 100 {
		data, err := EncodePNG(text, spec)
		return data, "image/png", err
	}
	data, err := EncodeJPEG(text, spec, quality)
	return data, "image/jpeg", err
}
