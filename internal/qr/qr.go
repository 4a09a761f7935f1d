// Package qr renders plain QR codes for clients that cannot read KD-Codes.
package qr

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/harrylevesque/kdcode/internal/encoder"
)

const (
	// MaxText is the largest text accepted, the alphanumeric capacity of a
	// version 40 symbol at the lowest correction level.
	MaxText = 2953

	DefaultBoxSize = 10
	DefaultBorder  = 4
	MaxBoxSize     = 50
	MaxBorder      = 20
)

var (
	ErrIncompatible   = errors.New("qr: text cannot be carried by a QR code")
	ErrInvalidOptions = errors.New("qr: invalid options")
)

// Options size the rendered code. BoxSize is pixels per module and Border is
// the quiet zone in modules.
type Options struct {
	BoxSize int
	Border  int
	MaxSide int // largest raster side allowed; 0 for no limit
}

func DefaultOptions() Options {
	return Options{BoxSize: DefaultBoxSize, Border: DefaultBorder}
}

// Compatible reports whether text fits in a QR code.
func Compatible(text string) bool {
	return text != "" && len(text) <= MaxText
}

// Encode renders text as a black-on-white PNG at low error correction.
func Encode(text string, o Options) ([]byte, error) {
	if !Compatible(text) {
		return nil, fmt.Errorf("%w: length %d not in 1..%d", ErrIncompatible, len(text), MaxText)
	}
	if o.BoxSize < 1 || o.BoxSize > MaxBoxSize || o.Border < 0 || o.Border > MaxBorder {
		return nil, fmt.Errorf("%w: box_size must be 1..%d and border 0..%d", ErrInvalidOptions, MaxBoxSize, MaxBorder)
	}

	hints := map[gozxing.EncodeHintType]interface{}{
		gozxing.EncodeHintType_MARGIN: o.Border,
	}
	w := qrcode.NewQRCodeWriter()
	// A zero size yields one pixel per module, which gives the module count.
	unit, err := w.Encode(text, gozxing.BarcodeFormat_QR_CODE, 0, 0, hints)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIncompatible, err)
	}
	side := unit.GetWidth() * o.BoxSize
	if o.MaxSide > 0 && side > o.MaxSide {
		return nil, fmt.Errorf("%w: %dpx exceeds %dpx", encoder.ErrRasterTooLarge, side, o.MaxSide)
	}
	bm, err := w.Encode(text, gozxing.BarcodeFormat_QR_CODE, side, side, hints)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIncompatible, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, bm); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
