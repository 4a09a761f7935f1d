package decoder

import (
	"fmt"

	"github.com/harrylevesque/kdcode/internal/symbol"
)

// AutoSegments asks the decoder to infer segments per ring from the
// orientation tick's width.
const AutoSegments = 0

// DefaultMaxDimension bounds the working image; larger inputs are downscaled.
const DefaultMaxDimension = 1024

// DefaultMaxPixels bounds the encoded images ReadImage will decode.
const DefaultMaxPixels = 40_000_000

// Hint carries what the decoder is told about the symbol it looks for.
type Hint struct {
	// Spec supplies the logical geometry (anchor radius, ring width) and
	// MaxChars. Spec.SegmentsPerRing may be AutoSegments.
	Spec symbol.Spec

	// Anchor radius search range, in pixels of the input image.
	MinAnchorRadius int
	MaxAnchorRadius int

	// MaxDimension caps the working image's longer side; 0 disables downscaling.
	MaxDimension int

	// MaxPixels caps the width*height of encoded input DecodeBytes accepts;
	// 0 means DefaultMaxPixels.
	MaxPixels int
}

// DefaultHint returns the stock scanning parameters.
func DefaultHint() Hint {
	return Hint{
		Spec:            symbol.DefaultSpec(),
		MinAnchorRadius: symbol.DefaultMinAnchorRadius,
		MaxAnchorRadius: symbol.DefaultMaxAnchorRadius,
		MaxDimension:    DefaultMaxDimension,
		MaxPixels:       DefaultMaxPixels,
	}
}

// Validate checks the hint. The spec's colors are not used by the decoder
// and are not checked.
func (h Hint) Validate() error {
	spec := h.Spec
	if spec.SegmentsPerRing == AutoSegments {
		spec.SegmentsPerRing = symbol.DefaultSegmentsPerRing
	}
	if err := spec.ValidateGeometry(); err != nil {
		return err
	}
	switch {
	case h.MinAnchorRadius <= 0:
		return fmt.Errorf("%w: min anchor radius must be positive, got %d", symbol.ErrInvalidSpec, h.MinAnchorRadius)
	case h.MaxAnchorRadius <= h.MinAnchorRadius:
		return fmt.Errorf("%w: max anchor radius %d must exceed min anchor radius %d",
			symbol.ErrInvalidSpec, h.MaxAnchorRadius, h.MinAnchorRadius)
	case h.MaxDimension < 0:
		return fmt.Errorf("%w: max dimension must not be negative", symbol.ErrInvalidSpec)
	case h.MaxPixels < 0:
		return fmt.Errorf("%w: max pixels must not be negative", symbol.ErrInvalidSpec)
	}
	return nil
}
