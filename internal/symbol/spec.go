// Package symbol holds the immutable configuration shared by the KD-Code
// encoder and decoder, the error taxonomy, and the decode result type.
package symbol

import (
	"fmt"
	"image/color"
)

// Defaults for generating and scanning symbols.
const (
	DefaultSegmentsPerRing = 16
	DefaultAnchorRadius    = 10
	DefaultRingWidth       = 15
	DefaultScaleFactor     = 5
	DefaultMaxChars        = 128
	DefaultMaxRings        = 180

	DefaultMinAnchorRadius = 5
	DefaultMaxAnchorRadius = 100

	// MaxAllowedChars caps MaxChars so the frame length fits its header.
	MaxAllowedChars = 1024
	// MaxScaleFactor keeps rendered rasters within memory reason.
	MaxScaleFactor = 20
)

// SupportedSegments lists the accepted segments-per-ring values. Each divides
// a full turn into an exact power-of-two number of slots.
var SupportedSegments = []int{8, 16, 32}

// Spec is the configuration governing a symbol's geometry and capacity.
// It is passed by value; nothing in the codec mutates it.
type Spec struct {
	SegmentsPerRing int
	AnchorRadius    int // logical pixels
	RingWidth       int // logical pixels
	ScaleFactor     int // raster pixels per logical pixel
	MaxChars        int // UTF-8 bytes
	MaxRings        int

	Foreground color.NRGBA
	Background color.NRGBA // alpha 0 renders a transparent background
}

// DefaultSpec returns the stock black-on-white spec.
func DefaultSpec() Spec {
	return Spec{
		SegmentsPerRing: DefaultSegmentsPerRing,
		AnchorRadius:    DefaultAnchorRadius,
		RingWidth:       DefaultRingWidth,
		ScaleFactor:     DefaultScaleFactor,
		MaxChars:        DefaultMaxChars,
		MaxRings:        DefaultMaxRings,
		Foreground:      color.NRGBA{A: 0xff},
		Background:      color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff},
	}
}

// IsSupportedSegments reports whether n is an accepted segment count.
func IsSupportedSegments(n int) bool {
	for _, s := range SupportedSegments {
		if s == n {
			return true
		}
	}
	return false
}

// Validate checks the field-level invariants. Capacity checks that need the
// payload frame size live in the geometry package.
func (s Spec) Validate() error {
	if err := s.ValidateGeometry(); err != nil {
		return err
	}
	if s.Foreground == s.Background {
		return fmt.Errorf("%w: foreground and background colors are identical", ErrInvalidSpec)
	}
	return nil
}

// ValidateGeometry checks every field except the colors, which only matter
// when rendering.
func (s Spec) ValidateGeometry() error {
	if !IsSupportedSegments(s.SegmentsPerRing) {
		return fmt.Errorf("%w: %d (want one of %v)", ErrUnsupportedSpec, s.SegmentsPerRing, SupportedSegments)
	}
	switch {
	case s.AnchorRadius <= 0:
		return fmt.Errorf("%w: anchor radius must be positive, got %d", ErrInvalidSpec, s.AnchorRadius)
	case s.RingWidth <= 0:
		return fmt.Errorf("%w: ring width must be positive, got %d", ErrInvalidSpec, s.RingWidth)
	case s.ScaleFactor <= 0 || s.ScaleFactor > MaxScaleFactor:
		return fmt.Errorf("%w: scale factor must be in [1,%d], got %d", ErrInvalidSpec, MaxScaleFactor, s.ScaleFactor)
	case s.MaxChars < 0 || s.MaxChars > MaxAllowedChars:
		return fmt.Errorf("%w: max chars must be in [0,%d], got %d", ErrInvalidSpec, MaxAllowedChars, s.MaxChars)
	case s.MaxRings <= 0:
		return fmt.Errorf("%w: max rings must be positive, got %d", ErrInvalidSpec, s.MaxRings)
	}
	return nil
}
