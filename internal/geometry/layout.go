// Package geometry derives the ring, slot and anchor layout of a KD-Code from
// its spec, and maps logical polar coordinates to and from image space.
//
// All radii are in logical pixels. With A the anchor radius and W the ring
// width:
//
//	[0, A)            anchor disc (foreground)
//	[A, A+W/4)        quiet gap
//	[A+W/4, A+3W/4)   tick band: one foreground tick, one slot wide, centred on angle 0
//	[A+3W/4, A+W)     quiet gap
//	[A+W(j+1), A+W(j+2))  data ring j
//	one ring width of quiet zone outside the last ring
//
// Angles are fractions of a turn measured clockwise from the orientation
// tick; slot i spans [i/S, (i+1)/S).
package geometry

import (
	"fmt"
	"math"

	"github.com/harrylevesque/kdcode/internal/payload"
	"github.com/harrylevesque/kdcode/internal/symbol"
)

// Layout is the read-only ring geometry of one symbol.
type Layout struct {
	Segments     int
	Rings        int
	AnchorRadius float64
	RingWidth    float64
}

// RingsFor returns the minimal ring count whose slots hold a frame for a text
// of n bytes.
func RingsFor(segments, n int) int {
	bits := payload.FrameBits(n)
	return (bits + segments - 1) / segments
}

// CheckCapacity reports whether spec can represent MaxChars at all.
func CheckCapacity(spec symbol.Spec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	rings := RingsFor(spec.SegmentsPerRing, spec.MaxChars)
	if rings > spec.MaxRings {
		return fmt.Errorf("%w: %d chars need %d rings of %d segments, max rings is %d",
			symbol.ErrSpecTooSmall, spec.MaxChars, rings, spec.SegmentsPerRing, spec.MaxRings)
	}
	if spec.AnchorRadius >= spec.RingWidth*rings {
		return fmt.Errorf("%w: anchor radius %d overlaps %d rings of width %d",
			symbol.ErrSpecTooSmall, spec.AnchorRadius, rings, spec.RingWidth)
	}
	return nil
}

// BuildLayout returns the layout for a text of textLen bytes under spec.
func BuildLayout(spec symbol.Spec, textLen int) (Layout, error) {
	if err := CheckCapacity(spec); err != nil {
		return Layout{}, err
	}
	if textLen > spec.MaxChars {
		return Layout{}, fmt.Errorf("%w: %d bytes, limit %d", symbol.ErrTextTooLong, textLen, spec.MaxChars)
	}
	return Layout{
		Segments:     spec.SegmentsPerRing,
		Rings:        RingsFor(spec.SegmentsPerRing, textLen),
		AnchorRadius: float64(spec.AnchorRadius),
		RingWidth:    float64(spec.RingWidth),
	}, nil
}

// Slots returns the number of bit slots.
func (l Layout) Slots() int { return l.Rings * l.Segments }

// SlotStart returns the start of slot i as a fraction of a turn. It is
// computed from the index, never accumulated.
func (l Layout) SlotStart(i int) float64 {
	return float64(i) / float64(l.Segments)
}

// SlotCenter returns the angular centre of slot i as a fraction of a turn.
func (l Layout) SlotCenter(i int) float64 {
	return float64(2*i+1) / float64(2*l.Segments)
}

// TickInner and TickOuter bound the tick band.
func (l Layout) TickInner() float64 { return l.AnchorRadius + l.RingWidth/4 }
func (l Layout) TickOuter() float64 { return l.AnchorRadius + 3*l.RingWidth/4 }

// RingInner returns the inner radius of data ring j.
func (l Layout) RingInner(j int) float64 {
	return l.AnchorRadius + l.RingWidth*float64(j+1)
}

// RingCenter returns the mid radius of data ring j.
func (l Layout) RingCenter(j int) float64 {
	return l.AnchorRadius + l.RingWidth*(float64(j)+1.5)
}

// OuterRadius is the outer edge of the last data ring.
func (l Layout) OuterRadius() float64 { return l.RingInner(l.Rings) }

// ExtentRadius includes the quiet zone.
func (l Layout) ExtentRadius() float64 { return l.OuterRadius() + l.RingWidth }

// Region classifies a logical point.
type Region int

const (
	Background Region = iota
	Anchor
	Tick
	Cell
)

// Locate classifies the logical offset (dx, dy) from the symbol centre, with
// y growing downward. For Cell it also returns the ring and slot.
func (l Layout) Locate(dx, dy float64) (region Region, ring, slot int) {
	r := math.Hypot(dx, dy)
	if r < l.AnchorRadius {
		return Anchor, 0, 0
	}
	turn := Turn(dx, dy)
	if r >= l.TickInner() && r < l.TickOuter() {
		half := 0.5 / float64(l.Segments)
		if turn < half || turn >= 1-half {
			return Tick, 0, 0
		}
		return Background, 0, 0
	}
	if r < l.RingInner(0) || r >= l.OuterRadius() {
		return Background, 0, 0
	}
	ring = int((r - l.RingInner(0)) / l.RingWidth)
	if ring >= l.Rings {
		ring = l.Rings - 1
	}
	slot = int(turn * float64(l.Segments))
	if slot >= l.Segments {
		slot = l.Segments - 1
	}
	return Cell, ring, slot
}

// Turn returns the clockwise angle of (dx, dy) from straight up, as a
// fraction of a turn in [0, 1). y grows downward.
func Turn(dx, dy float64) float64 {
	t := math.Atan2(dx, -dy) / (2 * math.Pi)
	return WrapTurn(t)
}

// WrapTurn reduces t modulo one turn into [0, 1).
func WrapTurn(t float64) float64 {
	t -= math.Floor(t)
	if t >= 1 {
		t = 0
	}
	return t
}
