package geometry

import "math"

// Transform places a layout in image space.
type Transform struct {
	CenterX, CenterY float64
	Scale            float64 // image pixels per logical pixel
	Rotation         float64 // turns, clockwise, of logical angle 0 from image up
}

// Point maps a logical radius and angle (in turns) to image coordinates.
func (t Transform) Point(radius, turn float64) (x, y float64) {
	theta := 2*math.Pi*(turn+t.Rotation) - math.Pi/2
	r := radius * t.Scale
	return t.CenterX + r*math.Cos(theta), t.CenterY + r*math.Sin(theta)
}

// Logical maps image coordinates back to the logical offset from the centre,
// undoing rotation and scale.
func (t Transform) Logical(x, y float64) (dx, dy float64) {
	ux, uy := (x-t.CenterX)/t.Scale, (y-t.CenterY)/t.Scale
	s, c := math.Sincos(-2 * math.Pi * t.Rotation)
	return ux*c - uy*s, ux*s + uy*c
}
