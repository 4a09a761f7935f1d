package symbol

// Geometry describes where a symbol was found in an image. Coordinates and
// radii are in pixels of the image handed to the decoder.
type Geometry struct {
	CenterX, CenterY float64
	AnchorRadius     float64
	Scale            float64 // image pixels per logical pixel
	RotationDeg      float64 // clockwise rotation of logical angle 0 from the image's up direction
	Segments         int
	Rings            int
}

// DecodedSymbol is the result of one successful decode.
type DecodedSymbol struct {
	Text       string
	Corrected  int     // byte symbols repaired by error correction
	Confidence float64 // mean sampling margin in [0,1]
	Geometry   Geometry
}
