// Package decoder locates a KD-Code in an image and recovers its text.
//
// Decoding is a small state machine: preprocess the image, find anchor
// candidates, then for each candidate in rank order resolve the orientation,
// sample the cells and recover the payload. The first candidate to reach a
// verified payload wins; if none does, the best-ranked candidate's error is
// returned.
package decoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/harrylevesque/kdcode/internal/geometry"
	"github.com/harrylevesque/kdcode/internal/payload"
	"github.com/harrylevesque/kdcode/internal/symbol"
)

var (
	// ErrInvalidImage is returned by DecodeBytes for data no registered image
	// format can read.
	ErrInvalidImage = errors.New("decoder: unreadable image")

	// ErrImageTooLarge is returned, alongside ErrInvalidImage, for an image
	// whose header declares more pixels than the budget allows.
	ErrImageTooLarge = errors.New("decoder: image too large")
)

// Decode locates one symbol in img and returns its verified text. Failures
// are *Error values wrapping the symbol package's sentinels; a cancelled ctx
// returns ctx.Err() between stages.
func Decode(ctx context.Context, img image.Image, hint Hint) (*symbol.DecodedSymbol, error) {
	if err := hint.Validate(); err != nil {
		return nil, err
	}
	p := &pipeline{img: img, hint: hint, origin: img.Bounds().Min}
	return p.run(ctx)
}

// DecodeBytes decodes PNG, JPEG or GIF data and then the symbol in it.
func DecodeBytes(ctx context.Context, data []byte, hint Hint) (*symbol.DecodedSymbol, error) {
	if err := hint.Validate(); err != nil {
		return nil, err
	}
	img, err := ReadImage(data, hint.MaxPixels)
	if err != nil {
		return nil, err
	}
	return Decode(ctx, img, hint)
}

// ReadImage decodes PNG, JPEG or GIF data. The header is read first and an
// image declaring more than maxPixels pixels is rejected before any pixel
// buffer is allocated; maxPixels <= 0 means DefaultMaxPixels.
func ReadImage(data []byte, maxPixels int) (image.Image, error) {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty %dx%d image", ErrInvalidImage, cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, fmt.Errorf("%w: %w: %dx%d exceeds %d pixels",
			ErrInvalidImage, ErrImageTooLarge, cfg.Width, cfg.Height, maxPixels)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return img, nil
}

type transition func(*pipeline) (Stage, error)

var transitions = map[Stage]transition{
	StageLoaded:       (*pipeline).preprocess,
	StagePreprocessed: (*pipeline).locate,
	StageAnchorsFound: (*pipeline).orient,
	StageOriented:     (*pipeline).sample,
	StageSampled:      (*pipeline).readPayload,
}

type pipeline struct {
	img    image.Image
	hint   Hint
	origin image.Point
	stage  Stage

	ink    *inkMap
	factor float64 // working pixels per input pixel

	candidates []candidate
	next       int
	best       *Error

	// per candidate
	cur         candidate
	orientation orientation
	scale       float64
	bits        []byte
	conf        []float64
	result      *symbol.DecodedSymbol
}

func (p *pipeline) run(ctx context.Context) (*symbol.DecodedSymbol, error) {
	for p.stage != StageDecoded {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next, err := transitions[p.stage](p)
		if err == nil {
			p.stage = next
			continue
		}
		failure := &Error{Stage: p.stage, Err: err}
		if p.stage < StageAnchorsFound {
			return nil, failure
		}
		g := p.located(0)
		failure.Geometry = &g
		if p.best == nil {
			p.best = failure
		}
		if p.next >= len(p.candidates) {
			return nil, p.best
		}
		p.stage = StageAnchorsFound
	}
	return p.result, nil
}

func (p *pipeline) preprocess() (Stage, error) {
	ink, factor, err := preprocess(p.img, p.hint.MaxDimension)
	if err != nil {
		return p.stage, err
	}
	p.ink, p.factor = ink, factor
	return StagePreprocessed, nil
}

func (p *pipeline) locate() (Stage, error) {
	spec := p.hint.Spec
	segs := spec.SegmentsPerRing
	if segs == AutoSegments {
		segs = symbol.SupportedSegments[len(symbol.SupportedSegments)-1]
	}
	p.candidates = findAnchors(p.ink, anchorSearch{
		anchorRadius: float64(spec.AnchorRadius),
		ringWidth:    float64(spec.RingWidth),
		segments:     segs,
		rMin:         float64(p.hint.MinAnchorRadius) * p.factor,
		rMax:         float64(p.hint.MaxAnchorRadius) * p.factor,
	})
	if len(p.candidates) == 0 {
		return p.stage, fmt.Errorf("%w: no disc in radius range [%d, %d]",
			symbol.ErrNoAnchorDetected, p.hint.MinAnchorRadius, p.hint.MaxAnchorRadius)
	}
	return StageAnchorsFound, nil
}

func (p *pipeline) orient() (Stage, error) {
	p.cur = p.candidates[p.next]
	p.next++
	p.orientation = orientation{}
	p.scale = p.cur.r / float64(p.hint.Spec.AnchorRadius)

	o, err := resolveOrientation(p.ink, p.cur, p.layout(p.hint.Spec.SegmentsPerRing, 0), p.hint.Spec.SegmentsPerRing)
	if err != nil {
		return p.stage, err
	}
	p.orientation = o
	return StageOriented, nil
}

func (p *pipeline) sample() (Stage, error) {
	spec := p.hint.Spec
	segs := p.orientation.segments
	rings := min(spec.MaxRings, geometry.RingsFor(segs, spec.MaxChars))
	layout := p.layout(segs, rings)

	p.scale = refineScale(p.ink, p.cur.cx, p.cur.cy, p.scale, layout)
	tr := geometry.Transform{
		CenterX:  p.cur.cx,
		CenterY:  p.cur.cy,
		Scale:    p.scale,
		Rotation: p.orientation.rotation,
	}
	p.bits, p.conf = sampleCells(p.ink, tr, layout, p.cur.inkFg, p.cur.inkBg)
	return StageSampled, nil
}

func (p *pipeline) readPayload() (Stage, error) {
	spec := p.hint.Spec
	spec.SegmentsPerRing = p.orientation.segments
	res, err := payload.DecodePayload(p.bits, spec)
	if err != nil {
		return p.stage, err
	}
	rings := geometry.RingsFor(spec.SegmentsPerRing, len(res.Text))
	cells := min(rings*spec.SegmentsPerRing, len(p.conf))
	var sum float64
	for _, c := range p.conf[:cells] {
		sum += c
	}
	p.result = &symbol.DecodedSymbol{
		Text:       res.Text,
		Corrected:  res.Corrected,
		Confidence: sum / float64(max(cells, 1)),
		Geometry:   p.located(rings),
	}
	return StageDecoded, nil
}

func (p *pipeline) layout(segments, rings int) geometry.Layout {
	return geometry.Layout{
		Segments:     segments,
		Rings:        rings,
		AnchorRadius: float64(p.hint.Spec.AnchorRadius),
		RingWidth:    float64(p.hint.Spec.RingWidth),
	}
}

// located reports the current candidate in input-image pixels.
func (p *pipeline) located(rings int) symbol.Geometry {
	return symbol.Geometry{
		CenterX:      float64(p.origin.X) + p.cur.cx/p.factor,
		CenterY:      float64(p.origin.Y) + p.cur.cy/p.factor,
		AnchorRadius: p.cur.r / p.factor,
		Scale:        p.scale / p.factor,
		RotationDeg:  p.orientation.rotation * 360,
		Segments:     p.orientation.segments,
		Rings:        rings,
	}
}
