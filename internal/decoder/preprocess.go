package decoder

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"

	"github.com/harrylevesque/kdcode/internal/symbol"
)

// inkMap is the working image: 1 is foreground ink, 0 is background,
// whatever the symbol's colors or polarity were.
type inkMap struct {
	w, h int
	pix  []float32
}

func (m *inkMap) at(x, y int) float32 {
	if x < 0 || y < 0 || x >= m.w || y >= m.h {
		return 0
	}
	return m.pix[y*m.w+x]
}

// sample interpolates bilinearly at continuous coordinates, where pixel
// (i, j) covers [i, i+1) x [j, j+1). Outside the image reads as background.
func (m *inkMap) sample(x, y float64) float32 {
	fx, fy := x-0.5, y-0.5
	x0, y0 := int(math.Floor(fx)), int(math.Floor(fy))
	ax, ay := float32(fx-float64(x0)), float32(fy-float64(y0))
	top := m.at(x0, y0)*(1-ax) + m.at(x0+1, y0)*ax
	bot := m.at(x0, y0+1)*(1-ax) + m.at(x0+1, y0+1)*ax
	return top*(1-ay) + bot*ay
}

const (
	stretchLow  = 0.005
	stretchHigh = 0.995
	minContrast = 0.1
)

// preprocess flattens img onto white, optionally downscales it so the longer
// side is at most maxDim, then normalizes contrast and polarity. factor is the
// working/input pixel ratio.
func preprocess(img image.Image, maxDim int) (m *inkMap, factor float64, err error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, 0, fmt.Errorf("%w: empty image", symbol.ErrNoAnchorDetected)
	}

	factor = 1
	nw, nh := w, h
	if long := max(w, h); maxDim > 0 && long > maxDim {
		factor = float64(maxDim) / float64(long)
		nw = max(1, int(math.Round(float64(w)*factor)))
		nh = max(1, int(math.Round(float64(h)*factor)))
	}

	canvas := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if factor < 1 {
		xdraw.BiLinear.Scale(canvas, canvas.Bounds(), img, b, xdraw.Over, nil)
	} else {
		draw.Draw(canvas, canvas.Bounds(), img, b.Min, draw.Over)
	}

	lum := make([]float32, nw*nh)
	var hist [256]int
	for y := 0; y < nh; y++ {
		row := canvas.Pix[y*canvas.Stride:]
		for x := 0; x < nw; x++ {
			r, g, bl := row[x*4], row[x*4+1], row[x*4+2]
			l := (0.299*float32(r) + 0.587*float32(g) + 0.114*float32(bl)) / 255
			lum[y*nw+x] = l
			hist[int(l*255+0.5)]++
		}
	}

	lo, hi := percentile(hist[:], len(lum), stretchLow), percentile(hist[:], len(lum), stretchHigh)
	if hi-lo < minContrast {
		return nil, 0, fmt.Errorf("%w: image has no contrast", symbol.ErrNoAnchorDetected)
	}
	span := hi - lo
	for i, l := range lum {
		lum[i] = clamp01((l - lo) / span)
	}

	// The quiet zone makes the image border background.
	if borderMean(lum, nw, nh) >= 0.5 {
		for i, l := range lum {
			lum[i] = 1 - l
		}
	}
	return &inkMap{w: nw, h: nh, pix: lum}, factor, nil
}

func percentile(hist []int, total int, p float64) float32 {
	target := int(p * float64(total))
	acc := 0
	for v, n := range hist {
		acc += n
		if acc > target {
			return float32(v) / 255
		}
	}
	return 1
}

func borderMean(pix []float32, w, h int) float32 {
	var sum float32
	n := 0
	for x := 0; x < w; x++ {
		sum += pix[x] + pix[(h-1)*w+x]
		n += 2
	}
	for y := 1; y < h-1; y++ {
		sum += pix[y*w] + pix[y*w+w-1]
		n += 2
	}
	return sum / float32(n)
}

func clamp01(v float32) float32 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
