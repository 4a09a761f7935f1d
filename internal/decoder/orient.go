package decoder

import (
	"fmt"
	"math"

	"github.com/harrylevesque/kdcode/internal/geometry"
	"github.com/harrylevesque/kdcode/internal/symbol"
)

const (
	profileSteps    = 720
	minTickContrast = 0.3
)

// orientation is the resolved rotation and segment count of one candidate.
type orientation struct {
	rotation float64 // turns
	segments int
}

// resolveOrientation reads the angular ink profile of the tick band and
// expects exactly one tick run. segments may be AutoSegments, in which case
// the run's width picks the nearest supported count.
func resolveOrientation(m *inkMap, c candidate, layout geometry.Layout, segments int) (orientation, error) {
	tr := geometry.Transform{CenterX: c.cx, CenterY: c.cy, Scale: c.r / layout.AnchorRadius}
	band := []float64{
		layout.AnchorRadius + layout.RingWidth*0.375,
		layout.AnchorRadius + layout.RingWidth*0.5,
		layout.AnchorRadius + layout.RingWidth*0.625,
	}

	var profile [profileSteps]float64
	lo, hi := math.Inf(1), math.Inf(-1)
	for k := range profile {
		turn := float64(k) / profileSteps
		var v float64
		for _, rho := range band {
			x, y := tr.Point(rho, turn)
			v += float64(m.sample(x, y))
		}
		v /= float64(len(band))
		profile[k] = v
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	if hi-lo < minTickContrast {
		return orientation{}, fmt.Errorf("%w: no tick in the tick band", symbol.ErrOrientationAmbiguous)
	}
	thr := (lo + hi) / 2

	// Start the circular scan at a background step so no run is split.
	origin := -1
	for k, v := range profile {
		if v < thr {
			origin = k
			break
		}
	}
	if origin < 0 {
		return orientation{}, fmt.Errorf("%w: tick band is solid", symbol.ErrOrientationAmbiguous)
	}
	runs, runStart, runLen := 0, 0, 0
	for i, cur := 0, 0; i <= profileSteps; i++ {
		k := (origin + i) % profileSteps
		if i < profileSteps && profile[k] >= thr {
			if cur == 0 {
				runStart = origin + i
			}
			cur++
			continue
		}
		if cur > 0 {
			runs++
			runLen = cur
			cur = 0
		}
	}
	if runs != 1 {
		return orientation{}, fmt.Errorf("%w: %d tick candidates", symbol.ErrOrientationAmbiguous, runs)
	}

	width := float64(runLen) / profileSteps // turns
	if segments == AutoSegments {
		segments = nearestSegments(width)
	}
	expected := 1 / float64(segments)
	if width < 0.5*expected || width > 1.6*expected {
		return orientation{}, fmt.Errorf("%w: tick spans %.3f turns, want about %.3f",
			symbol.ErrOrientationAmbiguous, width, expected)
	}
	center := (float64(runStart) + float64(runLen-1)/2) / profileSteps
	return orientation{rotation: geometry.WrapTurn(center), segments: segments}, nil
}

func nearestSegments(width float64) int {
	best, bestDist := symbol.SupportedSegments[0], math.Inf(1)
	for _, s := range symbol.SupportedSegments {
		if d := math.Abs(math.Log(width * float64(s))); d < bestDist {
			best, bestDist = s, d
		}
	}
	return best
}
