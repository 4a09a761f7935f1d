package decoder

import (
	"math"

	"github.com/harrylevesque/kdcode/internal/geometry"
)

const (
	combAngles = 256
	combStep   = 0.5  // pixels between gradient samples
	combSpan   = 0.03 // relative scale search range
	combSteps  = 150
)

// refineScale sharpens the anchor-derived scale s0 by fitting the ring
// boundaries, which sit at RingInner(j) for every j, to the radial ink
// gradient averaged over all angles. The anchor alone is too small to pin the
// scale of the outer rings.
func refineScale(m *inkMap, cx, cy, s0 float64, layout geometry.Layout) float64 {
	rhoMax := layout.RingInner(layout.Rings) * s0 * (1 + combSpan)
	far := 0.0
	for _, p := range [][2]float64{{0, 0}, {float64(m.w), 0}, {0, float64(m.h)}, {float64(m.w), float64(m.h)}} {
		far = math.Max(far, math.Hypot(p[0]-cx, p[1]-cy))
	}
	rhoMax = math.Min(rhoMax, far)

	var cos, sin [combAngles]float64
	for k := range cos {
		sin[k], cos[k] = math.Sincos(2 * math.Pi * float64(k) / combAngles)
	}
	grad := make([]float64, int(rhoMax/combStep)+2)
	for i := 1; i < len(grad); i++ {
		rho := float64(i) * combStep
		var sum float64
		for k := range cos {
			in := m.sample(cx+(rho-0.5)*cos[k], cy+(rho-0.5)*sin[k])
			out := m.sample(cx+(rho+0.5)*cos[k], cy+(rho+0.5)*sin[k])
			sum += math.Abs(float64(in - out))
		}
		grad[i] = sum / combAngles
	}

	comb := func(s float64) float64 {
		var score float64
		for j := 0; j <= layout.Rings; j++ {
			pos := layout.RingInner(j) * s / combStep
			i := int(pos)
			if i+1 >= len(grad) {
				break
			}
			f := pos - float64(i)
			score += grad[i]*(1-f) + grad[i+1]*f
		}
		return score
	}

	best, bestScore := s0, comb(s0)
	for k := -combSteps; k <= combSteps; k++ {
		s := s0 * (1 + combSpan*float64(k)/combSteps)
		if v := comb(s); v > bestScore {
			best, bestScore = s, v
		}
	}
	return best
}

// sampleCells reads every cell of layout through tr. Each cell is the mean of
// a 3x3 polar patch around its centre, thresholded against its ring/slot
// neighbourhood when that has enough contrast and against the anchor/gap
// midpoint otherwise. conf holds each cell's margin in [0,1].
func sampleCells(m *inkMap, tr geometry.Transform, layout geometry.Layout, inkFg, inkBg float64) (bits []byte, conf []float64) {
	segs := layout.Segments
	values := make([]float64, layout.Slots())
	for j := 0; j < layout.Rings; j++ {
		for i := 0; i < segs; i++ {
			var sum float64
			for _, dr := range [3]float64{-0.25, 0, 0.25} {
				rho := layout.RingCenter(j) + dr*layout.RingWidth
				for _, dt := range [3]float64{-0.25, 0, 0.25} {
					x, y := tr.Point(rho, layout.SlotCenter(i)+dt/float64(segs))
					sum += float64(m.sample(x, y))
				}
			}
			values[j*segs+i] = sum / 9
		}
	}

	global := math.Max(inkFg-inkBg, 0.1)
	mid := (inkFg + inkBg) / 2
	bits = make([]byte, len(values))
	conf = make([]float64, len(values))
	for j := 0; j < layout.Rings; j++ {
		for i := 0; i < segs; i++ {
			lo, hi := math.Inf(1), math.Inf(-1)
			for dj := -1; dj <= 1; dj++ {
				rj := j + dj
				if rj < 0 || rj >= layout.Rings {
					continue
				}
				for di := -1; di <= 1; di++ {
					v := values[rj*segs+(i+di+segs)%segs]
					lo, hi = math.Min(lo, v), math.Max(hi, v)
				}
			}
			thr := mid
			if hi-lo >= 0.5*global {
				thr = (lo + hi) / 2
			}
			v := values[j*segs+i]
			if v > thr {
				bits[j*segs+i] = 1
			}
			conf[j*segs+i] = math.Min(1, 2*math.Abs(v-thr)/global)
		}
	}
	return bits, conf
}
