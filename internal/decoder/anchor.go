package decoder

import (
	"math"
	"sort"
)

// candidate is a possible anchor disc, in working-image pixels.
type candidate struct {
	cx, cy, r float64
	score     float64 // signature strength in [0,1]
	contrast  float64 // anchor ink minus gap ink
	inkFg     float64 // mean ink inside the disc
	inkBg     float64 // mean ink in the gap around it
}

const (
	inkThreshold  = 0.5
	minScore      = 0.5
	maxCandidates = 8

	// radiusTolerance (working pixels) absorbs edge quantization so a disc
	// rendered at exactly the range limit still qualifies.
	radiusTolerance = 0.5
)

type component struct {
	area                   int
	sumX, sumY             float64
	minX, minY, maxX, maxY int
}

// anchorSearch holds the logical proportions a candidate must match.
type anchorSearch struct {
	anchorRadius float64 // logical A
	ringWidth    float64 // logical W
	segments     int     // largest segment count that may be present
	rMin, rMax   float64 // working-image pixels
}

// findAnchors labels 8-connected ink components, keeps the disc-shaped ones
// whose surroundings look like an anchor, and returns them best first.
func findAnchors(m *inkMap, as anchorSearch) []candidate {
	labels := make([]int32, m.w*m.h)
	var comps []component
	var stack []int32

	for start := range labels {
		if labels[start] != 0 || m.pix[start] < inkThreshold {
			continue
		}
		id := int32(len(comps) + 1)
		c := component{minX: m.w, minY: m.h, maxX: -1, maxY: -1}
		labels[start] = id
		stack = append(stack[:0], int32(start))
		for len(stack) > 0 {
			p := int(stack[len(stack)-1])
			stack = stack[:len(stack)-1]
			x, y := p%m.w, p/m.w
			c.area++
			c.sumX += float64(x) + 0.5
			c.sumY += float64(y) + 0.5
			c.minX, c.maxX = min(c.minX, x), max(c.maxX, x)
			c.minY, c.maxY = min(c.minY, y), max(c.maxY, y)
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= m.w || ny >= m.h {
						continue
					}
					q := ny*m.w + nx
					if labels[q] == 0 && m.pix[q] >= inkThreshold {
						labels[q] = id
						stack = append(stack, int32(q))
					}
				}
			}
		}
		comps = append(comps, c)
	}

	var out []candidate
	for i, c := range comps {
		cand, ok := as.evaluate(m, labels, int32(i+1), c)
		if ok {
			out = append(out, cand)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].contrast > out[j].contrast
	})
	if len(out) > maxCandidates {
		out = out[:maxCandidates]
	}
	return out
}

func (as anchorSearch) evaluate(m *inkMap, labels []int32, id int32, c component) (candidate, bool) {
	areaR := math.Sqrt(float64(c.area) / math.Pi)
	if areaR < as.rMin*0.8 || areaR > as.rMax*1.2 {
		return candidate{}, false
	}
	bw, bh := float64(c.maxX-c.minX+1), float64(c.maxY-c.minY+1)
	if math.Abs(bw-2*areaR) > 0.25*areaR+2 || math.Abs(bh-2*areaR) > 0.25*areaR+2 {
		return candidate{}, false
	}
	cx, cy := c.sumX/float64(c.area), c.sumY/float64(c.area)

	// Boundary distances from the centroid: a disc's are nearly constant,
	// a square cell's or a tick sector's are not.
	var sum, sumSq float64
	n := 0
	for y := c.minY; y <= c.maxY; y++ {
		for x := c.minX; x <= c.maxX; x++ {
			if labels[y*m.w+x] != id || !isBoundary(labels, m.w, m.h, x, y, id) {
				continue
			}
			d := math.Hypot(float64(x)+0.5-cx, float64(y)+0.5-cy)
			sum += d
			sumSq += d * d
			n++
		}
	}
	if n == 0 {
		return candidate{}, false
	}
	mean := sum / float64(n)
	cv := math.Sqrt(math.Max(0, sumSq/float64(n)-mean*mean)) / mean
	if cv > 0.04+0.25/areaR {
		return candidate{}, false
	}
	if math.Abs(mean+0.5-areaR) > 0.15*areaR+1 {
		return candidate{}, false
	}

	r := edgeRadius(m, cx, cy, areaR)
	if r < as.rMin-radiusTolerance || r > as.rMax+radiusTolerance {
		return candidate{}, false
	}

	// Reject magnifications whose rings or segments would be sub-pixel.
	// Non-integer widths are accepted: a photographed symbol is almost never
	// at an integer magnification, and sampling reads cell centres.
	s := r / as.anchorRadius
	arc := 2 * math.Pi * (as.anchorRadius + as.ringWidth) * s / float64(as.segments)
	if as.ringWidth/4*s < 1 || arc < 1 {
		return candidate{}, false
	}

	inside := ringMean(m, cx, cy, []float64{0, 0.25 * r, 0.5 * r, 0.7 * r}, 16)
	gap := as.ringWidth / 4 * s
	outside := ringMean(m, cx, cy, []float64{r + 0.4*gap, r + 0.6*gap}, 48)
	contrast := inside - outside
	score := math.Max(0, contrast) * (1 - cv)
	if score < minScore {
		return candidate{}, false
	}
	return candidate{cx: cx, cy: cy, r: r, score: score, contrast: contrast, inkFg: inside, inkBg: outside}, true
}

func isBoundary(labels []int32, w, h, x, y int, id int32) bool {
	if x == 0 || y == 0 || x == w-1 || y == h-1 {
		return true
	}
	p := y*w + x
	return labels[p-1] != id || labels[p+1] != id || labels[p-w] != id || labels[p+w] != id
}

// edgeRadius refines a disc's radius to sub-pixel precision from where rays
// out of the centre cross the ink threshold. It returns the median crossing.
func edgeRadius(m *inkMap, cx, cy, r float64) float64 {
	const rays = 64
	const step = 0.25
	var crossings []float64
	for k := 0; k < rays; k++ {
		theta := 2 * math.Pi * float64(k) / rays
		cos, sin := math.Cos(theta), math.Sin(theta)
		prev := float64(m.sample(cx+0.5*r*cos, cy+0.5*r*sin))
		for rho := 0.5*r + step; rho <= 1.5*r+2; rho += step {
			v := float64(m.sample(cx+rho*cos, cy+rho*sin))
			if prev >= inkThreshold && v < inkThreshold {
				crossings = append(crossings, rho-step*(inkThreshold-v)/(prev-v))
				break
			}
			prev = v
		}
	}
	if len(crossings) < rays/2 {
		return r
	}
	sort.Float64s(crossings)
	return crossings[len(crossings)/2]
}

// ringMean averages ink over circles of the given radii.
func ringMean(m *inkMap, cx, cy float64, radii []float64, perRing int) float64 {
	var sum float64
	n := 0
	for _, rho := range radii {
		count := perRing
		if rho == 0 {
			count = 1
		}
		for k := 0; k < count; k++ {
			theta := 2 * math.Pi * float64(k) / float64(count)
			sum += float64(m.sample(cx+rho*math.Cos(theta), cy+rho*math.Sin(theta)))
			n++
		}
	}
	return sum / float64(n)
}
